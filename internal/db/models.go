package db

import (
	"time"
)

// Participant is a registered user.
//
// Indexes:
//   - idx_participants_email (unique): natural lookup key, guards duplicate sign-ups.
//   - idx_participants_created_at: default listing order.
//
// Latitude/Longitude are either both set or both nil.
type Participant struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement"`
	Gender         string    `gorm:"size:32;not null;index"`
	FirstName      string    `gorm:"size:128;not null"`
	LastName       string    `gorm:"size:128;not null"`
	Email          string    `gorm:"uniqueIndex:idx_participants_email;size:255;not null"`
	PasswordDigest string    `gorm:"size:255;not null"`
	Avatar         []byte    `gorm:"type:bytes"`
	Latitude       *float64  `gorm:"type:double precision"`
	Longitude      *float64  `gorm:"type:double precision"`
	City           string    `gorm:"size:255"`
	Active         bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time `gorm:"not null;index:idx_participants_created_at"`

	// HasAvatar is filled by list queries that skip the avatar blob.
	HasAvatar bool `gorm:"->;-:migration"`
}

// Match is a directed like: UserID liked TargetUserID.
//
// Indexes:
//   - idx_match_pair (unique): one like per ordered pair, ever.
//   - idx_match_user_created(user_id, created_at): trailing-window like counts.
//   - idx_match_target_created(target_user_id, created_at DESC, user_id): "who liked me" pages.
//
// Two edges (A,B) and (B,A) form a mutual match; nothing else is stored.
type Match struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	UserID       uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1;index:idx_match_user_created,priority:1"`
	TargetUserID uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index:idx_match_target_created,priority:1"`
	CreatedAt    time.Time `gorm:"not null;index:idx_match_user_created,priority:2;index:idx_match_target_created,priority:2,sort:desc"`

	Liker  *Participant `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Target *Participant `gorm:"foreignKey:TargetUserID;constraint:OnDelete:CASCADE"`
}
