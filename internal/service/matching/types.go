package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/geo"
)

// RegisterRequest is a new participant's profile as submitted.
type RegisterRequest struct {
	Gender    string   `json:"gender" validate:"required,max=32"`
	FirstName string   `json:"first_name" validate:"required,max=128"`
	LastName  string   `json:"last_name" validate:"required,max=128"`
	Email     string   `json:"email" validate:"required,email,max=255"`
	Password  string   `json:"password" validate:"required,min=6,max=128"`
	Avatar    []byte   `json:"-"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	City      string   `json:"city" validate:"max=255"`
}

// ListRequest selects participants.
//
// Proximity filtering is enabled by Origin or City; MaxDistanceKm is then the
// inclusive radius, zero keeping only participants at the origin itself.
// City is only resolved when Origin is nil.
type ListRequest struct {
	Gender        string
	FirstName     string
	LastName      string
	Sort          string // "asc" (default) or "desc" by created_at
	Limit         int
	Offset        int
	Origin        *geo.Point
	City          string
	MaxDistanceKm float64
}

func (r ListRequest) nearby() bool {
	return r.Origin != nil || strings.TrimSpace(r.City) != ""
}

// fingerprint is the cache identity of the request. Only plain values go in,
// coordinates rounded to 4 decimals (~11 m).
func (r ListRequest) fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "g=%s|fn=%s|ln=%s|s=%s|l=%d|o=%d",
		strings.ToLower(r.Gender), strings.ToLower(r.FirstName), strings.ToLower(r.LastName),
		strings.ToLower(r.Sort), r.Limit, r.Offset)
	if r.nearby() {
		if r.Origin != nil {
			fmt.Fprintf(&b, "|at=%.4f,%.4f", r.Origin.Lat, r.Origin.Lon)
		} else {
			fmt.Fprintf(&b, "|city=%s", strings.ToLower(strings.TrimSpace(r.City)))
		}
		fmt.Fprintf(&b, "|d=%.4f", r.MaxDistanceKm)
	}
	return b.String()
}

// ParticipantView is what callers get to see of a participant: no password
// digest and no raw coordinates.
type ParticipantView struct {
	ID        uint64    `json:"id"`
	Gender    string    `json:"gender"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	City      string    `json:"city"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// OutcomeKind tells a successful like apart from a new match.
type OutcomeKind string

const (
	MutualMatch  OutcomeKind = "mutual_match"
	LikeRecorded OutcomeKind = "like_recorded"
)

// LikeOutcome is the result of a recorded like. Counterpart details are only
// set for MutualMatch.
type LikeOutcome struct {
	Kind             OutcomeKind `json:"kind"`
	Message          string      `json:"message"`
	CounterpartEmail string      `json:"counterpart_email,omitempty"`
	CounterpartName  string      `json:"counterpart_name,omitempty"`
}

// Liker is one entry of a "who liked me" page.
type Liker struct {
	UserID  uint64    `json:"user_id"`
	LikedAt time.Time `json:"liked_at"`
}

func likersFrom(matches []db.Match) []Liker {
	out := make([]Liker, 0, len(matches))
	for _, m := range matches {
		out = append(out, Liker{UserID: m.UserID, LikedAt: m.CreatedAt.UTC()})
	}
	return out
}
