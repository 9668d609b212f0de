package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/utils/pagination"
)

// MatchRepository provides data access methods for the Match model.
// It encapsulates all queries related to likes between participants.
type MatchRepository struct {
	db *gorm.DB
	options
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB, opts ...Option) *MatchRepository {
	return &MatchRepository{db: database, options: newOptions(opts)}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *MatchRepository) WithTx(tx *gorm.DB) *MatchRepository {
	return &MatchRepository{db: tx, options: r.options}
}

// Window is the trailing period CountToday looks at.
func (r *MatchRepository) Window() time.Duration { return r.window }

// CountToday returns how many likes userID gave inside the trailing window
// (24h by default) ending now. It is a rolling window, not a calendar day.
func (r *MatchRepository) CountToday(ctx context.Context, userID uint64) (int64, error) {
	since := r.utcNow().Add(-r.window)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("user_id = ? AND created_at > ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, svcErr.Storage("count likes", err)
	}
	return count, nil
}

// CreateLike records that userID liked targetUserID.
//
// Behavior:
//   - userID == targetUserID → ErrSelfLike.
//   - (userID, targetUserID) already present → ErrAlreadyLiked. The unique index
//     idx_match_pair makes this hold for concurrent callers too.
//   - Otherwise the edge is inserted with CreatedAt = now.
//
// Example:
//
//	repo.CreateLike(ctx, 1, 2) // participant 1 liked participant 2
func (r *MatchRepository) CreateLike(ctx context.Context, userID, targetUserID uint64) (*db.Match, error) {
	if userID == targetUserID {
		return nil, svcErr.ErrSelfLike
	}

	match := &db.Match{
		UserID:       userID,
		TargetUserID: targetUserID,
		CreatedAt:    r.utcNow(),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := hasEdge(ctx, tx, userID, targetUserID)
		if err != nil {
			return err
		}
		if exists {
			return svcErr.ErrAlreadyLiked
		}

		if err := tx.Create(match).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return svcErr.ErrAlreadyLiked
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, svcErr.Storage("create like", err)
	}
	return match, nil
}

// IsMutual reports whether targetUserID has liked userID back.
func (r *MatchRepository) IsMutual(ctx context.Context, userID, targetUserID uint64) (bool, error) {
	ok, err := hasEdge(ctx, r.db, targetUserID, userID)
	if err != nil {
		return false, svcErr.Storage("check mutual like", err)
	}
	return ok, nil
}

// HasLiked checks whether userID has liked targetUserID.
func (r *MatchRepository) HasLiked(ctx context.Context, userID, targetUserID uint64) (bool, error) {
	ok, err := hasEdge(ctx, r.db, userID, targetUserID)
	if err != nil {
		return false, svcErr.Storage("check like", err)
	}
	return ok, nil
}

// ListLikers returns the likes received by targetUserID.
//
// Behavior:
//   - Ordered by created_at DESC, user_id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListLikers(ctx, 42, nil, 20) // first 20 people who liked participant 42
func (r *MatchRepository) ListLikers(
	ctx context.Context,
	targetUserID uint64,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	query := r.db.WithContext(ctx).
		Table("matches m").
		Where("m.target_user_id = ?", targetUserID)

	return r.pageLikers(query, paginationToken, limit)
}

// ListNewLikers returns likes received by targetUserID that were not liked back.
// Same ordering and pagination as ListLikers.
func (r *MatchRepository) ListNewLikers(
	ctx context.Context,
	targetUserID uint64,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	// subquery to exclude mutual likes
	likedBack := r.db.
		Table("matches").
		Select("1").
		Where("user_id = m.target_user_id AND target_user_id = m.user_id")

	query := r.db.WithContext(ctx).
		Table("matches m").
		Where("m.target_user_id = ? AND NOT EXISTS (?)", targetUserID, likedBack)

	return r.pageLikers(query, paginationToken, limit)
}

// CountLikers returns how many participants liked targetUserID.
// Used in conjunction with the Redis cache (DB is fallback).
func (r *MatchRepository) CountLikers(ctx context.Context, targetUserID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("target_user_id = ?", targetUserID).
		Count(&count).Error
	if err != nil {
		return 0, svcErr.Storage("count likers", err)
	}
	return count, nil
}

func (r *MatchRepository) pageLikers(query *gorm.DB, paginationToken *string, limit int) ([]db.Match, *string, error) {
	if limit <= 0 {
		limit = 20
	}

	// decode cursor if provided
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, svcErr.Validation("%v", err)
	}

	query = query.
		Select("m.id, m.user_id, m.target_user_id, m.created_at").
		Order("m.created_at DESC, m.user_id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.CreatedUnix).UTC()
		query = query.Where(
			"(m.created_at < ? OR (m.created_at = ? AND m.user_id < ?))",
			ts, ts, cursor.UserID,
		)
	}

	var matches []db.Match
	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, svcErr.Storage("list likers", err)
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			UserID:      last.UserID,
			CreatedUnix: last.CreatedAt.UnixMilli(),
		})
		nextToken = &token
		matches = matches[:limit]
	}

	return matches, nextToken, nil
}

func hasEdge(ctx context.Context, conn *gorm.DB, userID, targetUserID uint64) (bool, error) {
	var count int64
	err := conn.WithContext(ctx).
		Model(&db.Match{}).
		Where("user_id = ? AND target_user_id = ?", userID, targetUserID).
		Count(&count).Error
	return count > 0, err
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
