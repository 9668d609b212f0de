package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/geo"
)

// SortOrder is the created_at direction used by List.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows participant listings. Zero values mean "no filter".
// Offset is only honoured together with a positive Limit.
type ListFilter struct {
	Gender            string
	FirstNameContains string
	LastNameContains  string
	Sort              SortOrder
	Limit             int
	Offset            int
}

// participantColumns is every column except the avatar blob.
var participantColumns = []string{
	"id", "gender", "first_name", "last_name", "email", "password_digest",
	"latitude", "longitude", "city", "is_active", "created_at",
	"avatar IS NOT NULL AS has_avatar",
}

// ParticipantRepository owns participant records.
// Records it returns never carry the avatar bytes; HasAvatar tells whether one
// exists and Avatar loads it.
type ParticipantRepository struct {
	db *gorm.DB
	options
}

// NewParticipantRepository creates a new repository bound to the given DB connection.
func NewParticipantRepository(database *gorm.DB, opts ...Option) *ParticipantRepository {
	return &ParticipantRepository{db: database, options: newOptions(opts)}
}

// WithTx returns a copy of the repository that runs on tx.
func (r *ParticipantRepository) WithTx(tx *gorm.DB) *ParticipantRepository {
	return &ParticipantRepository{db: tx, options: r.options}
}

// Create inserts a new participant.
//
// Behavior:
//   - Runs the email check and the insert in one transaction.
//   - A unique index violation on email is reported as ErrDuplicateEmail, so two
//     concurrent sign-ups with the same email cannot both succeed.
//   - Sets CreatedAt from the repository clock and marks the participant active.
//   - Any other failure is a StorageError.
func (r *ParticipantRepository) Create(ctx context.Context, p *db.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.utcNow()
	}
	p.Active = true

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.Participant{}).Where("email = ?", p.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return svcErr.ErrDuplicateEmail
		}

		if err := tx.Create(p).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return svcErr.ErrDuplicateEmail
			}
			return err
		}
		return nil
	})
	if err != nil {
		return svcErr.Storage("create participant", err)
	}
	p.HasAvatar = len(p.Avatar) > 0
	return nil
}

// FindByEmail returns the participant with the exact email, or nil if none.
func (r *ParticipantRepository) FindByEmail(ctx context.Context, email string) (*db.Participant, error) {
	return r.findOne(ctx, "find participant by email", "email = ?", email)
}

// FindByID returns the participant with the given id, or nil if none.
func (r *ParticipantRepository) FindByID(ctx context.Context, id uint64) (*db.Participant, error) {
	return r.findOne(ctx, "find participant by id", "id = ?", id)
}

func (r *ParticipantRepository) findOne(ctx context.Context, op, cond string, arg any) (*db.Participant, error) {
	var p db.Participant
	err := r.db.WithContext(ctx).
		Model(&db.Participant{}).
		Select(participantColumns).
		Where(cond, arg).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, svcErr.Storage(op, err)
	}
	return &p, nil
}

// Avatar loads the avatar bytes of a participant.
// Returns ErrTargetNotFound when the participant does not exist and a nil slice
// when it has no avatar.
func (r *ParticipantRepository) Avatar(ctx context.Context, id uint64) ([]byte, error) {
	var p db.Participant
	err := r.db.WithContext(ctx).
		Model(&db.Participant{}).
		Select("id", "avatar").
		Where("id = ?", id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, svcErr.ErrTargetNotFound
	}
	if err != nil {
		return nil, svcErr.Storage("load avatar", err)
	}
	return p.Avatar, nil
}

// List returns participants matching f.
//
// Behavior:
//   - Gender is an exact match on the lower-cased value.
//   - Name filters are case-insensitive substring matches.
//   - Sorted by created_at (ascending unless SortDesc); ties keep insertion order.
//
// Example:
//
//	repo.List(ctx, ListFilter{Gender: "female", FirstNameContains: "ann", Sort: SortDesc})
func (r *ParticipantRepository) List(ctx context.Context, f ListFilter) ([]db.Participant, error) {
	query := r.db.WithContext(ctx).
		Model(&db.Participant{}).
		Select(participantColumns)

	if f.Gender != "" {
		query = query.Where("gender = ?", strings.ToLower(f.Gender))
	}
	if f.FirstNameContains != "" {
		query = query.Where("LOWER(first_name) LIKE ? ESCAPE '!'", containsPattern(f.FirstNameContains))
	}
	if f.LastNameContains != "" {
		query = query.Where("LOWER(last_name) LIKE ? ESCAPE '!'", containsPattern(f.LastNameContains))
	}

	if f.Sort == SortDesc {
		query = query.Order("created_at DESC, id ASC")
	} else {
		query = query.Order("created_at ASC, id ASC")
	}

	if f.Limit > 0 {
		query = query.Limit(f.Limit)
		if f.Offset > 0 {
			query = query.Offset(f.Offset)
		}
	}

	var participants []db.Participant
	if err := query.Find(&participants).Error; err != nil {
		return nil, svcErr.Storage("list participants", err)
	}
	return participants, nil
}

// ListNear lists participants within maxDistanceKm of origin.
// The whole filtered listing is loaded first, then narrowed with geo.Filter;
// pagination applies to the narrowed result.
func (r *ParticipantRepository) ListNear(
	ctx context.Context,
	origin geo.Point,
	maxDistanceKm float64,
	f ListFilter,
) ([]db.Participant, error) {
	limit, offset := f.Limit, f.Offset
	f.Limit, f.Offset = 0, 0

	all, err := r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return page(geo.Filter(all, origin, maxDistanceKm), limit, offset), nil
}

// containsPattern builds a lower-cased LIKE pattern with '!' as escape char.
func containsPattern(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
	return "%" + s + "%"
}

func page(ps []db.Participant, limit, offset int) []db.Participant {
	if limit <= 0 {
		return ps
	}
	if offset >= len(ps) {
		return []db.Participant{}
	}
	end := offset + limit
	if end > len(ps) {
		end = len(ps)
	}
	return ps[offset:end]
}
