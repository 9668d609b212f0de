package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/db"
	svcErr "github.com/oggyb/matchmaker/internal/errors"
	"github.com/oggyb/matchmaker/internal/geo"
	"github.com/oggyb/matchmaker/internal/geocode"
	"github.com/oggyb/matchmaker/internal/repository"
)

const defaultLikersPageSize = 20

// Service holds the matching business logic on top of the repository and cache layers.
// Every exported method is also served over gRPC, see grpc.go.
type Service struct {
	appCtx       *app.AppContext
	participants *repository.ParticipantRepository
	matches      *repository.MatchRepository
	validate     *validator.Validate
	log          *slog.Logger

	dailyLimit     int64
	allowedGenders []string
	listCacheTTL   time.Duration
	avatarURL      string
	maxAvatarBytes int
}

// NewService creates the matching service with dependencies from AppContext.
// Dependencies include:
//   - DB connection (via ParticipantRepository and MatchRepository)
//   - RedisCache for listings and liker counts (optional)
//   - Hasher, image Processor and Geocoder (optional)
func NewService(appCtx *app.AppContext) *Service {
	cfg := appCtx.Config
	opts := []repository.Option{
		repository.WithClock(appCtx.Now),
		repository.WithWindow(cfg.Matching.LikeWindow),
	}

	genders := make([]string, 0, len(cfg.Matching.AllowedGenders))
	for _, g := range cfg.Matching.AllowedGenders {
		genders = append(genders, strings.ToLower(strings.TrimSpace(g)))
	}

	return &Service{
		appCtx:         appCtx,
		participants:   repository.NewParticipantRepository(appCtx.DB, opts...),
		matches:        repository.NewMatchRepository(appCtx.DB, opts...),
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		log:            appCtx.Logger.With("component", "matching"),
		dailyLimit:     int64(cfg.Matching.DailyLikeLimit),
		allowedGenders: genders,
		listCacheTTL:   cfg.Matching.ListCacheTTL,
		avatarURL:      cfg.Matching.AvatarURLPattern,
		maxAvatarBytes: cfg.Matching.MaxAvatarBytes,
	}
}

// RegisterParticipant validates and stores a new participant.
//
// Behavior:
//   - Rejects malformed input with ErrValidation before touching the store.
//   - Resolves City to coordinates when none were given; a failed lookup is
//     logged and the participant is stored without coordinates.
//   - Hashes the password and watermarks the avatar outside the transaction.
//   - A taken email is ErrDuplicateEmail, also under concurrent sign-ups.
//   - Invalidates cached listings.
func (s *Service) RegisterParticipant(ctx context.Context, req RegisterRequest) (ParticipantView, error) {
	s.log.Debug("RegisterParticipant called", "email", req.Email)

	if err := s.validateRegister(&req); err != nil {
		return ParticipantView{}, err
	}

	// cheap early exit; the unique index still decides races
	existing, err := s.participants.FindByEmail(ctx, req.Email)
	if err != nil {
		return ParticipantView{}, err
	}
	if existing != nil {
		return ParticipantView{}, svcErr.ErrDuplicateEmail
	}

	p := &db.Participant{
		Gender:    req.Gender,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		City:      req.City,
	}

	if p.Latitude == nil && req.City != "" {
		s.locate(ctx, p)
	}

	p.PasswordDigest, err = s.appCtx.Hasher.Hash(req.Password)
	if err != nil {
		return ParticipantView{}, fmt.Errorf("hash password: %w", err)
	}

	if len(req.Avatar) > 0 {
		if p.Avatar, err = s.appCtx.Images.Stamp(req.Avatar); err != nil {
			return ParticipantView{}, err
		}
	}

	if err := s.participants.Create(ctx, p); err != nil {
		s.log.Warn("create participant failed", "email", req.Email, "err", err)
		return ParticipantView{}, err
	}

	s.invalidateListings(ctx)
	s.log.Info("participant registered", "id", p.ID)
	return s.view(*p), nil
}

func (s *Service) validateRegister(req *RegisterRequest) error {
	req.Gender = strings.ToLower(strings.TrimSpace(req.Gender))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.City = strings.TrimSpace(req.City)

	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	if len(s.allowedGenders) > 0 && !slices.Contains(s.allowedGenders, req.Gender) {
		return svcErr.Validation("gender must be one of %s", strings.Join(s.allowedGenders, ", "))
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return svcErr.Validation("latitude and longitude must be given together")
	}
	if s.maxAvatarBytes > 0 && len(req.Avatar) > s.maxAvatarBytes {
		return svcErr.Validation("avatar exceeds %d bytes", s.maxAvatarBytes)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return svcErr.Validation("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return svcErr.Validation("%s", strings.Join(msgs, "; "))
}

// locate fills coordinates from the participant's city, best effort.
func (s *Service) locate(ctx context.Context, p *db.Participant) {
	if s.appCtx.Geocoder == nil {
		return
	}
	loc, err := s.appCtx.Geocoder.Resolve(ctx, p.City)
	if err != nil {
		s.log.Warn("geocoding failed, storing participant without coordinates", "city", p.City, "err", err)
		return
	}
	lat, lon := loc.Lat, loc.Lon
	p.Latitude, p.Longitude = &lat, &lon
	if loc.DisplayName != "" {
		p.City = loc.DisplayName
	}
}

// Like records that likerID liked targetID and reports whether that made a match.
//
// Behavior:
//   - likerID == targetID → ErrSelfLike, nothing else is checked.
//   - Missing or inactive target → ErrTargetNotFound.
//   - More than the daily limit in the trailing window → ErrRateLimitExceeded.
//   - Pair already liked → ErrAlreadyLiked.
//   - Otherwise LikeRecorded, or MutualMatch with the target's contact details
//     when the target had already liked likerID.
//
// All checks and the insert share one transaction. A like that found no reverse
// edge is checked once more after commit, so two crossing likes still match.
//
// Example:
//
//	svc.Like(ctx, 1, 2)
func (s *Service) Like(ctx context.Context, likerID, targetID uint64) (LikeOutcome, error) {
	s.log.Debug("Like called", "liker", likerID, "target", targetID)

	if likerID == targetID {
		return LikeOutcome{}, svcErr.ErrSelfLike
	}

	var (
		outcome     LikeOutcome
		matchedWith *db.Participant
	)
	err := s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		participants := s.participants.WithTx(tx)
		matches := s.matches.WithTx(tx)

		target, err := participants.FindByID(ctx, targetID)
		if err != nil {
			return err
		}
		if target == nil || !target.Active {
			return svcErr.ErrTargetNotFound
		}

		liker, err := participants.FindByID(ctx, likerID)
		if err != nil {
			return err
		}
		if liker == nil {
			return svcErr.Validation("participant %d does not exist", likerID)
		}

		count, err := matches.CountToday(ctx, likerID)
		if err != nil {
			return err
		}
		if count >= s.dailyLimit {
			return svcErr.ErrRateLimitExceeded
		}

		if _, err := matches.CreateLike(ctx, likerID, targetID); err != nil {
			return err
		}

		mutual, err := matches.IsMutual(ctx, likerID, targetID)
		if err != nil {
			return err
		}
		if mutual {
			outcome = matchOutcome(target)
		} else {
			outcome = LikeOutcome{
				Kind:    LikeRecorded,
				Message: "Like recorded, no mutual match yet.",
			}
		}
		matchedWith = target
		return nil
	})
	if err != nil {
		if !svcErr.IsDomain(err) {
			s.log.Error("like failed", "liker", likerID, "target", targetID, "err", err)
		}
		return LikeOutcome{}, svcErr.Storage("like", err)
	}

	// a reverse like committed concurrently is only visible once both are in
	if outcome.Kind == LikeRecorded {
		mutual, err := s.matches.IsMutual(ctx, likerID, targetID)
		if err != nil {
			s.log.Warn("mutual recheck failed", "liker", likerID, "target", targetID, "err", err)
		} else if mutual {
			outcome = matchOutcome(matchedWith)
		}
	}

	if rc := s.appCtx.RedisCache; rc != nil {
		if err := rc.InvalidateLikeCount(ctx, targetID); err != nil {
			s.log.Warn("invalidate like count failed", "target", targetID, "err", err)
		}
	}

	s.log.Debug("Like result", "liker", likerID, "target", targetID, "kind", outcome.Kind)
	return outcome, nil
}

// ListParticipants returns participants matching req.
//
// Behavior:
//   - Name filters are case-insensitive substrings, gender is exact.
//   - Sorted by created_at, ascending unless Sort is "desc".
//   - With a proximity filter, only participants with coordinates within
//     MaxDistanceKm of the origin are kept. A City origin that cannot be
//     resolved gives ErrGeocodingUnavailable.
//   - Results are cached until the TTL passes or someone registers.
func (s *Service) ListParticipants(ctx context.Context, req ListRequest) ([]ParticipantView, error) {
	s.log.Debug("ListParticipants called", "request", req.fingerprint())

	if err := validateList(req); err != nil {
		return nil, err
	}

	key := s.listCacheKey(ctx, req)
	if key != "" {
		var cached []ParticipantView
		found, err := s.appCtx.RedisCache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.log.Warn("list cache read failed", "err", err)
		} else if found {
			return cached, nil
		}
	}

	participants, err := s.listFromStore(ctx, req)
	if err != nil {
		return nil, err
	}

	views := make([]ParticipantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, s.view(p))
	}

	if key != "" {
		if err := s.appCtx.RedisCache.SetJSON(ctx, key, views, s.listCacheTTL); err != nil {
			s.log.Warn("list cache write failed", "err", err)
		}
	}
	return views, nil
}

func validateList(req ListRequest) error {
	switch strings.ToLower(req.Sort) {
	case "", string(repository.SortAsc), string(repository.SortDesc):
	default:
		return svcErr.Validation("sort must be asc or desc")
	}
	if req.Limit < 0 || req.Offset < 0 {
		return svcErr.Validation("limit and offset must not be negative")
	}
	if req.MaxDistanceKm < 0 {
		return svcErr.Validation("max distance must not be negative")
	}
	if req.MaxDistanceKm > 0 && !req.nearby() {
		return svcErr.Validation("max distance needs an origin or a city")
	}
	if req.Origin != nil && !req.Origin.Valid() {
		return svcErr.Validation("origin is not a valid coordinate")
	}
	return nil
}

func (s *Service) listFromStore(ctx context.Context, req ListRequest) ([]db.Participant, error) {
	f := repository.ListFilter{
		Gender:            strings.TrimSpace(req.Gender),
		FirstNameContains: strings.TrimSpace(req.FirstName),
		LastNameContains:  strings.TrimSpace(req.LastName),
		Sort:              repository.SortOrder(strings.ToLower(req.Sort)),
		Limit:             req.Limit,
		Offset:            req.Offset,
	}
	if !req.nearby() {
		return s.participants.List(ctx, f)
	}

	origin, err := s.origin(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.participants.ListNear(ctx, origin, req.MaxDistanceKm, f)
}

func (s *Service) origin(ctx context.Context, req ListRequest) (geo.Point, error) {
	if req.Origin != nil {
		return *req.Origin, nil
	}
	if s.appCtx.Geocoder == nil {
		return geo.Point{}, svcErr.ErrGeocodingUnavailable
	}
	loc, err := s.appCtx.Geocoder.Resolve(ctx, req.City)
	if errors.Is(err, geocode.ErrNotFound) {
		return geo.Point{}, svcErr.Validation("unknown city %q", req.City)
	}
	if err != nil {
		s.log.Warn("geocoding failed", "city", req.City, "err", err)
		return geo.Point{}, fmt.Errorf("%w: %v", svcErr.ErrGeocodingUnavailable, err)
	}
	return loc.Point(), nil
}

// listCacheKey is empty when caching is off or Redis is unreachable.
func (s *Service) listCacheKey(ctx context.Context, req ListRequest) string {
	rc := s.appCtx.RedisCache
	if rc == nil || s.listCacheTTL <= 0 {
		return ""
	}
	gen, err := rc.ListGeneration(ctx)
	if err != nil {
		s.log.Warn("list cache generation unavailable", "err", err)
		return ""
	}
	return rc.KeyForParticipantList(gen, req.fingerprint())
}

func (s *Service) invalidateListings(ctx context.Context) {
	if rc := s.appCtx.RedisCache; rc != nil {
		if err := rc.BumpListGeneration(ctx); err != nil {
			s.log.Warn("invalidate list cache failed", "err", err)
		}
	}
}

func matchOutcome(target *db.Participant) LikeOutcome {
	return LikeOutcome{
		Kind:             MutualMatch,
		Message:          fmt.Sprintf("It's a match with %s!", target.FirstName),
		CounterpartEmail: target.Email,
		CounterpartName:  strings.TrimSpace(target.FirstName + " " + target.LastName),
	}
}

// Avatar returns the stored avatar image of participant id.
// A participant without avatar yields ErrTargetNotFound as well.
func (s *Service) Avatar(ctx context.Context, id uint64) ([]byte, error) {
	avatar, err := s.participants.Avatar(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(avatar) == 0 {
		return nil, svcErr.ErrTargetNotFound
	}
	return avatar, nil
}

// ListLikedYou returns the participants who liked recipientID, newest first.
// paginationToken is the token returned by the previous page, nil for the first.
func (s *Service) ListLikedYou(ctx context.Context, recipientID uint64, paginationToken *string, limit int) ([]Liker, *string, error) {
	if limit <= 0 {
		limit = defaultLikersPageSize
	}
	matches, next, err := s.matches.ListLikers(ctx, recipientID, paginationToken, limit)
	if err != nil {
		return nil, nil, err
	}
	return likersFrom(matches), next, nil
}

// ListNewLikedYou is ListLikedYou without the likers recipientID already liked back.
func (s *Service) ListNewLikedYou(ctx context.Context, recipientID uint64, paginationToken *string, limit int) ([]Liker, *string, error) {
	if limit <= 0 {
		limit = defaultLikersPageSize
	}
	matches, next, err := s.matches.ListNewLikers(ctx, recipientID, paginationToken, limit)
	if err != nil {
		return nil, nil, err
	}
	return likersFrom(matches), next, nil
}

// CountLikedYou returns how many participants liked recipientID.
// Cache-first strategy:
//  1. Attempts to read from Redis (likes:count:<id>).
//  2. On a miss or Redis error, falls back to the DB.
//  3. On DB fetch, updates Redis with a 1h TTL.
func (s *Service) CountLikedYou(ctx context.Context, recipientID uint64) (int64, error) {
	rc := s.appCtx.RedisCache
	if rc != nil {
		n, found, err := rc.GetLikeCount(ctx, recipientID)
		if err != nil {
			s.log.Warn("like count cache read failed", "recipient", recipientID, "err", err)
		} else if found {
			return n, nil
		}
	}

	count, err := s.matches.CountLikers(ctx, recipientID)
	if err != nil {
		return 0, err
	}

	if rc != nil {
		if err := rc.UpdateLikeCount(ctx, recipientID, count); err != nil {
			s.log.Warn("like count cache write failed", "recipient", recipientID, "err", err)
		}
	}
	return count, nil
}

func (s *Service) view(p db.Participant) ParticipantView {
	v := ParticipantView{
		ID:        p.ID,
		Gender:    p.Gender,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		City:      p.City,
		IsActive:  p.Active,
		CreatedAt: p.CreatedAt.UTC(),
	}
	if p.HasAvatar && s.avatarURL != "" {
		v.AvatarURL = fmt.Sprintf(s.avatarURL, p.ID)
	}
	return v
}
