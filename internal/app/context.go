package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/geocode"
	"github.com/oggyb/matchmaker/internal/imaging"
	"github.com/oggyb/matchmaker/internal/password"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
//
// RedisCache and Geocoder may be nil: caching and city lookups are then skipped.
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Hasher     password.Hasher
	Images     imaging.Processor
	Geocoder   geocode.Geocoder

	// Now is the clock used for created_at and rate-limit windows.
	Now func() time.Time
}

// New creates a new AppContext with the mandatory dependencies.
// Collaborators default to argon2id hashing and the built-in watermark.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	mark, _ := imaging.NewWatermarker("")
	return &AppContext{
		Config:     cfg,
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Hasher:     password.NewArgon2Hasher(password.DefaultArgon2Params),
		Images:     mark,
		Now:        time.Now,
	}
}
