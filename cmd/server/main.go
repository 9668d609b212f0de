package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/geocode"
	"github.com/oggyb/matchmaker/internal/imaging"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/password"
	"github.com/oggyb/matchmaker/internal/server"
	"github.com/oggyb/matchmaker/internal/service/matching"
)

func main() {
	_ = godotenv.Load()
	cfg := config.New()

	log := logger.FromConfig(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	var redisCache *cache.RedisCache
	if !cfg.Redis.Disabled {
		redisCache = cache.NewRedisCache(cfg)
		if err := redisCache.Ping(ctx); err != nil {
			log.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer redisCache.Close()
	}

	hasher, err := password.FromConfig(cfg)
	if err != nil {
		log.Error("failed to init password hasher", "err", err)
		os.Exit(1)
	}

	images, err := imaging.NewWatermarker(cfg.Avatar.WatermarkPath)
	if err != nil {
		log.Error("failed to load watermark", "err", err)
		os.Exit(1)
	}

	geoOpts := []geocode.Option{geocode.WithLogger(log.With("component", "geocode"))}
	if redisCache != nil {
		geoOpts = append(geoOpts, geocode.WithCache(redisCache, cfg.Geocoder.CacheTTL))
	}

	appCtx := app.New(cfg, database, redisCache, log)
	appCtx.Hasher = hasher
	appCtx.Images = images
	appCtx.Geocoder = geocode.FromConfig(cfg, geoOpts...)

	registrars := []server.Registrar{
		matching.NewRegistrar(appCtx),
	}

	if cfg.App.ENV == "development" {
		digest, err := hasher.Hash("password")
		if err == nil {
			err = db.SeedTestData(database, digest, log)
		}
		if err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	if err := server.StartGRPCServer(ctx, cfg, log, registrars...); err != nil {
		log.Error("failed to start gRPC server", "err", err)
		os.Exit(1)
	}
}
