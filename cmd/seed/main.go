package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/password"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := config.New()
	log := logger.FromConfig(cfg).With("component", "seed")

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	hasher, err := password.FromConfig(cfg)
	if err != nil {
		log.Error("failed to init password hasher", "err", err)
		os.Exit(1)
	}
	digest, err := hasher.Hash("password")
	if err != nil {
		log.Error("failed to hash seed password", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database, digest, log); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("seeding completed")
}
