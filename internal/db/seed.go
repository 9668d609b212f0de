package db

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type seedCity struct {
	name     string
	lat, lon float64
}

var seedCities = []seedCity{
	{"Berlin", 52.5200, 13.4050},
	{"Hamburg", 53.5511, 9.9937},
	{"Munich", 48.1351, 11.5820},
	{"Paris", 48.8566, 2.3522},
}

var seedFirstNames = []string{
	"Anna", "Ben", "Clara", "David", "Elena", "Felix", "Greta", "Hugo", "Ida", "Jonas",
	"Katja", "Leon", "Mia", "Noah", "Olga", "Paul", "Rita", "Sven", "Tina", "Umar",
}

// SeedTestData resets the database and populates it with demo participants and likes.
//
// Behavior:
//  1. Clears existing data in `matches` and `participants` tables.
//  2. Creates 20 participants (10 male, 10 female), all sharing passwordDigest,
//     scattered within a few km of four cities.
//  3. Generates likes between opposite genders; every 3rd pair is made mutual.
//
// Compatible with MySQL, PostgreSQL and SQLite.
func SeedTestData(database *gorm.DB, passwordDigest string, log *slog.Logger) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	if err := database.Exec("DELETE FROM matches").Error; err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}
	if err := database.Exec("DELETE FROM participants").Error; err != nil {
		return fmt.Errorf("failed to clear participants: %w", err)
	}

	switch database.Dialector.Name() {
	case "mysql":
		database.Exec("ALTER TABLE matches AUTO_INCREMENT = 1")
		database.Exec("ALTER TABLE participants AUTO_INCREMENT = 1")
	case "postgres":
		database.Exec("ALTER SEQUENCE matches_id_seq RESTART WITH 1")
		database.Exec("ALTER SEQUENCE participants_id_seq RESTART WITH 1")
	case "sqlite":
		database.Exec("DELETE FROM sqlite_sequence WHERE name IN ('matches', 'participants')")
	}
	log.Info("cleared existing data")

	// --- Participants ---
	now := time.Now().UTC().Truncate(time.Millisecond)
	participants := make([]Participant, 0, len(seedFirstNames))
	for i, first := range seedFirstNames {
		gender := "male"
		if i%2 == 0 {
			gender = "female"
		}
		city := seedCities[i%len(seedCities)]
		lat := city.lat + (r.Float64()-0.5)*0.1
		lon := city.lon + (r.Float64()-0.5)*0.1

		p := Participant{
			Gender:         gender,
			FirstName:      first,
			LastName:       "Example",
			Email:          fmt.Sprintf("%s%d@example.com", first, i+1),
			PasswordDigest: passwordDigest,
			Latitude:       &lat,
			Longitude:      &lon,
			City:           city.name,
			Active:         true,
			CreatedAt:      now.Add(-time.Duration(len(seedFirstNames)-i) * time.Hour),
		}
		if err := database.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed participant: %w", err)
		}
		participants = append(participants, p)
	}
	log.Info("seeded participants", "count", len(participants))

	// --- Likes ---
	like := func(from, to Participant, at time.Time) error {
		return database.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&Match{UserID: from.ID, TargetUserID: to.ID, CreatedAt: at}).Error
	}

	counter := 0
	for _, actor := range participants {
		for j := 0; j < 6; j++ {
			target := participants[r.Intn(len(participants))]
			if target.ID == actor.ID || target.Gender == actor.Gender {
				continue
			}
			at := now.Add(-time.Duration(r.Intn(72)) * time.Hour)
			if err := like(actor, target, at); err != nil {
				return fmt.Errorf("failed to seed like: %w", err)
			}
			// guarantee mutual likes every 3rd pair
			if counter%3 == 0 {
				if err := like(target, actor, at.Add(time.Minute)); err != nil {
					return fmt.Errorf("failed to seed like: %w", err)
				}
			}
			counter++
		}
	}
	log.Info("seeded likes", "pairs", counter)

	return nil
}
