package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/grooming-scheduler/internal/config"
	"github.com/hackgods/grooming-scheduler/internal/db"
)

func main() {
	groomers := flag.Int("groomers", 20, "number of groomers to create")
	owners := flag.Int("owners", 2000, "number of owners to create")
	maxPets := flag.Int("max-pets", 3, "maximum pets per owner")
	migrate := flag.Bool("migrate", true, "apply migrations before seeding")
	flag.Parse()

	logger := config.NewLogger(os.Stdout, os.Getenv("LOG_LEVEL")).With("service", "seed")
	logger.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *migrate {
		applied, err := db.Migrate(ctx, dsn)
		if err != nil {
			logger.Error("migrate", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied", "count", applied)
	}

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedGroomers(context.Background(), logger, faker, pool, *groomers); err != nil {
		logger.Error("seed groomers", "error", err)
		os.Exit(1)
	}
	if err := seedOwners(context.Background(), logger, faker, pool, *owners, *maxPets); err != nil {
		logger.Error("seed owners", "error", err)
		os.Exit(1)
	}

	logger.Info("seed complete")
}

func seedGroomers(ctx context.Context, logger *slog.Logger, faker *gofakeit.Faker, pool *pgxpool.Pool, count int) error {
	logger.Info("seeding groomers", "count", count)

	specialties := []string{
		"Small breeds",
		"Large breeds",
		"Doodles and poodles",
		"Double coats",
		"Hand stripping",
		"Cats",
		"Anxious pets",
		"Puppies",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i := 0; i < count; i++ {
		spec := specialties[faker.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO groomers (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), faker.Name(), spec)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info("groomers seeded")
	return nil
}

func seedOwners(ctx context.Context, logger *slog.Logger, faker *gofakeit.Faker, pool *pgxpool.Pool, count, maxPets int) error {
	logger.Info("seeding owners and pets", "owners", count, "max_pets", maxPets)

	const batchSize = 500
	if maxPets < 1 {
		maxPets = 1
	}

	pets := 0
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			ownerID := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO owners (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, ownerID, faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			for p := faker.Number(1, maxPets); p > 0; p-- {
				species, breed := randomAnimal(faker)
				_, err := tx.Exec(ctx, `
					INSERT INTO pets (id, owner_id, name, species, breed, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, now(), now())
				`, uuid.New(), ownerID, faker.PetName(), species, breed)
				if err != nil {
					_ = tx.Rollback(ctx)
					return err
				}
				pets++
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info("owners seeded", "done", end, "total", count, "pets", pets)
	}

	return nil
}

// randomAnimal returns a species and breed; most customers bring dogs.
func randomAnimal(faker *gofakeit.Faker) (string, string) {
	if faker.Number(1, 10) <= 8 {
		return "dog", faker.Dog()
	}
	return "cat", faker.Cat()
}
