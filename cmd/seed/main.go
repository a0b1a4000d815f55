package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicware/clinic-booking/internal/clinic"
	"github.com/clinicware/clinic-booking/internal/db"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

func main() {
	doctorCount := flag.Int("doctors", 10, "number of doctors to seed")
	patientCount := flag.Int("patients", 500, "number of patients to seed")
	days := flag.Int("days", 7, "number of upcoming days to generate slots for")
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.ApplySchema(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, *doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, *patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSlots(context.Background(), pool, doctorIDs, *days); err != nil {
		log.Fatal().Err(err).Msg("seed slots")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"General Practice",
		"Dermatology",
		"Cardiology",
		"Orthopedics",
		"Endocrinology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		specialty := specialties[i%len(specialties)]
		prefix := string(rune('A' + i%26))

		_, err := pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, queue_prefix, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, "Dr "+gofakeit.Name(), specialty, prefix)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	for i := 0; i < count; i++ {
		_, err := pool.Exec(ctx, `
			INSERT INTO patients (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), gofakeit.Name(), gofakeit.Phone())
		if err != nil {
			return err
		}
	}

	return nil
}

// seedSlots generates the bookable calendar ahead of time: 30-minute slots,
// 09:00 to 17:00, capacity 1, for each doctor and each upcoming day.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, days int) error {
	log.Info().Int("doctors", len(doctorIDs)).Int("days", days).Msg("seeding slots")

	const slotMinutes = 30
	now := time.Now()

	for _, doctorID := range doctorIDs {
		for d := 0; d < days; d++ {
			day := clinic.DateOnly(now.AddDate(0, 0, d))
			open := time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, time.Local)
			close := time.Date(day.Year(), day.Month(), day.Day(), 17, 0, 0, 0, time.Local)

			for start := open; start.Before(close); start = start.Add(slotMinutes * time.Minute) {
				_, err := pool.Exec(ctx, `
					INSERT INTO time_slots (id, doctor_id, slot_date, start_time, duration_mins, capacity, booked_count, is_available, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, 1, 0, TRUE, now(), now())
					ON CONFLICT (doctor_id, start_time) DO NOTHING
				`, uuid.New(), doctorID, day, start, slotMinutes)
				if err != nil {
					return err
				}
			}
		}
	}

	return nil
}
