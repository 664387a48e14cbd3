package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicare/appointment-scheduling/internal/db"
)

var specializations = []string{
	"cardiology",
	"dermatology",
	"neurology",
	"orthopedics",
	"pediatrics",
	"psychiatry",
	"radiology",
	"general_medicine",
	"dentistry",
	"ophthalmology",
	"ent",
	"gynecology",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 100)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specializations[gofakeit.Number(0, len(specializations)-1)]
		fee := float64(gofakeit.Number(10, 100)) * 10 // 100..1000 in steps of 10

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialization, consultation_fee, is_available, rating, total_ratings, created_at, updated_at)
			VALUES ($1, $2, $3, $4, true, 0, 0, now(), now())
		`, id, name, spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding schedules for %d doctors", len(doctorIDs))

	durations := []int{15, 20, 30, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		slotMinutes := durations[gofakeit.Number(0, len(durations)-1)]
		startHour := gofakeit.Number(8, 10)
		endHour := gofakeit.Number(15, 18)

		// Monday through Friday
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_schedules (id, doctor_id, weekday, start_time, end_time, slot_duration_minutes, is_available, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, true, now(), now())
			`, uuid.New(), doctorID, weekday,
				fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", endHour), slotMinutes)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
