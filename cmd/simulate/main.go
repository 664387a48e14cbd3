package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medicare/appointment-scheduling/internal/db"
)

// simulate fires concurrent booking requests for the SAME doctor and slot
// and verifies that exactly one succeeds while the rest observe a conflict
// or a retryable lock miss.

type simConfig struct {
	APIBaseURL  string
	Workers     int
	PostgresDSN string
}

type counters struct {
	created     atomic.Int64
	conflict    atomic.Int64
	unavailable atomic.Int64
	other       atomic.Int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	doctorID, slot, err := pickTarget(ctx, pool)
	if err != nil {
		log.Fatalf("pick target: %v", err)
	}
	patientIDs, err := loadPatients(ctx, pool, cfg.Workers)
	if err != nil {
		log.Fatalf("load patients: %v", err)
	}

	log.Printf("hammering doctor=%s slot=%s with %d workers", doctorID, slot.Format(time.RFC3339), cfg.Workers)

	client := &http.Client{Timeout: 10 * time.Second}
	var c counters
	var wg sync.WaitGroup

	start := make(chan struct{})
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			<-start
			book(client, cfg.APIBaseURL, patientID, doctorID, slot, &c)
		}(patientIDs[i%len(patientIDs)])
	}
	close(start)
	wg.Wait()

	log.Printf("results: created=%d conflict=%d unavailable=%d other=%d",
		c.created.Load(), c.conflict.Load(), c.unavailable.Load(), c.other.Load())

	if got := c.created.Load(); got != 1 {
		log.Fatalf("FAIL: expected exactly 1 successful booking, got %d", got)
	}
	log.Println("PASS: at most one booking won the slot")
}

func book(client *http.Client, baseURL string, patientID, doctorID uuid.UUID, slot time.Time, c *counters) {
	body, _ := json.Marshal(map[string]any{
		"doctor_id":            doctorID.String(),
		"appointment_datetime": slot.Format(time.RFC3339),
		"appointment_type":     "in_person",
		"symptoms":             "simulated symptoms",
	})

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/appointments", bytes.NewReader(body))
	if err != nil {
		c.other.Add(1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", patientID.String())
	req.Header.Set("X-User-Role", "patient")

	resp, err := client.Do(req)
	if err != nil {
		c.other.Add(1)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusCreated:
		c.created.Add(1)
	case http.StatusConflict:
		c.conflict.Add(1)
	case http.StatusServiceUnavailable:
		c.unavailable.Add(1)
	default:
		c.other.Add(1)
	}
}

// pickTarget finds a doctor with a schedule and computes the first bookable
// slot at least a week out, so the request is future and grid-aligned.
func pickTarget(ctx context.Context, pool *pgxpool.Pool) (uuid.UUID, time.Time, error) {
	var doctorID uuid.UUID
	var weekday, slotMinutes int
	var startTime string

	err := pool.QueryRow(ctx, `
		SELECT s.doctor_id, s.weekday, s.start_time, s.slot_duration_minutes
		FROM doctor_schedules s
		JOIN doctors d ON d.id = s.doctor_id
		WHERE s.is_available AND d.is_available
		LIMIT 1
	`).Scan(&doctorID, &weekday, &startTime, &slotMinutes)
	if err != nil {
		return uuid.Nil, time.Time{}, err
	}

	var hour, minute int
	if _, err := fmt.Sscanf(startTime, "%d:%d", &hour, &minute); err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("parse start_time %q: %w", startTime, err)
	}

	now := time.Now()
	day := now.AddDate(0, 0, 7)
	for int(day.Weekday()) != weekday {
		day = day.AddDate(0, 0, 1)
	}
	slot := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
	return doctorID, slot, nil
}

func loadPatients(ctx context.Context, pool *pgxpool.Pool, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no patients seeded")
	}
	return ids, nil
}

func loadConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Workers:     50,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if v := os.Getenv("SIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
