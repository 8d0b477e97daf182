package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/grooming-scheduler/internal/config"
	"github.com/hackgods/grooming-scheduler/internal/db"
	"github.com/hackgods/grooming-scheduler/internal/scheduling"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	RescheduleRatio float64
	CancelRatio     float64
	ReadRatio       float64
	OwnerLimit      int
	GroomerLimit    int
	DaysAhead       int
	PostgresDSN     string
	Policy          scheduling.Policy
}

// petRef is an owner together with one of their pets.
type petRef struct {
	OwnerID uuid.UUID
	PetID   uuid.UUID
}

type booked struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

type DataPool struct {
	Pets         []petRef
	Groomers     []uuid.UUID
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Reschedule   OperationMetrics
	Cancel       OperationMetrics
	Availability OperationMetrics
	ListByOwner  OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     *slog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		config.NewLogger(os.Stderr, "info").Error("failed to load base config", "error", err)
		os.Exit(1)
	}
	logger := baseCfg.Logger(os.Stdout, "simulate")

	cfg := loadConfig(baseCfg)
	logger.Info("simulator starting",
		"duration", cfg.Duration.String(), "workers", cfg.Workers,
		"booking", cfg.BookingRatio, "reschedule", cfg.RescheduleRatio,
		"cancel", cfg.CancelRatio, "read", cfg.ReadRatio)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Error("load data pool", "error", err)
		os.Exit(1)
	}
	logger.Info("data loaded", "pets", len(dataPool.Pets), "groomers", len(dataPool.Groomers))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		logger.Error("overlap check failed", "error", err)
		os.Exit(1)
	}
	if overlaps > 0 {
		logger.Error("overlapping confirmed appointments found", "pairs", overlaps)
		os.Exit(2)
	}
	logger.Info("no overlapping confirmed appointments")
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         max(getInt("SIM_WORKERS", 10), 1),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.4),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.4),
		OwnerLimit:      getInt("SIM_OWNER_LIMIT", 2000),
		GroomerLimit:    getInt("SIM_GROOMER_LIMIT", 5),
		DaysAhead:       max(getInt("SIM_DAYS_AHEAD", 3), 1),
		PostgresDSN:     base.PostgresDSN,
		Policy:          base.Policy(),
	}

	total := cfg.BookingRatio + cfg.RescheduleRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.RescheduleRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT DISTINCT ON (owner_id) owner_id, id FROM pets ORDER BY owner_id, id LIMIT $1
	`, cfg.OwnerLimit)
	if err != nil {
		return nil, fmt.Errorf("load pets: %w", err)
	}
	for rows.Next() {
		var ref petRef
		if err := rows.Scan(&ref.OwnerID, &ref.PetID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Pets = append(dataPool.Pets, ref)
	}
	rows.Close()

	// A handful of groomers keeps contention high.
	rows, err = pool.Query(ctx, `SELECT id FROM groomers ORDER BY name LIMIT $1`, cfg.GroomerLimit)
	if err != nil {
		return nil, fmt.Errorf("load groomers: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Groomers = append(dataPool.Groomers, id)
	}
	rows.Close()

	if len(dataPool.Pets) == 0 {
		return nil, fmt.Errorf("no pets loaded, run cmd/seed first")
	}
	if len(dataPool.Groomers) == 0 {
		return nil, fmt.Errorf("no groomers loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.RescheduleRatio:
			s.doReschedule(ctx, rng)
		case r < c.BookingRatio+c.RescheduleRatio+c.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doAvailability(ctx, rng)
		default:
			s.doListByOwner(ctx, rng)
		}
	}
}

// randomStart picks a grid start inside business hours a few days out, so
// many workers aim at the same slots.
func (s *Simulator) randomStart(rng *rand.Rand, serviceType string) time.Time {
	d := time.Hour
	if serviceType == "full" {
		d = 2 * time.Hour
	}
	day := time.Now().AddDate(0, 0, 2+rng.Intn(s.config.DaysAhead))
	slots := s.config.Policy.GenerateDay(day, d)
	return slots[rng.Intn(len(slots))].Start
}

func randomServiceType(rng *rand.Rand) string {
	if rng.Intn(3) == 0 {
		return "full"
	}
	return "basic"
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	ref := s.pool.Pets[rng.Intn(len(s.pool.Pets))]
	st := randomServiceType(rng)
	body := map[string]any{
		"pet_id":       ref.PetID,
		"groomer_id":   s.pool.Groomers[rng.Intn(len(s.pool.Groomers))],
		"service_type": st,
		"start_time":   s.randomStart(rng, st),
	}

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency, err := s.send(ctx, http.MethodPost, "/appointments", ref.OwnerID, body, &out)
	success := err == nil && status == http.StatusCreated
	if success && out.ID != uuid.Nil {
		s.pool.AddAppointment(booked{ID: out.ID, OwnerID: ref.OwnerID})
	}
	s.metrics.Booking.Record(latency, success, status == http.StatusConflict)
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	st := randomServiceType(rng)
	body := map[string]any{
		"groomer_id":   s.pool.Groomers[rng.Intn(len(s.pool.Groomers))],
		"service_type": st,
		"start_time":   s.randomStart(rng, st),
	}
	status, latency, err := s.send(ctx, http.MethodPut, "/appointments/"+b.ID.String(), b.OwnerID, body, nil)
	s.metrics.Reschedule.Record(latency, err == nil && status == http.StatusOK, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	status, latency, err := s.send(ctx, http.MethodDelete, "/appointments/"+b.ID.String(), b.OwnerID, nil, nil)
	s.metrics.Cancel.Record(latency, err == nil && status == http.StatusNoContent, status == http.StatusConflict)
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	groomer := s.pool.Groomers[rng.Intn(len(s.pool.Groomers))]
	date := s.config.Policy.FormatDate(time.Now().AddDate(0, 0, 2+rng.Intn(s.config.DaysAhead)))
	path := fmt.Sprintf("/groomers/%s/availability?date=%s&service_type=%s", groomer, date, randomServiceType(rng))
	status, latency, err := s.send(ctx, http.MethodGet, path, uuid.Nil, nil, nil)
	s.metrics.Availability.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doListByOwner(ctx context.Context, rng *rand.Rand) {
	ref := s.pool.Pets[rng.Intn(len(s.pool.Pets))]
	status, latency, err := s.send(ctx, http.MethodGet, "/appointments", ref.OwnerID, nil, nil)
	s.metrics.ListByOwner.Record(latency, err == nil && status == http.StatusOK, false)
}

func (s *Simulator) send(ctx context.Context, method, path string, owner uuid.UUID, body, out any) (int, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if owner != uuid.Nil {
		req.Header.Set("X-Owner-ID", owner.String())
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency, nil
}

// countOverlaps returns the number of confirmed appointment pairs that share
// a groomer and intersect. Anything but zero is a double booking.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.groomer_id = b.groomer_id
		 AND a.id < b.id
		 AND a.status = 'confirmed'
		 AND b.status = 'confirmed'
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Availability", &s.metrics.Availability)
	printOperationReport("List by Owner", &s.metrics.ListByOwner)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, worst := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Other: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), worst.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
