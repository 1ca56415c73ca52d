package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage/memory"
)

type flakyMirror struct {
	mu       sync.Mutex
	failures int
	calls    int
	months   []string
}

func (m *flakyMirror) WriteAggregates(_ context.Context, aggs []core.MonthlyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("quota exceeded")
	}
	for _, a := range aggs {
		m.months = append(m.months, a.MonthKey)
	}
	return nil
}

func seedAggregate(t *testing.T, store *memory.Store, month string, updated time.Time) {
	t.Helper()
	agg := core.NewMonthlyAggregate(month)
	agg.UpdatedAt = updated
	if err := store.UpsertAggregate(context.Background(), agg); err != nil {
		t.Fatalf("UpsertAggregate(%s) error = %v", month, err)
	}
}

func TestNewSyncProcessor_Defaults(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, SyncProcessorConfig{}, nil)

	defaults := DefaultSyncProcessorConfig()
	if processor.config.PollInterval != defaults.PollInterval {
		t.Errorf("PollInterval = %v, want %v", processor.config.PollInterval, defaults.PollInterval)
	}
	if processor.config.BatchSize != defaults.BatchSize {
		t.Errorf("BatchSize = %d, want %d", processor.config.BatchSize, defaults.BatchSize)
	}
	if processor.config.MaxRetries != defaults.MaxRetries {
		t.Errorf("MaxRetries = %d, want %d", processor.config.MaxRetries, defaults.MaxRetries)
	}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != time.Minute {
		t.Errorf("expected PollInterval 1m, got %v", config.PollInterval)
	}
	if config.BatchSize != 12 {
		t.Errorf("expected BatchSize 12, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
}

func TestSyncProcessor_SyncOnceAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	mirror := &flakyMirror{}
	base := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	seedAggregate(t, store, "2024-01", base)
	seedAggregate(t, store, "2024-02", base.Add(time.Minute))
	seedAggregate(t, store, "2024-03", base.Add(2*time.Minute))

	processor := NewSyncProcessor(store, mirror, SyncProcessorConfig{BatchSize: 2, MaxRetries: 1}, nil)

	n, err := processor.SyncOnce(ctx)
	if err != nil || n != 3 {
		t.Fatalf("SyncOnce() = %d, %v; want 3, nil", n, err)
	}
	if mirror.calls != 2 {
		t.Errorf("mirror calls = %d, want 2 chunks", mirror.calls)
	}

	n, err = processor.SyncOnce(ctx)
	if err != nil || n != 0 {
		t.Errorf("second SyncOnce() = %d, %v; want 0, nil", n, err)
	}

	seedAggregate(t, store, "2024-02", base.Add(time.Hour))
	n, err = processor.SyncOnce(ctx)
	if err != nil || n != 1 {
		t.Errorf("SyncOnce() after update = %d, %v; want 1, nil", n, err)
	}

	processor.Reset()
	if n, _ := processor.SyncOnce(ctx); n != 3 {
		t.Errorf("SyncOnce() after Reset = %d, want 3", n)
	}

	stats := processor.Stats()
	if stats.Mirrored != 7 || stats.Iterations != 4 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestSyncProcessor_RetriesThenFails(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAggregate(t, store, "2024-01", time.Now())

	t.Run("recovers within retries", func(t *testing.T) {
		mirror := &flakyMirror{failures: 1}
		processor := NewSyncProcessor(store, mirror, SyncProcessorConfig{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
		if n, err := processor.SyncOnce(ctx); err != nil || n != 1 {
			t.Errorf("SyncOnce() = %d, %v; want 1, nil", n, err)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		mirror := &flakyMirror{failures: 5}
		processor := NewSyncProcessor(store, mirror, SyncProcessorConfig{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
		if _, err := processor.SyncOnce(ctx); err == nil {
			t.Error("SyncOnce() error = nil, want failure")
		}
		if mirror.calls != 2 {
			t.Errorf("mirror calls = %d, want 2", mirror.calls)
		}
		if processor.Stats().LastError == "" {
			t.Error("LastError not recorded")
		}
		if !processor.Stats().Watermark.IsZero() {
			t.Error("watermark advanced past a failed chunk")
		}
	})
}

func TestSyncProcessor_IsRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, DefaultSyncProcessorConfig(), nil)

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, DefaultSyncProcessorConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestSyncProcessor_StartStop(t *testing.T) {
	store := memory.New()
	mirror := &flakyMirror{}
	seedAggregate(t, store, "2024-01", time.Now())
	processor := NewSyncProcessor(store, mirror, SyncProcessorConfig{PollInterval: 10 * time.Millisecond}, nil)

	ctx := context.Background()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !processor.IsRunning() {
		t.Error("processor should be running after Start")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after Stop")
	}
	if processor.Stats().Iterations == 0 {
		t.Error("expected the startup pass to run")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, DefaultSyncProcessorConfig(), nil)

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}
