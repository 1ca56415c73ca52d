package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to look for changed aggregates (default: 1m)
	PollInterval time.Duration

	// BatchSize is the max number of months written per mirror call (default: 12)
	BatchSize int

	// MaxRetries is the number of write attempts per chunk (default: 3)
	MaxRetries int

	// RetryDelay is the pause between attempts (default: 2s)
	RetryDelay time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: time.Minute,
		BatchSize:    12,
		MaxRetries:   3,
		RetryDelay:   2 * time.Second,
	}
}

// SyncStats describes the processor's progress.
type SyncStats struct {
	LastSync   time.Time
	Watermark  time.Time
	Mirrored   int
	LastError  string
	Iterations int
}

// SyncProcessor polls the aggregate store and mirrors every aggregate that
// changed since the last successful pass. It is the fallback when no AMQP
// broker delivers refresh messages, and a full resync on startup otherwise.
type SyncProcessor struct {
	store  storage.AggregateStore
	mirror sheets.AggregateWriter
	config SyncProcessorConfig
	logger *log.Logger

	statsMu sync.Mutex
	stats   SyncStats

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(store storage.AggregateStore, mirror sheets.AggregateWriter, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	defaults := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize < 1 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = defaults.MaxRetries
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SyncProcessor{
		store:  store,
		mirror: mirror,
		config: config,
		logger: logger.WithComponent(log.ComponentSheets),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	// Process immediately on startup
	p.syncLogged(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.syncLogged(ctx)
		}
	}
}

func (p *SyncProcessor) syncLogged(ctx context.Context) {
	if _, err := p.SyncOnce(ctx); err != nil {
		p.logger.ErrorContext(ctx, "Aggregate sync failed", log.FieldError, err)
	}
}

// SyncOnce mirrors every aggregate updated after the watermark and returns
// how many months were written. The watermark only advances past chunks
// that were written successfully.
func (p *SyncProcessor) SyncOnce(ctx context.Context) (int, error) {
	aggs, err := p.store.ListAggregates(ctx)
	if err != nil {
		p.recordError(err)
		return 0, fmt.Errorf("list aggregates: %w", err)
	}

	p.statsMu.Lock()
	watermark := p.stats.Watermark
	p.statsMu.Unlock()

	var changed []core.MonthlyAggregate
	for _, a := range aggs {
		if a.UpdatedAt.After(watermark) {
			changed = append(changed, a)
		}
	}

	written := 0
	for start := 0; start < len(changed); start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(changed))
		chunk := changed[start:end]

		if err := p.writeWithRetry(ctx, chunk); err != nil {
			p.recordError(err)
			return written, err
		}
		written += len(chunk)

		p.statsMu.Lock()
		for _, a := range chunk {
			if a.UpdatedAt.After(p.stats.Watermark) {
				p.stats.Watermark = a.UpdatedAt
			}
		}
		p.statsMu.Unlock()
	}

	p.statsMu.Lock()
	p.stats.LastSync = time.Now()
	p.stats.Mirrored += written
	p.stats.Iterations++
	p.stats.LastError = ""
	p.statsMu.Unlock()

	if written > 0 {
		p.logger.InfoContext(ctx, "Synced aggregates to mirror",
			log.FieldOperation, log.OpMirror,
			"months", written)
	}
	return written, nil
}

func (p *SyncProcessor) writeWithRetry(ctx context.Context, chunk []core.MonthlyAggregate) error {
	var err error
	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		if err = p.mirror.WriteAggregates(ctx, chunk); err == nil {
			return nil
		}
		p.logger.WarnContext(ctx, "Mirror write failed",
			log.FieldError, err,
			"attempt", attempt,
			"months", len(chunk))
		if attempt == p.config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopChan():
			return fmt.Errorf("sync processor stopped: %w", err)
		case <-time.After(p.config.RetryDelay):
		}
	}
	return fmt.Errorf("write %d months after %d attempts: %w", len(chunk), p.config.MaxRetries, err)
}

func (p *SyncProcessor) stopChan() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh
}

func (p *SyncProcessor) recordError(err error) {
	p.statsMu.Lock()
	p.stats.LastError = err.Error()
	p.statsMu.Unlock()
}

// Stats returns current sync statistics
func (p *SyncProcessor) Stats() SyncStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Reset forgets the watermark so the next pass mirrors everything.
func (p *SyncProcessor) Reset() {
	p.statsMu.Lock()
	p.stats.Watermark = time.Time{}
	p.statsMu.Unlock()
}
