package pending

import (
	"context"
	"sync"
	"time"

	"fintrack/internal/log"
)

// Sweepable is anything with expiring entries.
type Sweepable interface {
	Sweep() int
}

// Sweeper periodically sweeps registered stores until stopped.
type Sweeper struct {
	mu      sync.Mutex
	stores  []Sweepable
	logger  *log.Logger
	stop    chan struct{}
	stopped chan struct{}
}

func NewSweeper(logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{logger: logger.WithComponent(log.ComponentPending)}
}

// Register adds a store to the sweep set.
func (s *Sweeper) Register(store Sweepable) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores = append(s.stores, store)
}

// SweepOnce sweeps every registered store now.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	s.mu.Lock()
	stores := append([]Sweepable(nil), s.stores...)
	s.mu.Unlock()

	total := 0
	for _, st := range stores {
		total += st.Sweep()
	}
	if total > 0 {
		s.logger.DebugContext(ctx, "Expired pending entries removed",
			log.FieldOperation, log.OpSweep, "removed", total)
	}
	return total
}

// Start sweeps every interval in a goroutine.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.SweepOnce(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the sweep goroutine and waits for it.
func (s *Sweeper) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.stopped
	s.stop = nil
}
