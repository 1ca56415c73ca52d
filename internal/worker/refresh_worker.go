// Package worker holds the background jobs run by fintrack-worker: the
// AMQP refresh handler that mirrors rewritten months and the cron scheduler
// for reconcile and pending sweeps.
package worker

import (
	"context"
	"fmt"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

// RefreshWorker mirrors aggregates named by refresh messages.
type RefreshWorker struct {
	store  storage.AggregateStore
	mirror sheets.AggregateWriter
	logger *log.Logger
}

func NewRefreshWorker(store storage.AggregateStore, mirror sheets.AggregateWriter, logger *log.Logger) *RefreshWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &RefreshWorker{
		store:  store,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRefreshMessage reads the current aggregate of every month in msg and
// writes them to the mirror in one call. Months with no stored aggregate are
// skipped. An error makes the consumer requeue the message.
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.AggregateRefreshMessage) error {
	months := msg.Months()
	w.logger.InfoContext(ctx, "Processing refresh message",
		log.FieldBatchID, msg.BatchID,
		"reason", msg.Reason,
		"months", len(months))

	aggs := make([]core.MonthlyAggregate, 0, len(months))
	for _, month := range months {
		agg, err := w.store.GetAggregate(ctx, month)
		if err != nil {
			return fmt.Errorf("load aggregate %s: %w", month, err)
		}
		if agg == nil {
			w.logger.WarnContext(ctx, "No aggregate stored for refreshed month", log.FieldMonth, month)
			continue
		}
		aggs = append(aggs, *agg)
	}
	if len(aggs) == 0 {
		return nil
	}

	if err := w.mirror.WriteAggregates(ctx, aggs); err != nil {
		return fmt.Errorf("mirror %d months: %w", len(aggs), err)
	}

	w.logger.InfoContext(ctx, "Mirrored refreshed months",
		log.FieldOperation, log.OpMirror,
		log.FieldBatchID, msg.BatchID,
		"months", len(aggs))
	return nil
}

// StartupSync mirrors every stored aggregate. It recovers from messages
// lost while the worker was down.
func (w *RefreshWorker) StartupSync(ctx context.Context) error {
	aggs, err := w.store.ListAggregates(ctx)
	if err != nil {
		return fmt.Errorf("list aggregates: %w", err)
	}
	if len(aggs) == 0 {
		w.logger.InfoContext(ctx, "No aggregates to mirror on startup")
		return nil
	}
	if err := w.mirror.WriteAggregates(ctx, aggs); err != nil {
		return fmt.Errorf("startup mirror: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		log.FieldOperation, log.OpStartup,
		"months", len(aggs))
	return nil
}
