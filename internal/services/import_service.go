package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"fintrack/internal/aggregate"
	"fintrack/internal/amqp"
	"fintrack/internal/catalog"
	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/log"
	"fintrack/internal/sources"
	"fintrack/internal/storage"
)

// Publisher announces rewritten aggregates. *amqp.Client satisfies it.
type Publisher interface {
	PublishAggregateRefresh(ctx context.Context, msg *amqp.AggregateRefreshMessage) error
}

// ImportRequest is one uploaded statement file.
type ImportRequest struct {
	// Source is the institution tag; empty means detect from the header.
	Source   string
	Filename string
	Data     []byte
}

// ImportReport is what an upload produced.
type ImportReport struct {
	// Batch is kept so a partially failed upload can be retried as is.
	Batch     ingest.Batch
	Source    string
	Ingest    *ingest.Result
	Recompute *aggregate.Report
	// PreviousUpload is set when the same file content was imported before.
	PreviousUpload *core.UploadRecord
	Warnings       []string
}

// ImportService orchestrates statement uploads: parse with the source
// adapter, assign categories, ingest, recompute the touched months and
// publish a refresh message.
type ImportService struct {
	registry   *sources.Registry
	catalog    *catalog.Catalog
	ingestor   *ingest.Ingestor
	recalc     *aggregate.Recalculator
	historical *aggregate.HistoricalImporter
	uploads    storage.UploadStore
	store      storage.TransactionStore
	publisher  Publisher
	logger     *log.Logger
}

// NewImportService wires the upload workflow. publisher may be nil.
func NewImportService(
	store storage.Store,
	registry *sources.Registry,
	cat *catalog.Catalog,
	workers int,
	publisher Publisher,
	logger *log.Logger,
) *ImportService {
	if logger == nil {
		logger = log.Default()
	}
	return &ImportService{
		registry:   registry,
		catalog:    cat,
		ingestor:   ingest.NewIngestor(store, logger),
		recalc:     aggregate.NewRecalculator(store, cat.Lookup, workers, logger),
		historical: aggregate.NewHistoricalImporter(store, cat, logger),
		uploads:    store,
		store:      store,
		publisher:  publisher,
		logger:     logger.WithComponent(log.ComponentIngest),
	}
}

// Recalculator exposes the aggregate recalculator for scheduled jobs.
func (s *ImportService) Recalculator() *aggregate.Recalculator {
	return s.recalc
}

// Import parses req and ingests it as a new batch. Re-uploading the same
// file is allowed; the report carries a warning and every row comes back as
// a duplicate.
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportReport, error) {
	fileHash := hashFile(req.Data)
	report := &ImportReport{}

	prev, err := s.uploads.FindUpload(ctx, fileHash)
	if err != nil {
		return nil, fmt.Errorf("find upload: %w", err)
	}
	if prev != nil {
		report.PreviousUpload = prev
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"file %q was already imported on %s as %s",
			prev.Filename, prev.ImportedAt.Format(time.DateOnly), prev.BatchID))
		s.logger.WarnContext(ctx, "Source file imported before",
			"file_hash", fileHash,
			log.FieldBatchID, prev.BatchID)
	}

	adapter, rows, err := s.registry.Parse(req.Source, req.Data)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Category = s.catalog.Guess(rows[i].Description, rows[i].Category)
	}

	report.Source = adapter.Tag()
	report.Batch = ingest.NewBatch(adapter.Tag(), rows)
	if err := s.run(ctx, report); err != nil {
		return report, err
	}

	upload := core.UploadRecord{
		FileHash:   fileHash,
		Filename:   req.Filename,
		Source:     adapter.Tag(),
		BatchID:    report.Batch.ID,
		ImportedAt: report.Batch.ImportedAt,
	}
	if prev == nil {
		if err := s.uploads.RecordUpload(ctx, upload); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("record upload: %v", err))
			s.logger.WarnContext(ctx, "Failed to record upload", log.FieldError, err)
		}
	}
	return report, nil
}

// ImportReader is Import for callers holding a stream.
func (s *ImportService) ImportReader(ctx context.Context, source, filename string, r io.Reader) (*ImportReport, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return s.Import(ctx, ImportRequest{Source: source, Filename: filename, Data: data})
}

// Retry re-runs a batch with its original ID and import time. Rows stored
// by the earlier attempt are classified as duplicates.
func (s *ImportService) Retry(ctx context.Context, batch ingest.Batch) (*ImportReport, error) {
	report := &ImportReport{Batch: batch, Source: batch.Source}
	if err := s.run(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *ImportService) run(ctx context.Context, report *ImportReport) error {
	res, err := s.ingestor.Ingest(ctx, report.Batch)
	if err != nil {
		return fmt.Errorf("ingest batch: %w", err)
	}
	report.Ingest = res
	for _, f := range res.Failed {
		report.Warnings = append(report.Warnings, fmt.Sprintf("line %d failed: %v", f.Line, f.Err))
	}
	for _, r := range res.Rejected {
		report.Warnings = append(report.Warnings, fmt.Sprintf("line %d rejected: %v", r.Line, r.Err))
	}

	if res.Scopes.Empty() {
		return nil
	}

	rep, err := s.recalc.Recompute(ctx, res.Scopes)
	report.Recompute = rep
	if rep != nil {
		for _, w := range rep.Warnings {
			report.Warnings = append(report.Warnings, w.String())
		}
	}
	if err != nil {
		return fmt.Errorf("recompute aggregates: %w", err)
	}

	s.publish(ctx, amqp.NewAggregateRefreshMessage(res.BatchID, amqp.ReasonIngest, res.Scopes))
	return nil
}

// EditTransaction applies e to a stored transaction and refreshes both the
// old and the new (month, category).
func (s *ImportService) EditTransaction(ctx context.Context, id int64, e ingest.Edit) (*core.Transaction, *aggregate.Report, error) {
	if e.Category != nil {
		if _, ok := s.catalog.Lookup(*e.Category); !ok {
			return nil, nil, fmt.Errorf("%w: unknown category %q", ingest.ErrMalformedRecord, *e.Category)
		}
	}

	tx, scopes, err := s.ingestor.Edit(ctx, id, e)
	if err != nil {
		return nil, nil, err
	}

	rep, err := s.recalc.Recompute(ctx, scopes)
	if err != nil {
		return tx, rep, fmt.Errorf("recompute aggregates: %w", err)
	}
	s.publish(ctx, amqp.NewAggregateRefreshMessage("", amqp.ReasonEdit, scopes))
	return tx, rep, nil
}

// Reconcile recomputes every month with transactions.
func (s *ImportService) Reconcile(ctx context.Context) (*aggregate.Report, error) {
	rep, err := s.recalc.RecomputeAll(ctx)
	if rep != nil && len(rep.Aggregates) > 0 {
		s.publish(ctx, amqp.NewAggregateRefreshMessage("", amqp.ReasonReconcile, scopesOf(rep.Aggregates)))
	}
	return rep, err
}

// RecomputeMonths rebuilds every category stored for the given months.
func (s *ImportService) RecomputeMonths(ctx context.Context, months []string) (*aggregate.Report, error) {
	scopes := core.NewScopeSet()
	for _, month := range months {
		if _, _, err := core.ParseMonthKey(month); err != nil {
			return nil, err
		}
		cats, err := s.store.ListCategoriesForMonth(ctx, month)
		if err != nil {
			return nil, fmt.Errorf("list categories for %s: %w", month, err)
		}
		for _, c := range cats {
			scopes.Add(month, c)
		}
	}
	if scopes.Empty() {
		return &aggregate.Report{}, nil
	}

	rep, err := s.recalc.Recompute(ctx, scopes)
	if rep != nil && len(rep.Aggregates) > 0 {
		s.publish(ctx, amqp.NewAggregateRefreshMessage("", amqp.ReasonReconcile, scopesOf(rep.Aggregates)))
	}
	return rep, err
}

// ImportHistorical seeds aggregates from a workbook.
func (s *ImportService) ImportHistorical(ctx context.Context, r io.Reader, force bool) (*aggregate.ImportResult, error) {
	res, err := s.historical.Import(ctx, r, force)
	if err != nil || res.Skipped || len(res.Months) == 0 {
		return res, err
	}

	scopes := core.NewScopeSet()
	for _, month := range res.Months {
		for _, name := range s.catalog.Names() {
			scopes.Add(month, name)
		}
	}
	s.publish(ctx, amqp.NewAggregateRefreshMessage("", amqp.ReasonHistorical, scopes))
	return res, nil
}

func (s *ImportService) publish(ctx context.Context, msg *amqp.AggregateRefreshMessage) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "AMQP publisher not configured, skipping refresh message")
		return
	}
	// aggregates are already stored; a lost message is repaired by reconcile
	if err := s.publisher.PublishAggregateRefresh(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish aggregate refresh",
			log.FieldError, err,
			log.FieldBatchID, msg.BatchID,
			"reason", msg.Reason,
			"circuit_open", errors.Is(err, amqp.ErrCircuitOpen))
	}
}

func scopesOf(aggs []core.MonthlyAggregate) core.ScopeSet {
	scopes := core.NewScopeSet()
	for _, a := range aggs {
		for _, c := range a.Categories() {
			scopes.Add(a.MonthKey, c)
		}
	}
	return scopes
}

func hashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
