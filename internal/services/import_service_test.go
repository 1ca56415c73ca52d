package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/amqp"
	"fintrack/internal/catalog"
	"fintrack/internal/ingest"
	"fintrack/internal/sources"
	"fintrack/internal/storage/memory"
)

const chaseStatement = `Transaction Date,Post Date,Description,Category,Type,Amount,Memo
03/01/2024,03/02/2024,STARBUCKS 123,Food & Drink,Sale,-4.50,
03/02/2024,03/03/2024,PAYROLL ACME,Pay,Credit,2500.00,
03/03/2024,03/03/2024,Zelle from Alex,,Credit,40.00,
03/04/2024,03/04/2024,Zelle to Sam,,Debit,-25.00,
03/05/2024,03/05/2024,AMAZON REFUND,Shopping,Return,12.00,
`

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.AggregateRefreshMessage
	err  error
}

func (p *fakePublisher) PublishAggregateRefresh(_ context.Context, msg *amqp.AggregateRefreshMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func newTestService(pub Publisher) (*ImportService, *memory.Store) {
	store := memory.New()
	svc := NewImportService(store, sources.DefaultRegistry(), catalog.Default(), 2, pub, nil)
	return svc, store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestImportService_Import(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newTestService(pub)

	report, err := svc.Import(ctx, ImportRequest{Filename: "chase.csv", Data: []byte(chaseStatement)})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Source != "chase" {
		t.Errorf("Source = %q, want chase (detected)", report.Source)
	}
	if report.Ingest.Accepted != 5 {
		t.Errorf("Accepted = %d, want 5", report.Ingest.Accepted)
	}
	if report.PreviousUpload != nil {
		t.Errorf("PreviousUpload = %+v, want nil on first upload", report.PreviousUpload)
	}

	agg, err := store.GetAggregate(ctx, "2024-03")
	if err != nil || agg == nil {
		t.Fatalf("GetAggregate() = %v, %v", agg, err)
	}
	checks := map[string]string{"Dining": "4.5", "Zelle": "-15", "Shopping": "-12", "Pay": "-2500"}
	for cat, want := range checks {
		if got := agg.CategoryTotals[cat]; !got.Equal(dec(want)) {
			t.Errorf("%s total = %s, want %s", cat, got, want)
		}
	}

	if pub.count() != 1 {
		t.Fatalf("published %d messages, want 1", pub.count())
	}
	msg := pub.msgs[0]
	if msg.Reason != amqp.ReasonIngest || msg.BatchID != report.Batch.ID {
		t.Errorf("message = %+v", msg)
	}
	if !msg.ScopeSet().Contains("2024-03", "Dining") {
		t.Errorf("message scopes = %v, missing 2024-03/Dining", msg.Scopes)
	}
}

func TestImportService_ReuploadWarnsAndDedupes(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(nil)

	if _, err := svc.Import(ctx, ImportRequest{Filename: "a.csv", Data: []byte(chaseStatement)}); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	report, err := svc.Import(ctx, ImportRequest{Source: "chase", Filename: "b.csv", Data: []byte(chaseStatement)})
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}

	if report.PreviousUpload == nil || report.PreviousUpload.Filename != "a.csv" {
		t.Errorf("PreviousUpload = %+v, want a.csv", report.PreviousUpload)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected a re-upload warning")
	}
	if report.Ingest.Accepted != 0 || len(report.Ingest.Duplicates) != 5 {
		t.Errorf("Accepted = %d, Duplicates = %d; want 0, 5", report.Ingest.Accepted, len(report.Ingest.Duplicates))
	}

	txs, err := store.ListTransactionsByMonth(ctx, "2024-03")
	if err != nil {
		t.Fatalf("ListTransactionsByMonth() error = %v", err)
	}
	if len(txs) != 5 {
		t.Errorf("stored %d transactions, want 5", len(txs))
	}
}

func TestImportService_PublishFailureIsNotFatal(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	svc, _ := newTestService(pub)

	report, err := svc.Import(context.Background(), ImportRequest{Data: []byte(chaseStatement)})
	if err != nil {
		t.Fatalf("Import() error = %v, want nil when publish fails", err)
	}
	if report.Ingest.Accepted != 5 {
		t.Errorf("Accepted = %d, want 5", report.Ingest.Accepted)
	}
}

func TestImportService_UnknownSource(t *testing.T) {
	svc, _ := newTestService(nil)

	_, err := svc.Import(context.Background(), ImportRequest{Source: "monzo", Data: []byte(chaseStatement)})
	if !errors.Is(err, sources.ErrUnknownSource) {
		t.Errorf("Import() error = %v, want ErrUnknownSource", err)
	}
}

func TestImportService_Retry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	report, err := svc.Import(ctx, ImportRequest{Data: []byte(chaseStatement)})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	again, err := svc.Retry(ctx, report.Batch)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if again.Ingest.Accepted != 0 || len(again.Ingest.Duplicates) != 5 {
		t.Errorf("Retry Accepted = %d, Duplicates = %d; want 0, 5", again.Ingest.Accepted, len(again.Ingest.Duplicates))
	}
}

func TestImportService_EditTransaction(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newTestService(pub)

	report, err := svc.Import(ctx, ImportRequest{Data: []byte(chaseStatement)})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	coffeeID := report.Ingest.Rows[0].TxID
	if coffeeID == 0 {
		t.Fatal("first row has no transaction ID")
	}

	groceries := "Groceries"
	tx, _, err := svc.EditTransaction(ctx, coffeeID, ingest.Edit{Category: &groceries})
	if err != nil {
		t.Fatalf("EditTransaction() error = %v", err)
	}
	if tx.Category != "Groceries" || tx.Rank != 1 || tx.BatchID != report.Batch.ID {
		t.Errorf("edited tx = %+v, want rank and batch kept", tx)
	}

	agg, err := store.GetAggregate(ctx, "2024-03")
	if err != nil || agg == nil {
		t.Fatalf("GetAggregate() = %v, %v", agg, err)
	}
	if !agg.CategoryTotals["Dining"].IsZero() {
		t.Errorf("Dining = %s, want 0 after moving the row", agg.CategoryTotals["Dining"])
	}
	if !agg.CategoryTotals["Groceries"].Equal(dec("4.5")) {
		t.Errorf("Groceries = %s, want 4.5", agg.CategoryTotals["Groceries"])
	}
	if pub.count() != 2 || pub.msgs[1].Reason != amqp.ReasonEdit {
		t.Errorf("expected an edit refresh message, got %d messages", pub.count())
	}

	bogus := "Bogus"
	if _, _, err := svc.EditTransaction(ctx, coffeeID, ingest.Edit{Category: &bogus}); !errors.Is(err, ingest.ErrMalformedRecord) {
		t.Errorf("EditTransaction(unknown category) error = %v, want ErrMalformedRecord", err)
	}
}

func TestImportService_Reconcile(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newTestService(pub)

	if _, err := svc.Import(ctx, ImportRequest{Data: []byte(chaseStatement)}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	rep, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if months := rep.Months(); len(months) != 1 || months[0] != "2024-03" {
		t.Errorf("Reconcile months = %v, want [2024-03]", months)
	}
	if pub.count() != 2 || pub.msgs[1].Reason != amqp.ReasonReconcile {
		t.Errorf("expected a reconcile refresh message")
	}
}

func TestImportService_RecomputeMonths(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(nil)

	if _, err := svc.Import(ctx, ImportRequest{Data: []byte(chaseStatement)}); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	rep, err := svc.RecomputeMonths(ctx, []string{"2024-03", "2030-01"})
	if err != nil {
		t.Fatalf("RecomputeMonths() error = %v", err)
	}
	if months := rep.Months(); len(months) != 1 || months[0] != "2024-03" {
		t.Errorf("months = %v, want [2024-03]", months)
	}

	if _, err := svc.RecomputeMonths(ctx, []string{"2024-13"}); err == nil {
		t.Error("RecomputeMonths(invalid) error = nil")
	}
}

func TestImportService_EditedRowsStayDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(nil)
	const twins = "Transaction Date,Post Date,Description,Category,Type,Amount,Memo\n" +
		"03/01/2024,03/02/2024,STARBUCKS 123,Food & Drink,Sale,-4.50,\n" +
		"03/01/2024,03/02/2024,STARBUCKS 123,Food & Drink,Sale,-4.50,\n"

	report, err := svc.Import(ctx, ImportRequest{Filename: "twins.csv", Data: []byte(twins)})
	if err != nil || report.Ingest.Accepted != 2 {
		t.Fatalf("Import() = %+v, %v", report, err)
	}

	groceries := "Groceries"
	for _, rr := range report.Ingest.Rows {
		if _, _, err := svc.EditTransaction(ctx, rr.TxID, ingest.Edit{Category: &groceries}); err != nil {
			t.Fatalf("EditTransaction(%d) error = %v", rr.TxID, err)
		}
	}

	again, err := svc.Import(ctx, ImportRequest{Filename: "twins-again.csv", Data: []byte(twins)})
	if err != nil {
		t.Fatalf("re-Import() error = %v", err)
	}
	if again.Ingest.Accepted != 0 || len(again.Ingest.Duplicates) != 2 {
		t.Errorf("re-Import Accepted = %d, Duplicates = %d; want 0, 2",
			again.Ingest.Accepted, len(again.Ingest.Duplicates))
	}

	agg, err := store.GetAggregate(ctx, "2024-03")
	if err != nil || agg == nil {
		t.Fatalf("GetAggregate() = %v, %v", agg, err)
	}
	if !agg.CategoryTotals["Groceries"].Equal(dec("9")) || !agg.CategoryTotals["Dining"].IsZero() {
		t.Errorf("totals = %v, want Groceries 9 and Dining 0", agg.CategoryTotals)
	}
}
