package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fintrack/internal/amqp"
	"fintrack/internal/balance"
	"fintrack/internal/catalog"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/pending"
	"fintrack/internal/services"
	"fintrack/internal/sources"
	"fintrack/internal/storage"
)

const usage = `usage: fintrack <command> [flags]

commands:
  import      ingest a bank statement CSV
  edit        change a stored transaction
  recompute   rebuild aggregates for months
  reconcile   rebuild every month with transactions
  historical  seed aggregates from an Expenses workbook
  show        print a month's aggregate
  balance     submit, confirm, or summarize balance snapshots
`

// app holds the wired services for one invocation.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	store     storage.Store
	catalog   *catalog.Catalog
	imports   *services.ImportService
	balances  *balance.Service
	sweeper   *pending.Sweeper
	publisher *amqp.Client
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentCLI)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "fintrack %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	cat, err := catalog.LoadOrDefault(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	store := cli.InitStore(ctx, logger, cfg)

	policy, err := balance.NewPolicy(cfg.BalanceDupThreshold, cfg.BalanceWarnThreshold)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, catalog: cat}

	// the CLI still works without a broker; the worker's startup sync catches up
	var publisher services.Publisher
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, refresh messages disabled", log.FieldError, err)
		} else {
			a.publisher = client
			publisher = client
		}
	}

	a.imports = services.NewImportService(store, sources.DefaultRegistry(), cat, cfg.RecalcWorkers, publisher, logger)
	a.balances = balance.NewService(store, policy, cfg.PendingTTL, cfg.PendingMaxEntries, logger)

	a.sweeper = pending.NewSweeper(logger)
	a.sweeper.Register(a.balances.Pending())
	a.sweeper.Start(ctx, cfg.PendingSweepInterval)
	return a, nil
}

func (a *app) close() {
	a.sweeper.Stop()
	if a.publisher != nil {
		a.publisher.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", log.FieldError, err)
	}
}

var errUsage = errors.New("usage")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "import":
		return a.cmdImport(ctx, args)
	case "edit":
		return a.cmdEdit(ctx, args)
	case "recompute":
		return a.cmdRecompute(ctx, args)
	case "reconcile":
		return a.cmdReconcile(ctx, args)
	case "historical":
		return a.cmdHistorical(ctx, args)
	case "show":
		return a.cmdShow(ctx, args)
	case "balance":
		return a.cmdBalance(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return errUsage
	}
}
