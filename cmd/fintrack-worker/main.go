package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/catalog"
	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	sheetsmem "fintrack/internal/sheets/memory"
	"fintrack/internal/sources"
	"fintrack/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting fintrack-worker", log.FieldOperation, log.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	cat, err := catalog.LoadOrDefault(cfg.CategoriesFile)
	if err != nil {
		return err
	}

	store := cli.InitStore(ctx, logger, cfg)
	defer store.Close()

	mirror, err := newMirror(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var (
		amqpClient *amqp.Client
		publisher  services.Publisher
	)
	if cfg.AMQPEnabled() {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return err
		}
		defer amqpClient.Close()
		publisher = amqpClient
	}

	imports := services.NewImportService(store, sources.DefaultRegistry(), cat, cfg.RecalcWorkers, publisher, logger)
	refresh := worker.NewRefreshWorker(store, mirror, logger)

	// catch up on anything written while the worker was down
	if err := refresh.StartupSync(ctx); err != nil {
		logger.Error("Startup sync failed", log.FieldError, err)
	}

	scheduler := worker.NewScheduler(logger)
	if err := scheduler.Add("reconcile", cfg.ReconcileSchedule, func(ctx context.Context) error {
		rep, err := imports.Reconcile(ctx)
		if rep != nil {
			logger.InfoContext(ctx, "Reconcile finished",
				log.FieldOperation, log.OpReconcile,
				"months", len(rep.Aggregates),
				"warnings", len(rep.Warnings))
		}
		return err
	}); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		g.Go(func() error {
			return amqpClient.ConsumeAggregateRefresh(gctx, refresh.HandleRefreshMessage)
		})
	} else {
		logger.Info("AMQP disabled, polling the aggregate store instead")
		processor := services.NewSyncProcessor(store, mirror, services.DefaultSyncProcessorConfig(), logger)
		if err := processor.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return processor.Stop(stopCtx)
		})
	}

	scheduler.Start()
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return scheduler.Stop(stopCtx)
	})

	return g.Wait()
}

func newMirror(ctx context.Context, cfg *config.Config, logger *log.Logger) (sheets.AggregateWriter, error) {
	if !cfg.SheetsEnabled() {
		logger.Info("Google Sheets disabled, mirroring in memory only")
		return sheetsmem.New(), nil
	}
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		OAuthClientJSON: cfg.GoogleOAuthClientJSON,
		OAuthClientFile: cfg.GoogleOAuthClientFile,
		OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Google Sheets mirror initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)
	return client, nil
}
