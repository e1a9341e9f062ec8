package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/statement-engine/internal/agent"
	"github.com/ledgerline/statement-engine/internal/categorize"
	"github.com/ledgerline/statement-engine/internal/codecache"
	cachebq "github.com/ledgerline/statement-engine/internal/codecache/bq"
	cachemem "github.com/ledgerline/statement-engine/internal/codecache/inmemory"
	"github.com/ledgerline/statement-engine/internal/config"
	"github.com/ledgerline/statement-engine/internal/gcs"
	"github.com/ledgerline/statement-engine/internal/jobs"
	jobsmem "github.com/ledgerline/statement-engine/internal/jobs/inmemory"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/logger"
	"github.com/ledgerline/statement-engine/internal/pipeline"
	storemem "github.com/ledgerline/statement-engine/internal/pipeline/inmemory"
	"github.com/ledgerline/statement-engine/internal/sandbox"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model, err := llm.NewGemini(ctx, cfg.ModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}
	summaryModel, err := llm.NewGemini(ctx, cfg.SummaryModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create summary model client")
	}

	// The code cache is durable when a project is configured, in-memory
	// otherwise.
	var cacheStore codecache.Store
	if cfg.ProjectID != "" {
		bqStore, err := cachebq.NewStore(ctx, cfg.ProjectID, cfg.Dataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create code cache store")
		}
		defer bqStore.Close()
		cacheStore = bqStore
	} else {
		log.Warn().Msg("No project configured, code cache will not survive restarts")
		cacheStore = cachemem.NewStore()
	}
	cache := codecache.New(cacheStore)

	executor := sandbox.NewExecutor(sandbox.Capabilities{
		ParseHelpers: true,
		Timeout:      cfg.SandboxTimeout,
	})
	ag := agent.New(cache, executor, model, logger.ForComponent(log, "agent"),
		agent.WithStepBudget(cfg.StepBudget),
		agent.WithTolerance(decimal.NewFromFloat(cfg.ValidationTolerance)))
	categorizer := categorize.New(model, logger.ForComponent(log, "categorize")).
		WithBatchSize(cfg.CategorizeBatchSize)

	txStore := storemem.NewStore()
	orch := pipeline.New(model, summaryModel, ag, cache, txStore, categorizer,
		logger.ForComponent(log, "pipeline"))

	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(100, jobStore)

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job *jobs.ParseStatementJob) error {
		jobLog := log.With().Str("job_id", job.JobID).Logger()
		ctx = logger.WithContext(ctx, jobLog)

		jobLog.Info().
			Str("statement_id", job.StatementID).
			Str("gcs_uri", job.GCSURI).
			Msg("Processing parse job")

		data, err := gcs.Fetch(ctx, job.GCSURI)
		if err != nil {
			jobLog.Error().Err(err).Msg("Failed to fetch statement file")
			return err
		}

		result, err := orch.ParseStatement(ctx, pipeline.ParseRequest{
			StatementID: job.StatementID,
			FileName:    job.FileName,
			Data:        data,
			SourceHint:  job.SourceHint,
			Password:    job.Password,
		})
		if err != nil {
			jobLog.Error().Err(err).Msg("Statement parse failed")
			return err
		}

		jobLog.Info().
			Str("status", result.Status).
			Int("transactions", result.TransactionCount).
			Msg("Statement parse completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	failed, err := jobStore.ListJobs(shutdownCtx, jobs.JobFilter{Status: jobs.JobStatusFailed})
	if err != nil {
		log.Error().Err(err).Msg("Failed to list failed jobs")
	}
	for _, job := range failed {
		log.Warn().
			Str("job_id", job.JobID).
			Str("statement_id", job.StatementID).
			Str("error", job.Error).
			Msg("Job failed during this run")
	}

	log.Info().Msg("Worker service exited")
}
