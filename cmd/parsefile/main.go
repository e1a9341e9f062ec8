// parsefile parses a single local statement file and prints a summary.
// Useful for trying the engine against a statement without the worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/statement-engine/internal/agent"
	"github.com/ledgerline/statement-engine/internal/categorize"
	"github.com/ledgerline/statement-engine/internal/codecache"
	cachemem "github.com/ledgerline/statement-engine/internal/codecache/inmemory"
	"github.com/ledgerline/statement-engine/internal/config"
	"github.com/ledgerline/statement-engine/internal/llm"
	"github.com/ledgerline/statement-engine/internal/logger"
	"github.com/ledgerline/statement-engine/internal/pipeline"
	storemem "github.com/ledgerline/statement-engine/internal/pipeline/inmemory"
	"github.com/ledgerline/statement-engine/internal/sandbox"
)

func main() {
	source := flag.String("source", "", "institution name used as the cache source key")
	password := flag.String("password", "", "password for protected documents")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: parsefile [-source name] [-password pw] <statement-file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("path", path).Msg("Failed to read statement file")
	}

	ctx := context.Background()
	model, err := llm.NewGemini(ctx, cfg.ModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}
	summaryModel, err := llm.NewGemini(ctx, cfg.SummaryModelName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create summary model client")
	}

	cache := codecache.New(cachemem.NewStore())
	executor := sandbox.NewExecutor(sandbox.Capabilities{
		ParseHelpers: true,
		Timeout:      cfg.SandboxTimeout,
	})
	ag := agent.New(cache, executor, model, logger.ForComponent(log, "agent"),
		agent.WithStepBudget(cfg.StepBudget),
		agent.WithTolerance(decimal.NewFromFloat(cfg.ValidationTolerance)))
	categorizer := categorize.New(model, logger.ForComponent(log, "categorize")).
		WithBatchSize(cfg.CategorizeBatchSize)

	store := storemem.NewStore()
	orch := pipeline.New(model, summaryModel, ag, cache, store, categorizer,
		logger.ForComponent(log, "pipeline"))

	statementID := filepath.Base(path)
	result, err := orch.ParseStatement(ctx, pipeline.ParseRequest{
		StatementID: statementID,
		FileName:    filepath.Base(path),
		Data:        data,
		SourceHint:  *source,
		Password:    *password,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Parse failed")
	}

	fmt.Printf("status: %s\n", result.Status)
	fmt.Printf("transactions: %d\n", result.TransactionCount)
	if result.HoldingCount > 0 {
		fmt.Printf("holdings: %d\n", result.HoldingCount)
	}
	if result.PeriodStart != "" {
		fmt.Printf("period: %s to %s\n", result.PeriodStart, result.PeriodEnd)
	}
	for _, tx := range store.Transactions(statementID) {
		fmt.Printf("  %s  %-8s %10.2f  %-12s %s\n", tx.Date, tx.Type, tx.Amount, tx.Category, tx.Description)
	}
}
