// cachectl administers the generated-code cache: list cached sources or
// clear one source key.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ledgerline/statement-engine/internal/codecache"
	cachebq "github.com/ledgerline/statement-engine/internal/codecache/bq"
	"github.com/ledgerline/statement-engine/internal/config"
	"github.com/ledgerline/statement-engine/internal/logger"
)

func main() {
	list := flag.Bool("list", false, "list cached sources with version counts")
	clear := flag.String("clear", "", "clear all cached versions for this source key")
	flag.Parse()

	if *list == (*clear != "") {
		fmt.Fprintln(os.Stderr, "usage: cachectl -list | -clear <sourceKey>")
		os.Exit(2)
	}

	log := logger.New()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.ProjectID == "" {
		log.Fatal().Msg("ENGINE_PROJECT_ID must be set; only the durable cache can be administered")
	}

	ctx := context.Background()
	store, err := cachebq.NewStore(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open code cache store")
	}
	defer store.Close()
	cache := codecache.New(store)

	if *list {
		sources, err := cache.Sources(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list cached sources")
		}
		for _, s := range sources {
			fmt.Printf("%-40s %d version(s)\n", s.SourceKey, s.VersionCount)
		}
		return
	}

	removed, err := cache.Clear(ctx, *clear)
	if err != nil {
		log.Fatal().Err(err).Str("source_key", *clear).Msg("Failed to clear cache")
	}
	fmt.Printf("removed %d version(s) for %s\n", removed, *clear)
}
