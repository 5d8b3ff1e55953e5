package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kazankay/eventpipe/internal/dedup"
	"github.com/kazankay/eventpipe/internal/embed"
	"github.com/kazankay/eventpipe/internal/gateway"
	"github.com/kazankay/eventpipe/internal/orchestrator"
	"github.com/kazankay/eventpipe/internal/pipeline"
	"github.com/kazankay/eventpipe/internal/qdrant"
	"github.com/kazankay/eventpipe/internal/store"
	"github.com/kazankay/eventpipe/pkg/health"
	"github.com/kazankay/eventpipe/pkg/metrics"
	"github.com/kazankay/eventpipe/pkg/postgres"
	pkgredis "github.com/kazankay/eventpipe/pkg/redis"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one batch over unprocessed posts",
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0,
		"maximum posts to process (0 uses pipeline.batchLimit from config)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	st := store.New(db)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, embedding cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	index := qdrant.NewClient(cfg.Qdrant)
	dd := dedup.New(index, cfg.Qdrant, m)
	if err := dd.Init(ctx); err != nil {
		return fmt.Errorf("preparing similarity index: %w", err)
	}

	gw, err := gateway.New(cfg.LLM, m)
	if err != nil {
		return err
	}
	embClient, err := gateway.NewEmbeddingClient(cfg.LLM, cfg.Embedding)
	if err != nil {
		return err
	}
	cache := embed.NewCache(embClient, redisClient, cfg.Embedding.CacheTTL, m)

	var posters pipeline.PosterGenerator
	if cfg.Pipeline.GeneratePosters {
		pc, err := gateway.NewPosterClient(cfg.LLM)
		if err != nil {
			return err
		}
		posters = pc
	}

	pl := pipeline.New(gw, posters, m)
	orch := orchestrator.New(pl, cache, dd, st, m)

	if cfg.Metrics.Enabled {
		checker := health.NewChecker()
		checker.Register("postgres", db.Ping)
		if redisClient != nil {
			checker.Register("redis", redisClient.Ping)
		}
		checker.Register("qdrant", func(ctx context.Context) error {
			_, err := index.CollectionInfo(ctx, cfg.Qdrant.Collection)
			return err
		})
		shutdown := metrics.StartServer(cfg.Metrics.Port, checker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()
	}

	limit := processLimit
	if limit <= 0 {
		limit = cfg.Pipeline.BatchLimit
	}

	stats, runErr := orch.ProcessBatch(ctx, limit)
	cmd.Printf("batch complete: %d posts, %d succeeded, %d failed, %d events\n",
		stats.Total, stats.Success, stats.Errors, stats.EventsExtracted)
	return runErr
}
