package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kazankay/eventpipe/internal/intake"
	"github.com/kazankay/eventpipe/internal/store"
	"github.com/kazankay/eventpipe/pkg/postgres"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume scraped posts from Kafka into the raw-post store",
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	st := store.New(db)
	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	consumer := intake.New(cfg.Kafka, st)
	defer consumer.Close()
	return consumer.Start(ctx)
}
