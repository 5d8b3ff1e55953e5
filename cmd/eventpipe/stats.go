package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kazankay/eventpipe/internal/dedup"
	"github.com/kazankay/eventpipe/internal/qdrant"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print similarity-index statistics",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dd := dedup.New(qdrant.NewClient(cfg.Qdrant), cfg.Qdrant, nil)
	stats, err := dd.Stats(ctx)
	if err != nil {
		return fmt.Errorf("fetching index stats: %w", err)
	}

	if statsJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Printf("collection:  %s\n", cfg.Qdrant.Collection)
	cmd.Printf("events:      %d\n", stats.TotalEvents)
	cmd.Printf("vector size: %d\n", stats.VectorSize)
	cmd.Printf("distance:    %s\n", stats.Distance)
	return nil
}
