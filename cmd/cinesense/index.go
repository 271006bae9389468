package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/cinesense/store/catalog"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed catalog movies that are not in the vector index yet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		a, err := newApp(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer a.close()

		src := catalog.OpenSource(instanceProfile.CatalogPath)
		report, err := a.indexer().IndexSource(ctx, src)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Indexed %d new movies from %s (run %s)\n", report.Indexed, src.Name(), report.RunID)
		fmt.Fprintf(out, "  catalog rows: %d, unique: %d, already indexed: %d, batches: %d, took %s\n",
			report.Total, report.Unique, report.Existing, report.Batches, report.Duration.Round(time.Millisecond))
		return nil
	},
}
