package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print vector index statistics",
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

		stats, err := a.store.DescribeIndex(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Index:     %s\n", stats.Name)
		fmt.Fprintf(out, "Vectors:   %d\n", stats.TotalVectorCount)
		fmt.Fprintf(out, "Dimension: %d\n", stats.Dimension)
		fmt.Fprintf(out, "Metric:    %s\n", stats.Metric)
		fmt.Fprintf(out, "Driver:    %s\n", instanceProfile.Driver)
		return nil
	},
}
