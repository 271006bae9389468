package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/hrygo/cinesense/ai/core/recommend"
)

var recommendCmd = &cobra.Command{
	Use:   `recommend "<query>"`,
	Short: "Print recommendations for a free-text query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		topN, _ := cmd.Flags().GetInt("top-n")
		genre, _ := cmd.Flags().GetString("genre")
		minRating, _ := cmd.Flags().GetFloat64("min-rating")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer a.close()

		recommender, err := a.recommender(ctx)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		results, err := recommender.Recommend(ctx, query, recommend.FilterCriteria{
			GenreFilter: genre,
			MinRating:   minRating,
			TopN:        topN,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No recommendations found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTITLE\tGENRES\tRATING\tSCORE")
		for i, r := range results {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%.2f\n", i+1, r.Title, r.Genres, r.Rating, r.Score)
		}
		return w.Flush()
	},
}

func init() {
	recommendCmd.Flags().Int("top-n", 5, "number of recommendations")
	recommendCmd.Flags().String("genre", "", "only movies whose genres contain this text")
	recommendCmd.Flags().Float64("min-rating", 0, "minimum rating (compared at whole-number granularity)")
	recommendCmd.Flags().Bool("json", false, "print JSON")
}
