package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/cinesense/store/catalog"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Build the SQLite catalog and the CSV dataset from MovieLens movies.dat and ratings.dat",
	RunE: func(cmd *cobra.Command, _ []string) error {
		instanceProfile, err := loadProfile()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		source, _ := cmd.Flags().GetString("movielens")
		dbPath, _ := cmd.Flags().GetString("out-db")
		csvPath, _ := cmd.Flags().GetString("out-csv")
		force, _ := cmd.Flags().GetBool("force")

		if !filepath.IsAbs(source) {
			source = filepath.Join(instanceProfile.Data, source)
		}
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(instanceProfile.Data, dbPath)
		}
		if csvPath == "" {
			csvPath = instanceProfile.CatalogPath
		} else if !filepath.IsAbs(csvPath) {
			csvPath = filepath.Join(instanceProfile.Data, csvPath)
		}

		out := cmd.OutOrStdout()
		if !force && exists(dbPath) && exists(csvPath) {
			fmt.Fprintf(out, "Catalog already prepared (%s, %s); use --force to rebuild\n", dbPath, csvPath)
			return nil
		}

		moviesFile, err := os.Open(filepath.Join(source, "movies.dat"))
		if err != nil {
			return errors.Wrap(err, "failed to open movies.dat")
		}
		defer moviesFile.Close()
		ratingsFile, err := os.Open(filepath.Join(source, "ratings.dat"))
		if err != nil {
			return errors.Wrap(err, "failed to open ratings.dat")
		}
		defer ratingsFile.Close()

		movies, ratings, err := catalog.ParseMovieLens(moviesFile, ratingsFile)
		if err != nil {
			return err
		}
		if err := catalog.WriteSQLiteCatalog(ctx, dbPath, movies, ratings); err != nil {
			return err
		}
		if err := catalog.WriteCSVDataset(csvPath, movies, catalog.AggregateRatings(ratings)); err != nil {
			return err
		}

		fmt.Fprintf(out, "Prepared %d movies and %d ratings\n", len(movies), len(ratings))
		fmt.Fprintf(out, "  catalog: %s\n  dataset: %s\n", dbPath, csvPath)
		return nil
	},
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	prepareCmd.Flags().String("movielens", "ml-1m", "directory holding movies.dat and ratings.dat, relative to the data directory")
	prepareCmd.Flags().String("out-db", "movies.db", "SQLite catalog to write, relative to the data directory")
	prepareCmd.Flags().String("out-csv", "", "CSV dataset to write, defaults to --catalog")
	prepareCmd.Flags().Bool("force", false, "rebuild even if the outputs exist")
}
