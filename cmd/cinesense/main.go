package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/cinesense/internal/profile"
	"github.com/hrygo/cinesense/internal/version"
	"github.com/hrygo/cinesense/server"
)

var (
	rootCmd = &cobra.Command{
		Use:   "cinesense",
		Short: `Semantic movie recommendations: index a movie catalog, then ask for films in plain words.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Systemd units pass their environment explicitly.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			if configFile := viper.GetString("config"); configFile != "" {
				viper.SetConfigFile(configFile)
				if err := viper.ReadInConfig(); err != nil {
					return errors.Wrapf(err, "failed to read config file %s", configFile)
				}
			}
			setupLogger(viper.GetString("mode"), viper.GetString("log-level"))
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP recommendation service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8080)
	viper.SetDefault("index", "movies")
	viper.SetDefault("dimension", 384)
	viper.SetDefault("metric", "cosine")
	viper.SetDefault("catalog", "movie_dataset.csv")

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to a YAML config file")
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("addr", "", "address of server")
	flags.Int("port", 8080, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "vector store driver (memory, sqlite, badger, postgres)")
	flags.String("dsn", "", "vector store source name (file path for sqlite/badger, URL for postgres)")
	flags.String("index", "movies", "vector index name")
	flags.Int("dimension", 384, "embedding dimension of the index")
	flags.String("metric", "cosine", "similarity metric (cosine, dotproduct, euclidean)")
	flags.String("catalog", "movie_dataset.csv", "catalog dataset (.csv or SQLite .db), relative to the data directory")
	flags.String("ratings", "", "rating source, defaults to the catalog")

	for _, key := range []string{
		"config", "mode", "log-level", "addr", "port", "data", "driver", "dsn",
		"index", "dimension", "metric", "catalog", "ratings",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("cinesense")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, indexCmd, recommendCmd, statsCmd, prepareCmd, versionCmd)
}

// loadProfile builds and validates the profile from flags, env and config file.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:           viper.GetString("mode"),
		Addr:           viper.GetString("addr"),
		Port:           viper.GetInt("port"),
		LogLevel:       viper.GetString("log-level"),
		Data:           viper.GetString("data"),
		Driver:         viper.GetString("driver"),
		DSN:            viper.GetString("dsn"),
		IndexName:      viper.GetString("index"),
		IndexDimension: viper.GetInt("dimension"),
		IndexMetric:    viper.GetString("metric"),
		CatalogPath:    viper.GetString("catalog"),
		RatingsPath:    viper.GetString("ratings"),
		Version:        version.GetCurrentVersion(viper.GetString("mode")),
	}
	instanceProfile.FromEnv()
	if err := instanceProfile.Validate(); err != nil {
		return nil, err
	}
	return instanceProfile, nil
}

func setupLogger(mode, level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if mode == "prod" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func runServe(parent context.Context) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	a, err := newApp(ctx, instanceProfile)
	if err != nil {
		return err
	}
	recommender, err := a.recommender(ctx)
	if err != nil {
		_ = a.close()
		return err
	}

	s, err := server.NewServer(ctx, instanceProfile, a.store, recommender, a.metrics)
	if err != nil {
		_ = a.close()
		return errors.Wrap(err, "failed to create server")
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	signal.Notify(c, terminationSignals...)

	if err := s.Start(ctx); err != nil {
		_ = a.close()
		return errors.Wrap(err, "failed to start server")
	}

	printGreetings(instanceProfile)

	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	// Wait for CTRL-C.
	<-ctx.Done()
	return nil
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("CineSense %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Vector store: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Vector store driver: %s\n", profile.Driver)
	fmt.Printf("Index: %s (%d dimensions, %s)\n", profile.IndexName, profile.IndexDimension, profile.IndexMetric)
	fmt.Printf("Embedding: %s/%s\n", profile.EmbeddingProvider, profile.EmbeddingModel)
	fmt.Printf("Mode: %s\n", profile.Mode)

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Try: http://localhost:%d/api/v1/recommend?query=space+adventure\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Try: http://%s:%d/api/v1/recommend?query=space+adventure\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
