package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/recall/ai"
	"github.com/hrygo/recall/internal/profile"
	"github.com/hrygo/recall/metrics"
	"github.com/hrygo/recall/retrieval"
	"github.com/hrygo/recall/store/postgres"
	"github.com/hrygo/recall/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "Hybrid retrieval engine: semantic vector search fused with an entity relationship graph.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Ignore a missing .env; environment variables still apply.
		_ = godotenv.Load()
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <user-id> <query>",
	Short: "Run one hybrid search and print the ranked result as JSON.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceProfile := &profile.Profile{
			Mode:        viper.GetString("mode"),
			MetricsAddr: viper.GetString("metrics-addr"),
			VectorDSN:   viper.GetString("vector-dsn"),
			GraphDSN:    viper.GetString("graph-dsn"),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		engine, cleanup, err := buildEngine(ctx, instanceProfile)
		if err != nil {
			return err
		}
		defer cleanup()

		result, err := engine.Search(ctx, args[0], args[1], &retrieval.SearchOptions{
			Limit:        viper.GetInt("limit"),
			ForceRefresh: viper.GetBool("force-refresh"),
			DisableGraph: viper.GetBool("no-graph"),
		})
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	},
}

func buildEngine(ctx context.Context, p *profile.Profile) (*retrieval.Engine, func(), error) {
	vectorDB, err := postgres.NewDB(p.VectorDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	graphDB, err := sqlite.NewDB(p.GraphDSN)
	if err != nil {
		vectorDB.Close()
		return nil, nil, fmt.Errorf("failed to open graph store: %w", err)
	}
	if err := graphDB.Migrate(ctx); err != nil {
		vectorDB.Close()
		graphDB.Close()
		return nil, nil, fmt.Errorf("failed to migrate graph store: %w", err)
	}

	embedder, err := ai.NewEmbeddingService(&ai.EmbeddingConfig{
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Model:      p.EmbeddingModel,
		Dimensions: p.EmbeddingDimensions,
	})
	if err != nil {
		vectorDB.Close()
		graphDB.Close()
		return nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	opts := []retrieval.Option{
		retrieval.WithLogger(slog.Default()),
	}

	if p.MetricsAddr != "" {
		exporter := metrics.NewExporter(metrics.DefaultConfig())
		opts = append(opts, retrieval.WithMetrics(exporter))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", exporter.Handler())
			if err := http.ListenAndServe(p.MetricsAddr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	engine, err := retrieval.NewEngine(embedder, vectorDB, graphDB, opts...)
	if err != nil {
		vectorDB.Close()
		graphDB.Close()
		return nil, nil, err
	}

	cleanup := func() {
		vectorDB.Close()
		graphDB.Close()
	}
	return engine, cleanup, nil
}

func init() {
	rootCmd.PersistentFlags().String("mode", "demo", "mode of the process: demo, dev, prod")
	rootCmd.PersistentFlags().String("metrics-addr", "", "address serving the Prometheus endpoint (empty disables)")
	rootCmd.PersistentFlags().String("vector-dsn", "", "Postgres DSN of the vector store")
	rootCmd.PersistentFlags().String("graph-dsn", "", "SQLite path of the entity graph store")
	searchCmd.Flags().Int("limit", 0, "maximum results (0 uses the engine default)")
	searchCmd.Flags().Bool("force-refresh", false, "bypass the result cache")
	searchCmd.Flags().Bool("no-graph", false, "skip the entity graph branch")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	if err := viper.BindPFlags(searchCmd.Flags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("recall")
	viper.AutomaticEnv()

	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
