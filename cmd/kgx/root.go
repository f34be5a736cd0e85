// Package kgx is the kgx command line tool.
package kgx

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/go-kgextract/pkg/config"
	"github.com/soundprediction/go-kgextract/pkg/logger"
	"github.com/soundprediction/go-kgextract/pkg/telemetry"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kgx",
	Short: "Extract knowledge graphs from domain text",
	Long: `kgx extracts domain entities and typed relations (包含, 属于, 实现方式,
应用场景) from Chinese technical text and exports them as entity/relation
tables, a DuckDB database or a Neo4j graph. It also builds labeled training
sets for the relation classifier.

Configuration is read from --config (yaml), KGX_* environment variables and
the NEO4J_URI, NEO4J_USER and NEO4J_PASSWORD variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("vocabulary", "", "domain vocabulary file, one term per line")
	rootCmd.PersistentFlags().String("model", "", "relation classifier artifact")
	rootCmd.PersistentFlags().Int("workers", 0, "parallel annotation workers")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// env is what every subcommand starts from.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	closer func()
}

// setup loads configuration, applies flags that were set and installs the
// default logger.
func setup(cmd *cobra.Command) (*env, error) {
	v := viper.GetViper()
	if cfgFile != "" {
		if err := config.ReadFile(v, cfgFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	overrideConfigWithFlags(cmd, cfg)

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	handler, err := logger.NewHandler(os.Stderr, cfg.Log.Format, level)
	if err != nil {
		return nil, err
	}

	closer := func() {}
	if cfg.Log.Events != "" {
		db, err := sql.Open("duckdb", cfg.Log.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to open event log: %w", err)
		}
		th, err := telemetry.NewDuckDBHandler(handler, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		handler = th
		closer = func() { db.Close() }
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return &env{cfg: cfg, logger: log, closer: closer}, nil
}

// overrideConfigWithFlags applies the persistent flags that were set.
func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("vocabulary") {
		cfg.Paths.Vocabulary, _ = flags.GetString("vocabulary")
	}
	if flags.Changed("model") {
		cfg.Paths.Model, _ = flags.GetString("model")
	}
	if flags.Changed("workers") {
		cfg.Extract.Workers, _ = flags.GetInt("workers")
	}
}
