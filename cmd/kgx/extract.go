package kgx

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-kgextract"
	"github.com/soundprediction/go-kgextract/pkg/export"
	"github.com/soundprediction/go-kgextract/pkg/telemetry"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Build the entity and relation tables of a document",
	Long: `Read a plain text document, extract domain entities and typed relations
and write entity.csv and relation.csv. Optionally also write the graph to a
DuckDB database and load it into Neo4j.

A previous entity.csv can be given with --seed so entity ids stay stable
across runs.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("input", "i", "", "input document (required)")
	extractCmd.Flags().StringP("out", "o", "", "output directory for the csv tables")
	extractCmd.Flags().String("duckdb", "", "also write the graph to this DuckDB file")
	extractCmd.Flags().Bool("neo4j", false, "also load the graph into Neo4j")
	extractCmd.Flags().String("seed", "", "entity table of a previous run")
	extractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.closer()
	cfg, logger := e.cfg, e.logger

	flags := cmd.Flags()
	input, _ := flags.GetString("input")
	if flags.Changed("out") {
		cfg.Output.Dir, _ = flags.GetString("out")
	}
	if flags.Changed("duckdb") {
		cfg.Output.DuckDB, _ = flags.GetString("duckdb")
	}
	if flags.Changed("neo4j") {
		cfg.Output.Neo4j, _ = flags.GetBool("neo4j")
	}
	if flags.Changed("seed") {
		cfg.Output.Seed, _ = flags.GetString("seed")
	}

	c, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var seed []*types.Entity
	if cfg.Output.Seed != "" {
		var skipped int
		seed, skipped, err = export.ReadEntitiesFile(cfg.Output.Seed, logger)
		if err != nil {
			return err
		}
		logger.Info("seed entities loaded", "path", cfg.Output.Seed, "entities", len(seed), "skipped", skipped)
	}

	p, err := kgextract.NewPipeline(c.annotator, c.entities, c.relations, &kgextract.Config{
		Workers: cfg.Extract.Workers,
		Seed:    seed,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	g, err := p.Run(ctx, f)
	if err != nil {
		return err
	}
	ctx = telemetry.WithRunID(ctx, g.RunID)

	sinks, err := openSinks(cfg, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()
	if err := sinks.Write(ctx, g); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d entities, %d relations\n", g.RunID, len(g.Entities), len(g.Relations))
	return nil
}
