package kgx

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soundprediction/go-kgextract/pkg/export"
	"github.com/soundprediction/go-kgextract/pkg/types"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load previously exported tables into Neo4j",
	Long: `Load the entity and relation tables of an earlier run into Neo4j without
re-running extraction. The source is either a directory holding entity.csv
and relation.csv or a DuckDB file written by extract --duckdb.`,
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().String("dir", "", "directory with entity.csv and relation.csv")
	loadCmd.Flags().String("from-duckdb", "", "DuckDB file written by extract")
	loadCmd.Flags().Bool("replace", false, "clear the Neo4j database first")
}

func runLoad(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.closer()
	cfg, logger := e.cfg, e.logger

	dir, _ := cmd.Flags().GetString("dir")
	dbPath, _ := cmd.Flags().GetString("from-duckdb")
	if (dir == "") == (dbPath == "") {
		return errors.New("exactly one of --dir and --from-duckdb is required")
	}
	if cmd.Flags().Changed("replace") {
		cfg.Database.Replace, _ = cmd.Flags().GetBool("replace")
	}

	ctx := cmd.Context()
	var g *types.Graph
	if dir != "" {
		g, err = export.ReadGraph(dir, logger)
	} else {
		var src *export.DuckDBSink
		src, err = export.NewDuckDBSink(dbPath, logger)
		if err != nil {
			return err
		}
		g, err = src.Graph(ctx)
		src.Close()
	}
	if err != nil {
		return err
	}

	sink, err := export.NewNeo4jSink(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, export.Neo4jOptions{
		Database:  cfg.Database.Database,
		BatchSize: cfg.Database.BatchSize,
		Replace:   cfg.Database.Replace,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := sink.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j is not reachable at %s: %w", cfg.Database.URI, err)
	}
	if err := sink.Write(ctx, g); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d entities, %d relations\n", len(g.Entities), len(g.Relations))
	return nil
}
