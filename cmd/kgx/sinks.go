package kgx

import (
	"log/slog"

	"github.com/soundprediction/go-kgextract/pkg/config"
	"github.com/soundprediction/go-kgextract/pkg/export"
)

// openSinks opens the sinks selected by cfg.Output. The csv tables are
// always written.
func openSinks(cfg *config.Config, logger *slog.Logger) (export.Multi, error) {
	var sinks export.Multi
	fail := func(err error) (export.Multi, error) {
		sinks.Close()
		return nil, err
	}

	csvSink, err := export.NewCSVSink(cfg.Output.Dir, logger)
	if err != nil {
		return fail(err)
	}
	sinks = append(sinks, csvSink)

	if cfg.Output.DuckDB != "" {
		db, err := export.NewDuckDBSink(cfg.Output.DuckDB, logger)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, db)
	}

	if cfg.Output.Neo4j {
		n, err := export.NewNeo4jSink(cfg.Database.URI, cfg.Database.Username, cfg.Database.Password, export.Neo4jOptions{
			Database:  cfg.Database.Database,
			BatchSize: cfg.Database.BatchSize,
			Replace:   cfg.Database.Replace,
			Logger:    logger,
		})
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, n)
	}
	return sinks, nil
}
