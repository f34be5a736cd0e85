package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sony/gobreaker"

	"github.com/soundprediction/go-kgextract/pkg/types"
)

// Neo4jOptions tunes a Neo4jSink.
type Neo4jOptions struct {
	// Database defaults to "neo4j".
	Database string
	// BatchSize bounds the rows sent per UNWIND statement. Defaults to 500.
	BatchSize int
	// Replace clears the database before loading.
	Replace bool
	Logger  *slog.Logger
}

// Neo4jSink loads graphs into Neo4j. Entities are merged on their id and
// carry their labels; relations are merged on (source, target, type). Every
// batch goes through a circuit breaker so an unreachable server fails fast.
type Neo4jSink struct {
	client  neo4j.DriverWithContext
	opts    Neo4jOptions
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewNeo4jSink creates a sink. The connection is not verified until the
// first write or an explicit VerifyConnectivity.
func NewNeo4jSink(uri, username, password string, opts Neo4jOptions) (*Neo4jSink, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if opts.Database == "" {
		opts.Database = "neo4j"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "neo4j-export",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Neo4jSink{client: client, opts: opts, breaker: breaker, logger: logger}, nil
}

// VerifyConnectivity checks that the server is reachable.
func (n *Neo4jSink) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// CreateIndices creates an index on the id of every label in use.
func (n *Neo4jSink) CreateIndices(ctx context.Context, labels []string) error {
	for _, l := range uniqueLabels(labels) {
		stmt := fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.id)",
			quoteIdent("idx_"+sanitizeName(l)+"_id"), quoteIdent(l))
		if err := n.run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("failed to create index for %s: %w", l, err)
		}
	}
	return nil
}

// Write implements Sink.
func (n *Neo4jSink) Write(ctx context.Context, g *types.Graph) error {
	if err := validate(g); err != nil {
		return err
	}
	if n.opts.Replace {
		if err := n.run(ctx, "MATCH (x) DETACH DELETE x", nil); err != nil {
			return fmt.Errorf("failed to clear database: %w", err)
		}
	}

	var allLabels []string
	for _, e := range g.Entities {
		allLabels = append(allLabels, e.Labels...)
	}
	if err := n.CreateIndices(ctx, allLabels); err != nil {
		return err
	}

	for _, b := range entityBatches(g.Entities, g.RunID, n.opts.BatchSize) {
		if err := n.run(ctx, b.query, map[string]any{"rows": b.rows}); err != nil {
			return fmt.Errorf("failed to load entities: %w", err)
		}
	}
	for _, b := range relationBatches(g.Relations, g.RunID, n.opts.BatchSize) {
		if err := n.run(ctx, b.query, map[string]any{"rows": b.rows}); err != nil {
			return fmt.Errorf("failed to load relations: %w", err)
		}
	}
	n.logger.Info("exported graph to neo4j", "database", n.opts.Database, "entities", len(g.Entities), "relations", len(g.Relations))
	return nil
}

// run executes one write transaction behind the breaker.
func (n *Neo4jSink) run(ctx context.Context, query string, params map[string]any) error {
	_, err := n.breaker.Execute(func() (interface{}, error) {
		session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.opts.Database})
		defer session.Close(ctx)
		return session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, params)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
	})
	return err
}

// Close implements Sink.
func (n *Neo4jSink) Close() error {
	return n.client.Close(context.Background())
}

// batch is one parameterized UNWIND statement.
type batch struct {
	query string
	rows  []map[string]any
}

// entityBatches groups entities by label set, since labels cannot be
// parameters, and splits each group into batches of at most size rows.
func entityBatches(entities []*types.Entity, runID string, size int) []batch {
	groups := make(map[string][]map[string]any)
	var keys []string
	for _, e := range entities {
		labels := e.Labels
		if len(labels) == 0 {
			labels = []string{types.DefaultLabel}
		}
		quoted := make([]string, len(labels))
		for i, l := range labels {
			quoted[i] = quoteIdent(l)
		}
		key := strings.Join(quoted, ":")
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		props := nodeProperties(e.Properties)
		props["id"] = e.ID
		props["name"] = e.Name
		if runID != "" {
			props["run_id"] = runID
		}
		groups[key] = append(groups[key], map[string]any{"id": e.ID, "props": props})
	}

	var out []batch
	for _, key := range keys {
		q := fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {id: row.id}) SET n += row.props", key)
		out = append(out, split(q, groups[key], size)...)
	}
	return out
}

// relationBatches groups relations by type and splits them like
// entityBatches.
func relationBatches(relations []*types.Relation, runID string, size int) []batch {
	groups := make(map[string][]map[string]any)
	var keys []string
	for _, r := range relations {
		key := quoteIdent(r.Type)
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		props := nodeProperties(r.Properties)
		if runID != "" {
			props["run_id"] = runID
		}
		groups[key] = append(groups[key], map[string]any{
			"source_id": r.SourceID,
			"target_id": r.TargetID,
			"props":     props,
		})
	}

	var out []batch
	for _, key := range keys {
		q := fmt.Sprintf(`UNWIND $rows AS row
			MATCH (a {id: row.source_id}), (b {id: row.target_id})
			MERGE (a)-[r:%s]->(b)
			SET r += row.props`, key)
		out = append(out, split(q, groups[key], size)...)
	}
	return out
}

func split(query string, rows []map[string]any, size int) []batch {
	var out []batch
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, batch{query: query, rows: rows[start:end]})
	}
	return out
}

// nodeProperties copies props into values Neo4j can store: scalars and
// string lists pass through, anything else is stored as JSON text.
func nodeProperties(props map[string]interface{}) map[string]any {
	out := make(map[string]any, len(props)+3)
	for k, v := range props {
		switch t := v.(type) {
		case nil:
		case string, bool, int, int64, float64:
			out[k] = t
		case []string:
			out[k] = t
		default:
			b, err := json.Marshal(t)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

// sanitizeName replaces spaces with underscores, as the graph importer
// does for labels and relation types.
func sanitizeName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

// quoteIdent backtick-quotes a label or relationship type.
func quoteIdent(s string) string {
	s = sanitizeName(s)
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		out = []string{types.DefaultLabel}
	}
	sort.Strings(out)
	return out
}
