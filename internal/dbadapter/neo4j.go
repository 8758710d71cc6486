package dbadapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// neo4jAdapter implements Adapter for db_type=neo4j. Neo4j has no standard
// dump binary comparable to pg_dump/mysqldump, so Dump emits a Cypher script
// (one CREATE statement per node/relationship) over the bolt driver, and
// Restore replays a Cypher script statement-by-statement in a single session.
type neo4jAdapter struct{}

// NewNeo4jAdapter returns the Neo4j Adapter.
func NewNeo4jAdapter() Adapter {
	return &neo4jAdapter{}
}

func (a *neo4jAdapter) TestConnection(ctx context.Context, target *db.Target) (ConnectionResult, error) {
	cfg, secrets, err := parseNeo4jConfig(target)
	if err != nil {
		return ConnectionResult{}, err
	}

	driver, err := neo4j.NewDriverWithContext(boltURI(cfg), neo4j.BasicAuth(cfg.User, secrets.Password, ""))
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	defer driver.Close(ctx)

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

func (a *neo4jAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (DumpResult, error) {
	cfg, secrets, err := parseNeo4jConfig(target)
	if err != nil {
		return DumpResult{}, err
	}

	driver, err := neo4j.NewDriverWithContext(boltURI(cfg), neo4j.BasicAuth(cfg.User, secrets.Password, ""))
	if err != nil {
		return DumpResult{}, fmt.Errorf("dbadapter: neo4j: dump: %w", err)
	}
	defer driver.Close(ctx)

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: cfg.Database, AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	written, err := dumpNodesAndRelationships(ctx, session, sink)
	if err != nil {
		return DumpResult{}, fmt.Errorf("dbadapter: neo4j: dump: %w", err)
	}
	return DumpResult{BytesWritten: written, LogicalFormat: SuffixNeo4j}, nil
}

func (a *neo4jAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	cfg, secrets, err := parseNeo4jConfig(target)
	if err != nil {
		return err
	}

	driver, err := neo4j.NewDriverWithContext(boltURI(cfg), neo4j.BasicAuth(cfg.User, secrets.Password, ""))
	if err != nil {
		return fmt.Errorf("dbadapter: neo4j: restore: %w", err)
	}
	defer driver.Close(ctx)

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: cfg.Database, AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	if _, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		return &DumpError{Op: "restore", Code: -1, StderrTail: tail(err.Error(), stderrTailLimit)}
	}

	scanner := bufio.NewScanner(source)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var stmt strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		stmt.WriteString(line)
		stmt.WriteByte(' ')
		if strings.HasSuffix(line, ";") {
			cypher := strings.TrimSuffix(strings.TrimSpace(stmt.String()), ";")
			if _, err := session.Run(ctx, cypher, nil); err != nil {
				return &DumpError{Op: "restore", Code: -1, StderrTail: tail(err.Error(), stderrTailLimit)}
			}
			stmt.Reset()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("dbadapter: neo4j: restore: reading script: %w", err)
	}
	return nil
}

// dumpNodesAndRelationships writes a Cypher script that recreates every node
// (tagged with its original element ID as a temporary property so
// relationships can be rewired) followed by every relationship, then strips
// the temporary property. This is a logical, schema-light export: it does
// not attempt to preserve constraints or indexes.
func dumpNodesAndRelationships(ctx context.Context, session neo4j.SessionWithContext, sink io.Writer) (int64, error) {
	w := &countingWriter{w: sink}

	nodeResult, err := session.Run(ctx, "MATCH (n) RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props", nil)
	if err != nil {
		return w.n, err
	}
	for nodeResult.Next(ctx) {
		rec := nodeResult.Record()
		id, _ := rec.Get("id")
		labels, _ := rec.Get("labels")
		props, _ := rec.Get("props")
		line := fmt.Sprintf("CREATE (n%s %s) SET n._dump_id = %q;\n",
			labelClause(labels), propLiteral(props), id.(string))
		if _, err := io.WriteString(w, line); err != nil {
			return w.n, err
		}
	}
	if err := nodeResult.Err(); err != nil {
		return w.n, err
	}

	relResult, err := session.Run(ctx, "MATCH (a)-[r]->(b) RETURN elementId(a) AS aID, elementId(b) AS bID, type(r) AS relType, properties(r) AS props", nil)
	if err != nil {
		return w.n, err
	}
	for relResult.Next(ctx) {
		rec := relResult.Record()
		aID, _ := rec.Get("aID")
		bID, _ := rec.Get("bID")
		relType, _ := rec.Get("relType")
		props, _ := rec.Get("props")
		line := fmt.Sprintf("MATCH (a {_dump_id: %q}), (b {_dump_id: %q}) CREATE (a)-[:%s %s]->(b);\n",
			aID.(string), bID.(string), relType.(string), propLiteral(props))
		if _, err := io.WriteString(w, line); err != nil {
			return w.n, err
		}
	}
	if err := relResult.Err(); err != nil {
		return w.n, err
	}

	if _, err := io.WriteString(w, "MATCH (n) REMOVE n._dump_id;\n"); err != nil {
		return w.n, err
	}
	return w.n, nil
}

func boltURI(cfg neo4jConfig) string {
	return fmt.Sprintf("bolt://%s:%d", cfg.Host, cfg.Port)
}

func labelClause(labels interface{}) string {
	ls, ok := labels.([]interface{})
	if !ok || len(ls) == 0 {
		return ""
	}
	var b strings.Builder
	for _, l := range ls {
		b.WriteByte(':')
		b.WriteString(fmt.Sprintf("%v", l))
	}
	return b.String()
}

func propLiteral(props interface{}) string {
	m, ok := props.(map[string]interface{})
	if !ok || len(m) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k, v := range m {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%s: %s", k, cypherLiteral(v))
	}
	b.WriteByte('}')
	return b.String()
}

func cypherLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
