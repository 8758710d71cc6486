// Package dbadapter implements the per-engine dump/restore contract (spec
// §4.2, "Database Adapters"). Each db_type gets one Adapter implementation;
// the pipeline never type-switches on db_type itself — it resolves an
// Adapter from the registry and calls the uniform interface.
package dbadapter

import (
	"context"
	"io"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// Suffix is the pre-transform file suffix an adapter's Dump produces,
// per the table in spec §4.2. The pipeline appends ".gz" and/or ".enc"
// after this, and the restore pipeline strips them in reverse to recover it.
type Suffix string

const (
	SuffixPostgresCustom Suffix = ".dump"
	SuffixPostgresPlain  Suffix = ".sql"
	SuffixMySQL          Suffix = ".sql"
	SuffixSQLite         Suffix = ".db"
	SuffixNeo4j          Suffix = ".cypher"
)

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	OK      bool
	Message string
}

// DumpResult summarizes a completed Dump call.
type DumpResult struct {
	BytesWritten   int64
	LogicalFormat  Suffix
}

// Adapter is the uniform capability set every db_type must implement.
type Adapter interface {
	// TestConnection verifies connectivity and credentials without
	// performing any dump/restore work.
	TestConnection(ctx context.Context, target *db.Target) (ConnectionResult, error)

	// Dump writes a logical, restorable byte stream for target to sink.
	// Implementations must stream rather than buffer the whole dump in
	// memory (spec §4.2).
	Dump(ctx context.Context, target *db.Target, sink io.Writer) (DumpResult, error)

	// Restore consumes a stream produced by Dump (after any compression/
	// encryption transforms have already been reversed by the caller) and
	// applies it to target. confirmation has already been validated by the
	// restore pipeline before this is called.
	Restore(ctx context.Context, target *db.Target, source io.Reader) error
}
