package dbadapter

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// sqliteAdapter implements Adapter for db_type=sqlite. SQLite has no server
// process to dial and no dump tool: TestConnection opens the file directly,
// and Dump/Restore are plain file copies rather than subprocess pipelines.
type sqliteAdapter struct{}

// NewSQLiteAdapter returns the SQLite Adapter.
func NewSQLiteAdapter() Adapter {
	return &sqliteAdapter{}
}

func (a *sqliteAdapter) TestConnection(ctx context.Context, target *db.Target) (ConnectionResult, error) {
	cfg, err := parseSQLiteConfig(target)
	if err != nil {
		return ConnectionResult{}, err
	}

	if _, statErr := os.Stat(cfg.Path); statErr != nil {
		return ConnectionResult{OK: false, Message: statErr.Error()}, nil
	}

	conn, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

func (a *sqliteAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (DumpResult, error) {
	cfg, err := parseSQLiteConfig(target)
	if err != nil {
		return DumpResult{}, err
	}

	f, err := os.Open(cfg.Path)
	if err != nil {
		return DumpResult{}, fmt.Errorf("dbadapter: sqlite: open: %w", err)
	}
	defer f.Close()

	written, err := copyFile(sink, f)
	if err != nil {
		return DumpResult{}, fmt.Errorf("dbadapter: sqlite: dump: %w", err)
	}
	return DumpResult{BytesWritten: written, LogicalFormat: SuffixSQLite}, nil
}

func (a *sqliteAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	cfg, err := parseSQLiteConfig(target)
	if err != nil {
		return err
	}

	tmp := cfg.Path + ".restoring"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dbadapter: sqlite: create: %w", err)
	}

	if _, err := copyFile(f, source); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dbadapter: sqlite: restore: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dbadapter: sqlite: restore: %w", err)
	}

	if err := os.Rename(tmp, cfg.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dbadapter: sqlite: restore: rename: %w", err)
	}
	return nil
}
