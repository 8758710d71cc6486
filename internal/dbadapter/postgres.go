package dbadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// postgresAdapter implements Adapter for db_type=postgresql. TestConnection
// uses pgx directly over the wire protocol; Dump/Restore shell out to the
// standard pg_dump/pg_restore/psql tools (spec §4.2: "interop with standard
// engine tools").
type postgresAdapter struct{}

// NewPostgresAdapter returns the PostgreSQL Adapter.
func NewPostgresAdapter() Adapter {
	return &postgresAdapter{}
}

func (a *postgresAdapter) TestConnection(ctx context.Context, target *db.Target) (ConnectionResult, error) {
	cfg, secrets, err := parsePostgresConfig(target)
	if err != nil {
		return ConnectionResult{}, err
	}

	conn, err := pgx.Connect(ctx, dsn(cfg, secrets))
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	defer conn.Close(ctx)

	if err := conn.Ping(ctx); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

func (a *postgresAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (DumpResult, error) {
	cfg, secrets, err := parsePostgresConfig(target)
	if err != nil {
		return DumpResult{}, err
	}

	args := []string{"-h", cfg.Host, "-p", strconv.Itoa(cfg.Port), "-U", cfg.User, "-d", cfg.Database, "--no-password"}
	format := SuffixPostgresCustom
	if cfg.Plain {
		format = SuffixPostgresPlain
	} else {
		args = append(args, "-Fc")
	}

	cmd := exec.CommandContext(ctx, "pg_dump", args...)
	cmd.Env = pgEnv(secrets.Password)
	return runDumpCmd(cmd, sink, format)
}

func (a *postgresAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	cfg, secrets, err := parsePostgresConfig(target)
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	if cfg.Plain {
		cmd = exec.CommandContext(ctx, "psql", "-h", cfg.Host, "-p", strconv.Itoa(cfg.Port), "-U", cfg.User, "-d", cfg.Database, "--no-password")
	} else {
		cmd = exec.CommandContext(ctx, "pg_restore", "-h", cfg.Host, "-p", strconv.Itoa(cfg.Port), "-U", cfg.User, "-d", cfg.Database, "--no-password", "--clean", "--if-exists")
	}
	cmd.Env = pgEnv(secrets.Password)
	cmd.Stdin = source

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &DumpError{Op: "restore", Code: exitCode(err), StderrTail: tail(stderr.String(), stderrTailLimit)}
	}
	return nil
}

func dsn(cfg postgresConfig, secrets postgresSecrets) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, secrets.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode)
}
