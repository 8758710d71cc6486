package dbadapter

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	_ "github.com/go-sql-driver/mysql"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// mysqlAdapter implements Adapter for db_type=mysql. TestConnection uses
// go-sql-driver/mysql directly; Dump/Restore shell out to mysqldump/mysql.
type mysqlAdapter struct{}

// NewMySQLAdapter returns the MySQL Adapter.
func NewMySQLAdapter() Adapter {
	return &mysqlAdapter{}
}

func (a *mysqlAdapter) TestConnection(ctx context.Context, target *db.Target) (ConnectionResult, error) {
	cfg, secrets, err := parseMySQLConfig(target)
	if err != nil {
		return ConnectionResult{}, err
	}

	conn, err := sql.Open("mysql", mysqlDSN(cfg, secrets))
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

func (a *mysqlAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (DumpResult, error) {
	cfg, secrets, err := parseMySQLConfig(target)
	if err != nil {
		return DumpResult{}, err
	}

	cmd := exec.CommandContext(ctx, "mysqldump",
		"-h", cfg.Host, "-P", strconv.Itoa(cfg.Port), "-u", cfg.User,
		"--single-transaction", "--routines", "--triggers", cfg.Database)
	cmd.Env = mysqlEnv(secrets.Password)

	return runDumpCmd(cmd, sink, SuffixMySQL)
}

func (a *mysqlAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	cfg, secrets, err := parseMySQLConfig(target)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, "mysql",
		"-h", cfg.Host, "-P", strconv.Itoa(cfg.Port), "-u", cfg.User, cfg.Database)
	cmd.Env = mysqlEnv(secrets.Password)
	cmd.Stdin = source

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return &DumpError{Op: "restore", Code: exitCode(err), StderrTail: tail(stderr.String(), stderrTailLimit)}
	}
	return nil
}

func mysqlDSN(cfg mysqlConfig, secrets mysqlSecrets) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", cfg.User, secrets.Password, cfg.Host, cfg.Port, cfg.Database)
}
