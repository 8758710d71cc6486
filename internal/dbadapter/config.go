package dbadapter

import (
	"encoding/json"
	"fmt"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// Per-db_type config/secret shapes (spec §9: "model as tagged variants per
// db_type, with a narrow validation layer at the API boundary and typed
// fields thereafter"). Target.Config/Target.Secrets are JSON blobs whose
// shape is exactly one of these, selected by Target.DBType.

type postgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	SSLMode  string `json:"ssl_mode"`
	// Plain, if true, dumps SQL text (SuffixPostgresPlain) with pg_dump's
	// plain format and restores it through psql, instead of pg_dump's custom
	// format (SuffixPostgresCustom) restored by pg_restore. Defaults to false.
	Plain bool `json:"plain"`
}

type postgresSecrets struct {
	Password string `json:"password"`
}

type mysqlConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
}

type mysqlSecrets struct {
	Password string `json:"password"`
}

type sqliteConfig struct {
	Path string `json:"path"`
}

type neo4jConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
}

type neo4jSecrets struct {
	Password string `json:"password"`
}

func parsePostgresConfig(target *db.Target) (postgresConfig, postgresSecrets, error) {
	var cfg postgresConfig
	if err := json.Unmarshal([]byte(target.Config), &cfg); err != nil {
		return cfg, postgresSecrets{}, fmt.Errorf("dbadapter: postgres: invalid config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}
	var secrets postgresSecrets
	if target.Secrets != "" {
		if err := json.Unmarshal([]byte(target.Secrets), &secrets); err != nil {
			return cfg, secrets, fmt.Errorf("dbadapter: postgres: invalid secrets: %w", err)
		}
	}
	return cfg, secrets, nil
}

func parseMySQLConfig(target *db.Target) (mysqlConfig, mysqlSecrets, error) {
	var cfg mysqlConfig
	if err := json.Unmarshal([]byte(target.Config), &cfg); err != nil {
		return cfg, mysqlSecrets{}, fmt.Errorf("dbadapter: mysql: invalid config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	var secrets mysqlSecrets
	if target.Secrets != "" {
		if err := json.Unmarshal([]byte(target.Secrets), &secrets); err != nil {
			return cfg, secrets, fmt.Errorf("dbadapter: mysql: invalid secrets: %w", err)
		}
	}
	return cfg, secrets, nil
}

func parseSQLiteConfig(target *db.Target) (sqliteConfig, error) {
	var cfg sqliteConfig
	if err := json.Unmarshal([]byte(target.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("dbadapter: sqlite: invalid config: %w", err)
	}
	if cfg.Path == "" {
		return cfg, fmt.Errorf("dbadapter: sqlite: config.path is required")
	}
	return cfg, nil
}

func parseNeo4jConfig(target *db.Target) (neo4jConfig, neo4jSecrets, error) {
	var cfg neo4jConfig
	if err := json.Unmarshal([]byte(target.Config), &cfg); err != nil {
		return cfg, neo4jSecrets{}, fmt.Errorf("dbadapter: neo4j: invalid config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 7687
	}
	var secrets neo4jSecrets
	if target.Secrets != "" {
		if err := json.Unmarshal([]byte(target.Secrets), &secrets); err != nil {
			return cfg, secrets, fmt.Errorf("dbadapter: neo4j: invalid secrets: %w", err)
		}
	}
	return cfg, secrets, nil
}
