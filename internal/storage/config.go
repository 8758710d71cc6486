package storage

import (
	"encoding/json"
	"fmt"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// Per-destination_type config/secret shapes, modeled the same way as
// dbadapter's tagged config variants: Destination.Config/Secrets are opaque
// JSON blobs whose shape is selected by Destination.DestinationType.

type localConfig struct {
	RootPath string `json:"root_path"`
}

type sftpConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	User string `json:"user"`
	Root string `json:"root"`
}

type sftpSecrets struct {
	// PrivateKeyPEM, if set, takes precedence over Password (spec §4.3:
	// "private key (preferred) or password").
	PrivateKeyPEM string `json:"private_key_pem"`
	Passphrase    string `json:"passphrase"`
	Password      string `json:"password"`
}

type gdriveConfig struct {
	FolderID string `json:"folder_id"`
}

type gdriveSecrets struct {
	ServiceAccountJSON string `json:"service_account_json"`
}

func parseLocalConfig(destination *db.Destination) (localConfig, error) {
	var cfg localConfig
	if destination.Config == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(destination.Config), &cfg); err != nil {
		return cfg, fmt.Errorf("storage: local: invalid config: %w", err)
	}
	return cfg, nil
}

func parseSFTPConfig(destination *db.Destination) (sftpConfig, sftpSecrets, error) {
	var cfg sftpConfig
	if err := json.Unmarshal([]byte(destination.Config), &cfg); err != nil {
		return cfg, sftpSecrets{}, fmt.Errorf("storage: sftp: invalid config: %w", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	var secrets sftpSecrets
	if destination.Secrets != "" {
		if err := json.Unmarshal([]byte(destination.Secrets), &secrets); err != nil {
			return cfg, secrets, fmt.Errorf("storage: sftp: invalid secrets: %w", err)
		}
	}
	return cfg, secrets, nil
}

func parseGDriveConfig(destination *db.Destination) (gdriveConfig, gdriveSecrets, error) {
	var cfg gdriveConfig
	if err := json.Unmarshal([]byte(destination.Config), &cfg); err != nil {
		return cfg, gdriveSecrets{}, fmt.Errorf("storage: gdrive: invalid config: %w", err)
	}
	if cfg.FolderID == "" {
		return cfg, gdriveSecrets{}, fmt.Errorf("storage: gdrive: config.folder_id is required")
	}
	var secrets gdriveSecrets
	if destination.Secrets != "" {
		if err := json.Unmarshal([]byte(destination.Secrets), &secrets); err != nil {
			return cfg, secrets, fmt.Errorf("storage: gdrive: invalid secrets: %w", err)
		}
	}
	if secrets.ServiceAccountJSON == "" {
		return cfg, secrets, fmt.Errorf("storage: gdrive: secrets.service_account_json is required")
	}
	return cfg, secrets, nil
}
