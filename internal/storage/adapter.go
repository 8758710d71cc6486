package storage

import (
	"context"
	"io"
	"time"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// PutResult is returned by a successful Put.
type PutResult struct {
	BackupID  string
	CreatedAt time.Time
}

// Item describes one stored backup as returned by List.
type Item struct {
	ID        string
	Name      string
	Size      int64
	CreatedAt time.Time
}

// ListOptions bounds and filters a List call.
type ListOptions struct {
	Prefix       string
	TargetFolder string
	IncludeTotal bool
	Limit        int
	Offset       int
}

// ListResult is returned by List. Total is populated only when
// ListOptions.IncludeTotal was set — backends like Google Drive only pay
// the cost of a full count when a caller actually asks for one.
type ListResult struct {
	Items []Item
	Total *int64
}

// ConnectionResult is returned by TestConnection.
type ConnectionResult struct {
	OK      bool
	Message string
}

// Adapter is the uniform destination contract (spec §4.3). backup_id is
// opaque to every caller: a root-relative path for the local adapter, a full remote
// path for SFTP, a file ID for Google Drive. Nothing outside the owning
// adapter may parse it.
type Adapter interface {
	// Put writes stream under targetFolder/name (name should already carry
	// the full composed filename including suffixes). size is a hint, -1
	// if unknown.
	Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (PutResult, error)
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Get(ctx context.Context, backupID, name string) (io.ReadCloser, error)
	Delete(ctx context.Context, backupID, name string) error
	TestConnection(ctx context.Context) (ConnectionResult, error)
}

// Factory builds an Adapter for a Destination's config/secrets. Each
// concrete adapter package-level constructor implements this shape so the
// Registry can hold them uniformly.
type Factory func(destination *db.Destination) (Adapter, error)
