package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// localAdapter writes backups under a configured root directory. backup_id
// is the path relative to that root (target folder joined with the
// filename); writes are atomic via
// write-to-tmp-then-rename (spec §4.3).
type localAdapter struct {
	root string
}

// NewLocalAdapter builds the Adapter for destination_type=local.
func NewLocalAdapter(destination *db.Destination) (Adapter, error) {
	cfg, err := parseLocalConfig(destination)
	if err != nil {
		return nil, err
	}
	root := cfg.RootPath
	if root == "" {
		root = "/var/lib/dbsentinel/backups"
	}
	return &localAdapter{root: root}, nil
}

func (a *localAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (PutResult, error) {
	dir := filepath.Join(a.root, targetFolder)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return PutResult{}, a.wrap("put", err)
	}

	final := filepath.Join(dir, name)
	tmp := final + ".part"

	f, err := os.Create(tmp)
	if err != nil {
		return PutResult{}, a.wrap("put", err)
	}
	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		os.Remove(tmp)
		return PutResult{}, a.wrap("put", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return PutResult{}, a.wrap("put", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return PutResult{}, a.wrap("put", err)
	}

	backupID := filepath.Join(targetFolder, name)
	return PutResult{BackupID: backupID, CreatedAt: time.Now().UTC()}, nil
}

func (a *localAdapter) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	dir := filepath.Join(a.root, opts.TargetFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ListResult{Items: []Item{}}, nil
		}
		return ListResult{}, a.wrap("list", err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		if opts.Prefix != "" && !strings.HasPrefix(entry.Name(), opts.Prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, Item{
			ID:        filepath.Join(opts.TargetFolder, entry.Name()),
			Name:      entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := int64(len(items))
	start := opts.Offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	result := ListResult{Items: items[start:end]}
	if opts.IncludeTotal {
		result.Total = &total
	}
	return result, nil
}

func (a *localAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(a.root, backupID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, a.wrap("get", err)
	}
	return f, nil
}

func (a *localAdapter) Delete(ctx context.Context, backupID, name string) error {
	if err := os.Remove(filepath.Join(a.root, backupID)); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return a.wrap("delete", err)
	}
	return nil
}

func (a *localAdapter) TestConnection(ctx context.Context) (ConnectionResult, error) {
	if err := os.MkdirAll(a.root, 0o750); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	probe := filepath.Join(a.root, ".dbsentinel-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	os.Remove(probe)
	return ConnectionResult{OK: true, Message: "writable"}, nil
}

// wrap classifies a local filesystem error. Disk errors here are almost
// always permanent from the pipeline's point of view — retrying a full
// disk or a permission error changes nothing — except ENOSPC transients
// during concurrent writes, which os.IsNotExist/os.IsPermission don't cover
// and which we treat conservatively as permanent too; a later run will
// simply retry from the top.
func (a *localAdapter) wrap(op string, err error) error {
	return &AdapterError{Classification: Permanent, Destination: "local", Op: op, Err: err}
}
