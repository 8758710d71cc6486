package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// errBoom is a stand-in failure used across pipeline tests where the
// specific error value doesn't matter, only that an operation failed.
var errBoom = errors.New("boom")

// pastTime backdates a fake artifact's CreatedAt far enough that any
// max_days/smart retention policy under test would also evict it, not just
// max_count.
var pastTime = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeDBAdapter is a dbadapter.Adapter whose Dump/Restore operate on an
// in-memory payload instead of shelling out to a real engine's tools.
type fakeDBAdapter struct {
	payload  []byte
	suffix   dbadapter.Suffix
	dumpErr  error
	restored []byte
}

func (f *fakeDBAdapter) TestConnection(ctx context.Context, target *db.Target) (dbadapter.ConnectionResult, error) {
	return dbadapter.ConnectionResult{OK: true}, nil
}

func (f *fakeDBAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (dbadapter.DumpResult, error) {
	if f.dumpErr != nil {
		return dbadapter.DumpResult{}, f.dumpErr
	}
	n, err := sink.Write(f.payload)
	return dbadapter.DumpResult{BytesWritten: int64(n), LogicalFormat: f.suffix}, err
}

func (f *fakeDBAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	data, err := io.ReadAll(source)
	f.restored = data
	return err
}

// fakeStorageAdapter is an in-memory storage.Adapter, keyed by name within a
// single target folder (tests only ever use one).
type fakeStorageAdapter struct {
	mu      sync.Mutex
	objects map[string][]byte
	created map[string]time.Time
	putErr  error
}

func newFakeStorageAdapter() *fakeStorageAdapter {
	return &fakeStorageAdapter{objects: make(map[string][]byte), created: make(map[string]time.Time)}
}

func (f *fakeStorageAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (storage.PutResult, error) {
	if f.putErr != nil {
		return storage.PutResult{}, f.putErr
	}
	data, err := io.ReadAll(stream)
	if err != nil {
		return storage.PutResult{}, err
	}
	f.mu.Lock()
	f.objects[name] = data
	now := time.Now().UTC()
	f.created[name] = now
	f.mu.Unlock()
	return storage.PutResult{BackupID: name, CreatedAt: now}, nil
}

func (f *fakeStorageAdapter) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]storage.Item, 0, len(f.objects))
	for name, data := range f.objects {
		items = append(items, storage.Item{ID: name, Name: name, Size: int64(len(data)), CreatedAt: f.created[name]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return storage.ListResult{Items: items}, nil
}

func (f *fakeStorageAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return nil, storage.ErrBackupNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorageAdapter) Delete(ctx context.Context, backupID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[name]; !ok {
		return storage.ErrBackupNotFound
	}
	delete(f.objects, name)
	delete(f.created, name)
	return nil
}

func (f *fakeStorageAdapter) TestConnection(ctx context.Context) (storage.ConnectionResult, error) {
	return storage.ConnectionResult{OK: true}, nil
}

// fakeRunRepository records Run lifecycle calls without touching a database.
type fakeRunRepository struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]*db.Run
	started []*db.Run
}

func newFakeRunRepository() *fakeRunRepository {
	return &fakeRunRepository{runs: make(map[uuid.UUID]*db.Run)}
}

func (f *fakeRunRepository) RecordRunStart(ctx context.Context, run *db.Run) error {
	run.ID = uuid.Must(uuid.NewV7())
	run.Status = db.RunStatusRunning
	f.mu.Lock()
	f.runs[run.ID] = run
	f.started = append(f.started, run)
	f.mu.Unlock()
	return nil
}

func (f *fakeRunRepository) RecordRunFinish(ctx context.Context, id uuid.UUID, status db.RunStatus, detail string, fileSizeMB float64, backupID, backupFilename, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := f.runs[id]
	now := time.Now().UTC()
	run.Status = status
	run.DetailJSON = detail
	run.FileSizeMB = fileSizeMB
	run.BackupID = backupID
	run.BackupFilename = backupFilename
	run.ErrorMessage = errMsg
	run.FinishedAt = &now
	return nil
}

func (f *fakeRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[id], nil
}

func (f *fakeRunRepository) ListRuns(ctx context.Context, filter repositories.RunFilter) ([]db.Run, int64, error) {
	return nil, 0, nil
}

func (f *fakeRunRepository) SweepAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

