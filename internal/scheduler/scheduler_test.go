package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// fakeScheduleRepository backs the single schedule under test.
type fakeScheduleRepository struct {
	sched       db.Schedule
	updateCalls []struct{ lastRunAt, nextRunAt time.Time }
}

func (f *fakeScheduleRepository) Create(ctx context.Context, s *db.Schedule) error { return nil }
func (f *fakeScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Schedule, error) {
	if id != f.sched.ID {
		return nil, repositories.ErrNotFound
	}
	s := f.sched
	return &s, nil
}
func (f *fakeScheduleRepository) Update(ctx context.Context, s *db.Schedule) error { return nil }
func (f *fakeScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error   { return nil }
func (f *fakeScheduleRepository) List(ctx context.Context, opts repositories.ListOptions) ([]db.Schedule, int64, error) {
	return []db.Schedule{f.sched}, 1, nil
}
func (f *fakeScheduleRepository) ListEnabled(ctx context.Context) ([]db.Schedule, error) {
	if !f.sched.Enabled {
		return nil, nil
	}
	return []db.Schedule{f.sched}, nil
}
func (f *fakeScheduleRepository) ReferencesTarget(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}
func (f *fakeScheduleRepository) ReferencesDestination(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}
func (f *fakeScheduleRepository) UpdateRunTimes(ctx context.Context, id uuid.UUID, lastRunAt, nextRunAt time.Time) error {
	f.updateCalls = append(f.updateCalls, struct{ lastRunAt, nextRunAt time.Time }{lastRunAt, nextRunAt})
	f.sched.LastRunAt = &lastRunAt
	f.sched.NextRunAt = &nextRunAt
	return nil
}

// fakeTargetRepository serves a single fixed target.
type fakeTargetRepository struct{ target db.Target }

func (f *fakeTargetRepository) Create(ctx context.Context, t *db.Target) error { return nil }
func (f *fakeTargetRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Target, error) {
	if id != f.target.ID {
		return nil, repositories.ErrNotFound
	}
	t := f.target
	return &t, nil
}
func (f *fakeTargetRepository) GetByName(ctx context.Context, name string) (*db.Target, error) {
	return nil, repositories.ErrNotFound
}
func (f *fakeTargetRepository) Update(ctx context.Context, t *db.Target) error { return nil }
func (f *fakeTargetRepository) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (f *fakeTargetRepository) List(ctx context.Context, opts repositories.ListOptions) ([]db.Target, int64, error) {
	return []db.Target{f.target}, 1, nil
}

// fakeDestinationRepository serves a single fixed destination.
type fakeDestinationRepository struct{ dest db.Destination }

func (f *fakeDestinationRepository) Create(ctx context.Context, d *db.Destination) error { return nil }
func (f *fakeDestinationRepository) GetByID(ctx context.Context, id uuid.UUID) (*db.Destination, error) {
	if id != f.dest.ID {
		return nil, repositories.ErrNotFound
	}
	d := f.dest
	return &d, nil
}
func (f *fakeDestinationRepository) Update(ctx context.Context, d *db.Destination) error { return nil }
func (f *fakeDestinationRepository) Delete(ctx context.Context, id uuid.UUID) error      { return nil }
func (f *fakeDestinationRepository) List(ctx context.Context, opts repositories.ListOptions) ([]db.Destination, int64, error) {
	return []db.Destination{f.dest}, 1, nil
}

// fakeRunRepository mirrors internal/pipeline's test fake, duplicated here
// since that one is unexported to its own package.
type fakeRunRepository struct {
	runs map[uuid.UUID]*db.Run
}

func newFakeRunRepository() *fakeRunRepository {
	return &fakeRunRepository{runs: make(map[uuid.UUID]*db.Run)}
}

func (f *fakeRunRepository) RecordRunStart(ctx context.Context, run *db.Run) error {
	run.ID = uuid.Must(uuid.NewV7())
	run.Status = db.RunStatusRunning
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunRepository) RecordRunFinish(ctx context.Context, id uuid.UUID, status db.RunStatus, detail string, fileSizeMB float64, backupID, backupFilename, errMsg string) error {
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
	return f.runs[id], nil
}

func (f *fakeRunRepository) ListRuns(ctx context.Context, filter repositories.RunFilter) ([]db.Run, int64, error) {
	return nil, 0, nil
}

func (f *fakeRunRepository) SweepAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}

// fakeDBAdapter dumps a fixed payload.
type fakeDBAdapter struct{}

func (fakeDBAdapter) TestConnection(ctx context.Context, target *db.Target) (dbadapter.ConnectionResult, error) {
	return dbadapter.ConnectionResult{OK: true}, nil
}
func (fakeDBAdapter) Dump(ctx context.Context, target *db.Target, sink io.Writer) (dbadapter.DumpResult, error) {
	n, err := sink.Write([]byte("dump"))
	return dbadapter.DumpResult{BytesWritten: int64(n), LogicalFormat: dbadapter.SuffixPostgresCustom}, err
}
func (fakeDBAdapter) Restore(ctx context.Context, target *db.Target, source io.Reader) error {
	_, err := io.ReadAll(source)
	return err
}

// stubStorageAdapter is an in-memory storage.Adapter, good enough to let a
// backup pipeline run reach completion without touching a real backend.
type stubStorageAdapter struct {
	mu      sync.Mutex
	objects map[string][]byte
	created map[string]time.Time
}

func newStubStorageAdapter() *stubStorageAdapter {
	return &stubStorageAdapter{objects: make(map[string][]byte), created: make(map[string]time.Time)}
}

func (f *stubStorageAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (storage.PutResult, error) {
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

func (f *stubStorageAdapter) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]storage.Item, 0, len(f.objects))
	for name, data := range f.objects {
		items = append(items, storage.Item{ID: name, Name: name, Size: int64(len(data)), CreatedAt: f.created[name]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return storage.ListResult{Items: items}, nil
}

func (f *stubStorageAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[name]
	f.mu.Unlock()
	if !ok {
		return nil, storage.ErrBackupNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *stubStorageAdapter) Delete(ctx context.Context, backupID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, name)
	delete(f.created, name)
	return nil
}

func (f *stubStorageAdapter) TestConnection(ctx context.Context) (storage.ConnectionResult, error) {
	return storage.ConnectionResult{OK: true}, nil
}

// fakeNotifier records every terminal Run it's handed.
type fakeNotifier struct {
	calls chan *db.Run
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{calls: make(chan *db.Run, 4)} }

func (f *fakeNotifier) Notify(ctx context.Context, run *db.Run, notificationsJSON json.RawMessage) {
	f.calls <- run
}

func newTestScheduler(t *testing.T, sched db.Schedule, target db.Target, dest db.Destination) (*Scheduler, *fakeScheduleRepository, *fakeNotifier) {
	t.Helper()

	dbAdapters := dbadapter.NewRegistry()
	dbAdapters.Register(db.DBTypePostgreSQL, fakeDBAdapter{})

	destRegistry := storage.NewRegistry()
	destRegistry.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) {
		return newStubStorageAdapter(), nil
	})
	pool := storage.NewPool(destRegistry, zap.NewNop())

	runs := newFakeRunRepository()
	backup := pipeline.NewBackupPipeline(dbAdapters, pool, runs, zap.NewNop())

	schedRepo := &fakeScheduleRepository{sched: sched}
	notifier := newFakeNotifier()

	s, err := New(schedRepo, &fakeTargetRepository{target: target}, &fakeDestinationRepository{dest: dest}, runs, backup, notifier, 1, zap.NewNop(), pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, schedRepo, notifier
}

func TestSchedulerTickSubmitsDueSchedule(t *testing.T) {
	target := db.Target{Name: "orders", DBType: db.DBTypePostgreSQL}
	target.ID = uuid.Must(uuid.NewV7())
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeLocal}
	dest.ID = uuid.Must(uuid.NewV7())

	destIDs, _ := json.Marshal([]string{dest.ID.String()})
	past := time.Now().UTC().Add(-time.Minute)
	sched := db.Schedule{
		Name:            "nightly",
		TargetID:        target.ID,
		DestinationIDs:  string(destIDs),
		IntervalSeconds: 3600,
		Enabled:         true,
		RetentionJSON:   "{}",
		NextRunAt:       &past,
	}
	sched.ID = uuid.Must(uuid.NewV7())

	s, schedRepo, notifier := newTestScheduler(t, sched, target, dest)

	s.tick(context.Background())

	select {
	case run := <-notifier.calls:
		if run.Status != db.RunStatusSuccess {
			t.Fatalf("expected success, got %s", run.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for schedule run to notify")
	}

	if len(schedRepo.updateCalls) == 0 {
		t.Fatal("expected UpdateRunTimes to be called")
	}
	if !schedRepo.updateCalls[0].nextRunAt.After(past) {
		t.Fatal("expected next_run_at to advance past the due time")
	}
}

func TestSchedulerTickSkipsNotYetDue(t *testing.T) {
	target := db.Target{Name: "orders", DBType: db.DBTypePostgreSQL}
	target.ID = uuid.Must(uuid.NewV7())
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeLocal}
	dest.ID = uuid.Must(uuid.NewV7())

	future := time.Now().UTC().Add(time.Hour)
	sched := db.Schedule{
		Name:            "nightly",
		TargetID:        target.ID,
		IntervalSeconds: 3600,
		Enabled:         true,
		RetentionJSON:   "{}",
		NextRunAt:       &future,
	}
	sched.ID = uuid.Must(uuid.NewV7())

	s, schedRepo, notifier := newTestScheduler(t, sched, target, dest)
	s.tick(context.Background())

	select {
	case <-notifier.calls:
		t.Fatal("schedule not yet due should not have run")
	case <-time.After(100 * time.Millisecond):
	}
	if len(schedRepo.updateCalls) != 0 {
		t.Fatal("expected no UpdateRunTimes call for a schedule not yet due")
	}
}

func TestTriggerNowBusyWhenLockHeld(t *testing.T) {
	target := db.Target{Name: "orders", DBType: db.DBTypePostgreSQL}
	target.ID = uuid.Must(uuid.NewV7())
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeLocal}
	dest.ID = uuid.Must(uuid.NewV7())

	sched := db.Schedule{Name: "nightly", TargetID: target.ID, IntervalSeconds: 3600, Enabled: true, RetentionJSON: "{}"}
	sched.ID = uuid.Must(uuid.NewV7())

	s, _, _ := newTestScheduler(t, sched, target, dest)
	s.locks.TryAcquire(sched.ID.String())

	if err := s.TriggerNow(context.Background(), sched.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestTriggerNowUnknownSchedule(t *testing.T) {
	target := db.Target{Name: "orders", DBType: db.DBTypePostgreSQL}
	target.ID = uuid.Must(uuid.NewV7())
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeLocal}
	dest.ID = uuid.Must(uuid.NewV7())
	sched := db.Schedule{Name: "nightly", TargetID: target.ID, IntervalSeconds: 3600, Enabled: true, RetentionJSON: "{}"}
	sched.ID = uuid.Must(uuid.NewV7())

	s, _, _ := newTestScheduler(t, sched, target, dest)

	if err := s.TriggerNow(context.Background(), uuid.Must(uuid.NewV7())); err == nil {
		t.Fatal("expected an error for an unknown schedule id")
	}
}
