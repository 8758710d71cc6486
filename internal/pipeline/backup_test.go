package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/retention"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

func newTestBackupPipeline(t *testing.T, fakeDB *fakeDBAdapter) (*BackupPipeline, *fakeRunRepository, *fakeStorageAdapter) {
	t.Helper()

	dbAdapters := dbadapter.NewRegistry()
	dbAdapters.Register(db.DBTypePostgreSQL, fakeDB)

	destRegistry := storage.NewRegistry()
	fakeDest := newFakeStorageAdapter()
	destRegistry.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) {
		return fakeDest, nil
	})
	pool := storage.NewPool(destRegistry, zap.NewNop())

	runs := newFakeRunRepository()
	return NewBackupPipeline(dbAdapters, pool, runs, zap.NewNop()), runs, fakeDest
}

func testTarget() *db.Target {
	return &db.Target{
		Name:   "orders",
		DBType: db.DBTypePostgreSQL,
	}
}

func testDestination() *db.Destination {
	return &db.Destination{
		Name:            "primary",
		DestinationType: db.DestinationTypeLocal,
	}
}

func TestBackupPipelineRunSuccessUnencrypted(t *testing.T) {
	fakeDB := &fakeDBAdapter{payload: []byte("SELECT 1;"), suffix: dbadapter.SuffixPostgresCustom}
	p, runs, dest := newTestBackupPipeline(t, fakeDB)

	target := testTarget()
	dests := []*db.Destination{testDestination()}

	run, err := p.Run(context.Background(), target, dests, BackupOptions{Trigger: db.TriggerManual})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusSuccess {
		t.Fatalf("status = %s, want success (err=%q)", run.Status, run.ErrorMessage)
	}
	if len(runs.started) != 1 {
		t.Fatalf("expected exactly one Run started, got %d", len(runs.started))
	}
	if len(dest.objects) != 1 {
		t.Fatalf("expected exactly one object written, got %d", len(dest.objects))
	}

	for name, data := range dest.objects {
		if !bytes.HasSuffix([]byte(name), []byte(".dump.gz")) {
			t.Fatalf("stored name %q missing .dump.gz suffix", name)
		}
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("stored object is not valid gzip: %v", err)
		}
		plain, err := io.ReadAll(gz)
		if err != nil {
			t.Fatalf("reading gzip stream: %v", err)
		}
		if string(plain) != "SELECT 1;" {
			t.Fatalf("round-tripped payload = %q, want %q", plain, "SELECT 1;")
		}
	}
}

func TestBackupPipelineRunEncrypted(t *testing.T) {
	fakeDB := &fakeDBAdapter{payload: []byte("dump-bytes"), suffix: dbadapter.SuffixMySQL}
	p, _, dest := newTestBackupPipeline(t, fakeDB)
	p.dbAdapters.Register(db.DBTypeMySQL, fakeDB)

	target := &db.Target{Name: "accounts", DBType: db.DBTypeMySQL}
	dests := []*db.Destination{testDestination()}

	run, err := p.Run(context.Background(), target, dests, BackupOptions{
		Trigger:            db.TriggerRunNow,
		Encrypt:            true,
		EncryptionPassword: "correct horse battery staple",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusSuccess {
		t.Fatalf("status = %s (err=%q)", run.Status, run.ErrorMessage)
	}
	for name := range dest.objects {
		if !bytes.HasSuffix([]byte(name), []byte(".sql.gz.enc")) {
			t.Fatalf("stored name %q missing .sql.gz.enc suffix", name)
		}
	}
}

func TestBackupPipelineDumpFailureRecordsFailureStatus(t *testing.T) {
	fakeDB := &fakeDBAdapter{dumpErr: errBoom}
	p, runs, _ := newTestBackupPipeline(t, fakeDB)

	run, err := p.Run(context.Background(), testTarget(), []*db.Destination{testDestination()}, BackupOptions{Trigger: db.TriggerManual})
	if err != nil {
		t.Fatalf("Run returned error instead of a failed Run: %v", err)
	}
	if run.Status != db.RunStatusFailure {
		t.Fatalf("status = %s, want failure", run.Status)
	}
	if len(runs.started) != 1 {
		t.Fatalf("expected one Run row even on dump failure, got %d", len(runs.started))
	}
}

func TestBackupPipelinePartialSuccessAcrossDestinations(t *testing.T) {
	fakeDB := &fakeDBAdapter{payload: []byte("ok"), suffix: dbadapter.SuffixPostgresCustom}
	p, _, _ := newTestBackupPipeline(t, fakeDB)

	failing := newFakeStorageAdapter()
	failing.putErr = errBoom

	destA := &db.Destination{ID: uuid.Must(uuid.NewV7()), Name: "a", DestinationType: db.DestinationTypeLocal}
	destB := &db.Destination{ID: uuid.Must(uuid.NewV7()), Name: "b", DestinationType: db.DestinationTypeLocal}

	// Keyed by destination id (fixed at construction, read-only during
	// fan-out) rather than a call counter, so this factory is safe under
	// fanOut's concurrent Put calls.
	destRegistry := storage.NewRegistry()
	destRegistry.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) {
		if d.ID == destA.ID {
			return failing, nil
		}
		return newFakeStorageAdapter(), nil
	})
	p.destPool = storage.NewPool(destRegistry, zap.NewNop())

	run, err := p.Run(context.Background(), testTarget(), []*db.Destination{destA, destB}, BackupOptions{Trigger: db.TriggerManual})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusPartialSuccess {
		t.Fatalf("status = %s, want partial_success", run.Status)
	}
}

func TestBackupPipelineAppliesRetention(t *testing.T) {
	fakeDB := &fakeDBAdapter{payload: []byte("x"), suffix: dbadapter.SuffixPostgresCustom}
	p, _, dest := newTestBackupPipeline(t, fakeDB)

	// Pre-seed the destination with artifacts that max_count=1 should evict
	// everything old in favor of the fresh run's own artifact.
	dest.objects["backup_orders_20200101_000000.dump.gz"] = []byte("stale")
	dest.created["backup_orders_20200101_000000.dump.gz"] = pastTime

	maxCount := 1
	run, err := p.Run(context.Background(), testTarget(), []*db.Destination{testDestination()}, BackupOptions{
		Trigger:   db.TriggerManual,
		Retention: retention.Policy{MaxCount: &maxCount},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusSuccess {
		t.Fatalf("status = %s", run.Status)
	}
	if _, ok := dest.objects["backup_orders_20200101_000000.dump.gz"]; ok {
		t.Fatal("stale artifact should have been evicted by max_count=1 retention")
	}
	if len(dest.objects) != 1 {
		t.Fatalf("expected exactly the fresh artifact to remain, got %d objects", len(dest.objects))
	}
}
