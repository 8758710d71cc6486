package pipeline

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/filename"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

func newTestRestorePipeline(t *testing.T, fakeDB *fakeDBAdapter, dbType db.DBType) (*RestorePipeline, *fakeRunRepository, *fakeStorageAdapter) {
	t.Helper()

	dbAdapters := dbadapter.NewRegistry()
	dbAdapters.Register(dbType, fakeDB)

	destRegistry := storage.NewRegistry()
	fakeDest := newFakeStorageAdapter()
	destRegistry.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) {
		return fakeDest, nil
	})
	pool := storage.NewPool(destRegistry, zap.NewNop())

	runs := newFakeRunRepository()
	return NewRestorePipeline(dbAdapters, pool, runs, zap.NewNop()), runs, fakeDest
}

// backupThenRestore runs a real BackupPipeline to produce a well-formed
// artifact name/bytes, so restore tests exercise the actual transform chain
// rather than a hand-built fixture.
func backupThenRestore(t *testing.T, target *db.Target, encrypt bool, password string) (string, *fakeStorageAdapter, *fakeDBAdapter) {
	t.Helper()
	fakeDB := &fakeDBAdapter{payload: []byte("CREATE TABLE t (id int);"), suffix: dbadapter.SuffixPostgresCustom}
	if target.DBType == db.DBTypeMySQL {
		fakeDB.suffix = dbadapter.SuffixMySQL
	}
	bp, _, dest := newTestBackupPipeline(t, fakeDB)
	if target.DBType != db.DBTypePostgreSQL {
		bp.dbAdapters.Register(target.DBType, fakeDB)
	}

	run, err := bp.Run(context.Background(), target, []*db.Destination{testDestination()}, BackupOptions{
		Trigger: db.TriggerManual, Encrypt: encrypt, EncryptionPassword: password,
	})
	if err != nil || run.Status != db.RunStatusSuccess {
		t.Fatalf("seeding backup failed: err=%v status=%v detail=%v", err, run.Status, run.ErrorMessage)
	}

	var name string
	for n := range dest.objects {
		name = n
	}
	return name, dest, fakeDB
}

func TestRestorePipelineRoundTripUnencrypted(t *testing.T) {
	target := testTarget()
	name, dest, fakeDB := backupThenRestore(t, target, false, "")

	restoreDB := &fakeDBAdapter{}
	rp, runs, _ := newTestRestorePipeline(t, restoreDB, target.DBType)
	rp.destPool = storage.NewPool(func() *storage.Registry {
		r := storage.NewRegistry()
		r.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) { return dest, nil })
		return r
	}(), zap.NewNop())

	run, err := rp.Run(context.Background(), target, testDestination(), RestoreOptions{
		Trigger:        db.TriggerManual,
		Confirmation:   "RESTORE",
		BackupFilename: name,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusSuccess {
		t.Fatalf("status = %s, want success (err=%q)", run.Status, run.ErrorMessage)
	}
	if string(restoreDB.restored) != string(fakeDB.payload) {
		t.Fatalf("restored payload = %q, want %q", restoreDB.restored, fakeDB.payload)
	}
	if len(runs.started) != 1 || runs.started[0].Operation != db.OperationRestore {
		t.Fatalf("expected one restore Run recorded, got %+v", runs.started)
	}
}

func TestRestorePipelineRoundTripEncrypted(t *testing.T) {
	target := &db.Target{Name: "accounts", DBType: db.DBTypeMySQL}
	password := "hunter2hunter2"
	name, dest, fakeDB := backupThenRestore(t, target, true, password)

	restoreDB := &fakeDBAdapter{}
	rp, _, _ := newTestRestorePipeline(t, restoreDB, target.DBType)
	rp.destPool = storage.NewPool(func() *storage.Registry {
		r := storage.NewRegistry()
		r.Register(db.DestinationTypeLocal, func(d *db.Destination) (storage.Adapter, error) { return dest, nil })
		return r
	}(), zap.NewNop())

	run, err := rp.Run(context.Background(), target, testDestination(), RestoreOptions{
		Trigger:            db.TriggerManual,
		Confirmation:       "RESTORE",
		BackupFilename:     name,
		EncryptionPassword: password,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Status != db.RunStatusSuccess {
		t.Fatalf("status = %s, want success (err=%q)", run.Status, run.ErrorMessage)
	}
	if string(restoreDB.restored) != string(fakeDB.payload) {
		t.Fatalf("restored payload = %q, want %q", restoreDB.restored, fakeDB.payload)
	}
}

func TestRestorePipelineRejectsWrongConfirmation(t *testing.T) {
	rp, _, _ := newTestRestorePipeline(t, &fakeDBAdapter{}, db.DBTypePostgreSQL)
	_, err := rp.Run(context.Background(), testTarget(), testDestination(), RestoreOptions{
		Confirmation:   "please",
		BackupFilename: "backup_orders_20260101_000000.dump.gz",
	})
	if !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("err = %v, want ErrConfirmationRequired", err)
	}
}

func TestRestorePipelineRequiresPasswordForEncryptedArtifact(t *testing.T) {
	rp, _, _ := newTestRestorePipeline(t, &fakeDBAdapter{}, db.DBTypePostgreSQL)
	_, err := rp.Run(context.Background(), testTarget(), testDestination(), RestoreOptions{
		Confirmation:   "RESTORE",
		BackupFilename: "backup_orders_20260101_000000.dump.gz.enc",
	})
	if !errors.Is(err, ErrEncryptionPasswordRequired) {
		t.Fatalf("err = %v, want ErrEncryptionPasswordRequired", err)
	}
}

func TestRestorePipelineRejectsIncompatibleSuffix(t *testing.T) {
	rp, _, _ := newTestRestorePipeline(t, &fakeDBAdapter{}, db.DBTypeSQLite)
	_, err := rp.Run(context.Background(), &db.Target{Name: "cache", DBType: db.DBTypeSQLite}, testDestination(), RestoreOptions{
		Confirmation:   "RESTORE",
		BackupFilename: "backup_cache_20260101_000000.cypher",
	})
	if !errors.Is(err, ErrIncompatibleBackup) {
		t.Fatalf("err = %v, want ErrIncompatibleBackup", err)
	}
}

func TestRestorePipelineRejectsMalformedFilename(t *testing.T) {
	rp, _, _ := newTestRestorePipeline(t, &fakeDBAdapter{}, db.DBTypePostgreSQL)
	_, err := rp.Run(context.Background(), testTarget(), testDestination(), RestoreOptions{
		Confirmation:   "RESTORE",
		BackupFilename: "not-a-backup-name.txt",
	})
	if !errors.Is(err, ErrIncompatibleBackup) {
		t.Fatalf("err = %v, want ErrIncompatibleBackup", err)
	}
}

func TestRestorePipelineParseSanityForSuffixChecks(t *testing.T) {
	// Cross-check compatibleSuffix against filename.Parse's actual output
	// shape rather than a hand-typed suffix string.
	parsed, err := filename.Parse("backup_orders_20260101_000000.dump.gz.enc")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !compatibleSuffix(db.DBTypePostgreSQL, parsed.DBSuffix) {
		t.Fatalf("expected .dump to be compatible with postgresql")
	}
	if compatibleSuffix(db.DBTypeNeo4j, parsed.DBSuffix) {
		t.Fatalf("expected .dump to be incompatible with neo4j")
	}
}
