package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/pipeline"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

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
func (f *fakeDestinationRepository) Delete(ctx context.Context, id uuid.UUID) error       { return nil }
func (f *fakeDestinationRepository) List(ctx context.Context, opts repositories.ListOptions) ([]db.Destination, int64, error) {
	return []db.Destination{f.dest}, 1, nil
}

// stubStorageAdapter serves one fixed artifact regardless of the requested name.
type stubStorageAdapter struct{ data []byte }

func (s *stubStorageAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (storage.PutResult, error) {
	return storage.PutResult{}, nil
}
func (s *stubStorageAdapter) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	return storage.ListResult{}, nil
}
func (s *stubStorageAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}
func (s *stubStorageAdapter) Delete(ctx context.Context, backupID, name string) error { return nil }
func (s *stubStorageAdapter) TestConnection(ctx context.Context) (storage.ConnectionResult, error) {
	return storage.ConnectionResult{OK: true}, nil
}

func newTestService(t *testing.T, dest db.Destination, artifact []byte) *notificationService {
	t.Helper()
	registry := storage.NewRegistry()
	registry.Register(dest.DestinationType, func(*db.Destination) (storage.Adapter, error) {
		return &stubStorageAdapter{data: artifact}, nil
	})
	pool := storage.NewPool(registry, zap.NewNop())
	return &notificationService{
		email:    newEmailSender(nil),
		telegram: &telegramSender{},
		dests:    &fakeDestinationRepository{dest: dest},
		storage:  pool,
		logger:   zap.NewNop(),
	}
}

func successfulBackupRun(destID string, bytesWritten int64) *db.Run {
	detail := pipeline.BackupDetail{Destinations: []pipeline.DestinationResult{
		{DestinationID: destID, DestinationName: "primary", BackupID: "b1", Bytes: bytesWritten, Status: "success"},
	}}
	raw, _ := json.Marshal(detail)
	now := time.Now().UTC()
	run := &db.Run{
		Operation:      db.OperationBackup,
		Status:         db.RunStatusSuccess,
		TargetName:     "orders",
		BackupFilename: "orders_20260101_pg.sql.gz",
		StartedAt:      now,
		FinishedAt:     &now,
		DetailJSON:     string(raw),
	}
	run.ID = uuid.Must(uuid.NewV7())
	return run
}

func TestLoadAttachmentReturnsArtifactWithinSizeLimit(t *testing.T) {
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeSFTP}
	dest.ID = uuid.Must(uuid.NewV7())
	artifact := []byte("backup bytes")

	svc := newTestService(t, dest, artifact)
	run := successfulBackupRun(dest.ID.String(), int64(len(artifact)))

	attach := svc.loadAttachment(context.Background(), run, 10)
	if attach == nil {
		t.Fatal("expected an attachment within the size limit")
	}
	if string(attach.data) != string(artifact) {
		t.Fatalf("unexpected attachment content: %q", attach.data)
	}
}

func TestLoadAttachmentOmitsWhenOverSizeLimit(t *testing.T) {
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeSFTP}
	dest.ID = uuid.Must(uuid.NewV7())

	svc := newTestService(t, dest, []byte("irrelevant"))
	run := successfulBackupRun(dest.ID.String(), int64(20*bytesPerMB))

	if attach := svc.loadAttachment(context.Background(), run, 10); attach != nil {
		t.Fatal("expected the attachment to be omitted when it exceeds attach_max_mb")
	}
}

func TestLoadAttachmentOmitsForRestoreOperation(t *testing.T) {
	dest := db.Destination{Name: "primary", DestinationType: db.DestinationTypeSFTP}
	dest.ID = uuid.Must(uuid.NewV7())

	svc := newTestService(t, dest, []byte("irrelevant"))
	run := successfulBackupRun(dest.ID.String(), 100)
	run.Operation = db.OperationRestore

	if attach := svc.loadAttachment(context.Background(), run, 10); attach != nil {
		t.Fatal("expected no attachment for a restore run")
	}
}

func TestLoadAttachmentResolvesLocalSentinel(t *testing.T) {
	dest := db.Destination{Name: "local", DestinationType: db.DestinationTypeLocal}
	svc := newTestService(t, dest, []byte("bytes"))
	run := successfulBackupRun(db.LocalDestinationID, 10)

	attach := svc.loadAttachment(context.Background(), run, 10)
	if attach == nil {
		t.Fatal("expected the local sentinel destination to resolve and return an attachment")
	}
}

func TestSeverityForMapsRunStatus(t *testing.T) {
	cases := map[db.RunStatus]Severity{
		db.RunStatusSuccess:        SeverityInfo,
		db.RunStatusPartialSuccess: SeverityWarning,
		db.RunStatusFailure:        SeverityError,
	}
	for status, want := range cases {
		if got := severityFor(status); got != want {
			t.Errorf("severityFor(%s) = %s, want %s", status, got, want)
		}
	}
}

func TestParseNotificationsEmptyIsZeroValue(t *testing.T) {
	cfg, err := ParseNotifications(nil)
	if err != nil {
		t.Fatalf("ParseNotifications: %v", err)
	}
	if cfg.Telegram.Enabled || cfg.Email.Enabled {
		t.Fatalf("expected zero-value config, got %+v", cfg)
	}
}

func TestFormatBodyIncludesRequiredFields(t *testing.T) {
	run := successfulBackupRun("__local__", 100)
	run.ScheduleName = "nightly"
	body := formatBody(run)

	for _, want := range []string{run.ID.String(), string(run.Operation), string(run.Status), run.TargetName, "nightly", "primary"} {
		if !contains(body, want) {
			t.Errorf("expected body to contain %q, got:\n%s", want, body)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
