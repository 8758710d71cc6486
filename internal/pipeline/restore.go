package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/envelope"
	"github.com/dbsentinel/dbsentinel/internal/filename"
	"github.com/dbsentinel/dbsentinel/internal/metrics"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// RestoreOptions carries the per-invocation parameters a restore Run needs.
type RestoreOptions struct {
	Trigger            db.Trigger
	Confirmation       string // must equal the literal "RESTORE"
	BackupID           string // destination-opaque artifact id
	BackupFilename     string // composed filename, decoded via internal/filename.Parse
	EncryptionPassword string
}

// RestorePipeline implements C7: locate an artifact at a destination,
// reverse the backup transform chain, and apply it to a target (spec §4.7).
type RestorePipeline struct {
	dbAdapters *dbadapter.Registry
	destPool   *storage.Pool
	runs       repositories.RunRepository
	logger     *zap.Logger
}

// NewRestorePipeline builds a RestorePipeline.
func NewRestorePipeline(dbAdapters *dbadapter.Registry, destPool *storage.Pool, runs repositories.RunRepository, logger *zap.Logger) *RestorePipeline {
	return &RestorePipeline{
		dbAdapters: dbAdapters,
		destPool:   destPool,
		runs:       runs,
		logger:     logger.Named("pipeline.restore"),
	}
}

// Run validates the restore gate (spec §4.7), reverses the stored artifact's
// transform chain, and applies it to target via the resolved db adapter.
// Gate failures (ErrConfirmationRequired, ErrEncryptionPasswordRequired,
// ErrIncompatibleBackup) are returned directly and never produce a Run row —
// they reject the request before any execution begins. Once execution
// starts, failures are recorded on the Run itself, mirroring the backup
// pipeline's status transitions.
func (p *RestorePipeline) Run(ctx context.Context, target *db.Target, destination *db.Destination, opts RestoreOptions) (*db.Run, error) {
	if opts.Confirmation != confirmationPhrase {
		return nil, ErrConfirmationRequired
	}

	parsed, err := filename.Parse(opts.BackupFilename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatibleBackup, err)
	}
	if !compatibleSuffix(target.DBType, parsed.DBSuffix) {
		return nil, ErrIncompatibleBackup
	}
	if parsed.Encrypted && opts.EncryptionPassword == "" {
		return nil, ErrEncryptionPasswordRequired
	}

	adapter, err := p.dbAdapters.Resolve(target.DBType)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	run := &db.Run{
		Operation:       db.OperationRestore,
		Trigger:         opts.Trigger,
		TargetID:        target.ID,
		TargetName:      target.Name,
		DestinationID:   destinationID(destination),
		DestinationName: destination.Name,
		BackupFilename:  opts.BackupFilename,
		BackupID:        opts.BackupID,
		StartedAt:       time.Now().UTC(),
	}
	if err := p.runs.RecordRunStart(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: recording run start: %w", err)
	}

	destAdapter, err := p.destPool.Get(destination)
	if err != nil {
		p.finishFailure(ctx, run, err)
		return run, nil
	}

	raw, err := destAdapter.Get(ctx, opts.BackupID, opts.BackupFilename)
	if err != nil {
		p.finishFailure(ctx, run, fmt.Errorf("fetching artifact: %w", err))
		return run, nil
	}

	stream, closeChain, err := p.reverseChain(raw, parsed, opts.EncryptionPassword)
	if err != nil {
		raw.Close()
		p.finishFailure(ctx, run, fmt.Errorf("preparing artifact stream: %w", err))
		return run, nil
	}

	counted := &countingReader{Reader: stream}
	restoreErr := adapter.Restore(ctx, target, counted)
	if closeErr := closeChain(); restoreErr == nil {
		restoreErr = closeErr
	}

	if restoreErr != nil {
		p.finishFailure(ctx, run, restoreErr)
		return run, nil
	}

	p.finishSuccess(ctx, run, counted.n)
	return run, nil
}

// reverseChain builds the stream adapter.Restore reads from, undoing
// whichever of the encrypt/gzip stages Compose applied, in the same order
// the filename suffixes appear (.enc outermost, then .gz) — the mirror
// image of the backup pipeline's dump method.
func (p *RestorePipeline) reverseChain(raw io.ReadCloser, parsed filename.Parsed, password string) (io.Reader, func() error, error) {
	var stream io.Reader = raw
	closers := []io.Closer{raw}

	if parsed.Encrypted {
		pr, pw := io.Pipe()
		src := stream
		go func() {
			pw.CloseWithError(envelope.Decrypt(pw, src, password))
		}()
		stream = pr
	}

	if parsed.Gzipped {
		gz, err := gzip.NewReader(stream)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		stream = gz
		closers = append(closers, gz)
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return stream, closeAll, nil
}

func (p *RestorePipeline) finishSuccess(ctx context.Context, run *db.Run, bytes int64) {
	detail := RestoreDetail{
		DestinationID:  run.DestinationID,
		SourceBackupID: run.BackupID,
		SourceFilename: run.BackupFilename,
		Bytes:          bytes,
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = []byte(`{}`)
	}
	sizeMB := float64(bytes) / (1 << 20)
	if err := p.runs.RecordRunFinish(ctx, run.ID, db.RunStatusSuccess, string(detailJSON), sizeMB, run.BackupID, run.BackupFilename, ""); err != nil {
		p.logger.Error("failed to record run finish", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	metrics.RunsTotal.WithLabelValues(string(run.Operation), string(run.Trigger), string(db.RunStatusSuccess)).Inc()
	metrics.RunDuration.WithLabelValues(string(run.Operation)).Observe(time.Since(run.StartedAt).Seconds())
	metrics.RunSizeMB.WithLabelValues(string(run.Operation)).Observe(sizeMB)
}

func (p *RestorePipeline) finishFailure(ctx context.Context, run *db.Run, err error) {
	if finishErr := p.runs.RecordRunFinish(ctx, run.ID, db.RunStatusFailure, "{}", 0, run.BackupID, run.BackupFilename, err.Error()); finishErr != nil {
		p.logger.Error("failed to record run failure", zap.String("run_id", run.ID.String()), zap.Error(finishErr))
	}
	p.logger.Warn("restore failed", zap.String("run_id", run.ID.String()), zap.Error(err))
	metrics.RunsTotal.WithLabelValues(string(run.Operation), string(run.Trigger), string(db.RunStatusFailure)).Inc()
	metrics.RunDuration.WithLabelValues(string(run.Operation)).Observe(time.Since(run.StartedAt).Seconds())
}

// compatibleSuffix reports whether suffix (the engine-logical suffix parsed
// from a backup's filename, e.g. ".dump") can plausibly have been produced
// for dbType. This is necessarily approximate: MySQL and PostgreSQL's plain
// format share ".sql", so a MySQL dump restored against a PostgreSQL target
// still passes this check — the authoritative check is the Restore call
// itself failing against malformed input.
func compatibleSuffix(dbType db.DBType, suffix string) bool {
	switch dbType {
	case db.DBTypePostgreSQL:
		return suffix == string(dbadapter.SuffixPostgresCustom) || suffix == string(dbadapter.SuffixPostgresPlain)
	case db.DBTypeMySQL:
		return suffix == string(dbadapter.SuffixMySQL)
	case db.DBTypeSQLite:
		return suffix == string(dbadapter.SuffixSQLite)
	case db.DBTypeNeo4j:
		return suffix == string(dbadapter.SuffixNeo4j)
	default:
		return false
	}
}

// countingReader tracks total bytes read through it, used to report the
// restored artifact's logical size even though the source is a chain of
// decrypt/gunzip readers rather than a single file with a known length.
type countingReader struct {
	io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	c.n += int64(n)
	return n, err
}
