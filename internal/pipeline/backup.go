package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/dbsentinel/dbsentinel/internal/dbadapter"
	"github.com/dbsentinel/dbsentinel/internal/db"
	"github.com/dbsentinel/dbsentinel/internal/envelope"
	"github.com/dbsentinel/dbsentinel/internal/filename"
	"github.com/dbsentinel/dbsentinel/internal/metrics"
	"github.com/dbsentinel/dbsentinel/internal/repositories"
	"github.com/dbsentinel/dbsentinel/internal/retention"
	"github.com/dbsentinel/dbsentinel/internal/storage"
)

// gzipLevel matches spec §4.4's "compress (deflate level 6)".
const gzipLevel = 6

// maxConcurrentDestinations bounds how many Put calls run at once during
// fan-out. A schedule can name an arbitrary number of destinations; nothing
// in spec §4.4 requires serializing them, but an unbounded goroutine-per-
// destination fan-out would let one schedule open dozens of simultaneous
// SFTP/Drive connections.
const maxConcurrentDestinations = 4

// BackupOptions carries the per-invocation parameters a backup Run needs
// beyond the target/destination/schedule rows themselves.
type BackupOptions struct {
	Trigger            db.Trigger
	Schedule           *db.Schedule // nil for a one-off run-now against no schedule
	Retention          retention.Policy
	Encrypt            bool
	EncryptionPassword string
}

// BackupPipeline implements C4: dump → compress → (encrypt) → fan-out to
// destinations → retention → Run finalization.
type BackupPipeline struct {
	dbAdapters *dbadapter.Registry
	destPool   *storage.Pool
	runs       repositories.RunRepository
	logger     *zap.Logger
}

// NewBackupPipeline builds a BackupPipeline.
func NewBackupPipeline(dbAdapters *dbadapter.Registry, destPool *storage.Pool, runs repositories.RunRepository, logger *zap.Logger) *BackupPipeline {
	return &BackupPipeline{
		dbAdapters: dbAdapters,
		destPool:   destPool,
		runs:       runs,
		logger:     logger.Named("pipeline.backup"),
	}
}

// Run executes one full backup pass and returns the finalized Run record.
// The returned error is non-nil only when the Run row itself could not be
// recorded (RecordRunStart failed). Every later failure, including the
// adapter registry rejecting an unknown db_type, finalizes that Run as
// failed and is captured in its own status/detail instead.
func (p *BackupPipeline) Run(ctx context.Context, target *db.Target, destinations []*db.Destination, opts BackupOptions) (*db.Run, error) {
	startedAt := time.Now().UTC()

	run := &db.Run{
		Operation:  db.OperationBackup,
		Trigger:    opts.Trigger,
		TargetID:   target.ID,
		TargetName: target.Name,
		StartedAt:  startedAt,
	}
	if opts.Schedule != nil {
		run.ScheduleID = &opts.Schedule.ID
		run.ScheduleName = opts.Schedule.Name
	}
	if err := p.runs.RecordRunStart(ctx, run); err != nil {
		return nil, fmt.Errorf("pipeline: recording run start: %w", err)
	}

	adapter, err := p.dbAdapters.Resolve(target.DBType)
	if err != nil {
		p.finishFailure(ctx, run, err)
		return run, nil
	}

	sp, err := newSpool()
	if err != nil {
		p.finishFailure(ctx, run, fmt.Errorf("allocating spool: %w", err))
		return run, nil
	}
	defer sp.close()

	dumpResult, err := p.dump(ctx, adapter, target, sp, opts)
	if err != nil {
		p.finishFailure(ctx, run, err)
		return run, nil
	}
	if err := sp.statSize(); err != nil {
		p.finishFailure(ctx, run, fmt.Errorf("stating spool: %w", err))
		return run, nil
	}

	name := filename.Compose(target.Name, startedAt, string(dumpResult.LogicalFormat), true, opts.Encrypt)
	targetFolder := filename.SanitizeTarget(target.Name)

	results := p.fanOut(ctx, destinations, sp, targetFolder, name)
	retentionResults := p.applyRetention(ctx, destinations, targetFolder, opts.Retention)

	p.finalize(ctx, run, name, results, retentionResults, sp.size)
	return run, nil
}

// dump runs the db adapter's Dump through the compress/encrypt transform
// chain into the spool. Stage A (dump) always runs; stage B (gzip) always
// runs; stage C (envelope encryption) runs only when opts.Encrypt is set
// (spec §4.4 step 3).
func (p *BackupPipeline) dump(ctx context.Context, adapter dbadapter.Adapter, target *db.Target, sp *spool, opts BackupOptions) (dbadapter.DumpResult, error) {
	if !opts.Encrypt {
		gz, _ := gzip.NewWriterLevel(sp.file, gzipLevel)
		result, err := adapter.Dump(ctx, target, gz)
		if closeErr := gz.Close(); err == nil {
			err = closeErr
		}
		return result, err
	}

	pr, pw := io.Pipe()
	var dumpResult dbadapter.DumpResult
	var dumpErr error
	done := make(chan struct{})

	go func() {
		defer close(done)
		gz, _ := gzip.NewWriterLevel(pw, gzipLevel)
		dumpResult, dumpErr = adapter.Dump(ctx, target, gz)
		if closeErr := gz.Close(); dumpErr == nil {
			dumpErr = closeErr
		}
		if dumpErr != nil {
			pw.CloseWithError(dumpErr)
			return
		}
		pw.Close()
	}()

	if _, err := envelope.Encrypt(sp.file, pr, opts.EncryptionPassword); err != nil {
		<-done
		if dumpErr != nil {
			return dbadapter.DumpResult{}, dumpErr
		}
		return dbadapter.DumpResult{}, fmt.Errorf("pipeline: encrypting dump: %w", err)
	}
	<-done
	return dumpResult, dumpErr
}

// fanOut streams the spool to every destination, up to maxConcurrentDestinations
// at a time. Each destination gets its own read handle on the spool rather
// than a shared tee, since the spool already guarantees "at most one dump
// per run" — re-reading the file N times costs disk I/O, not a second dump.
// Results preserve the caller's destination order regardless of completion
// order.
func (p *BackupPipeline) fanOut(ctx context.Context, destinations []*db.Destination, sp *spool, targetFolder, name string) []DestinationResult {
	results := make([]DestinationResult, len(destinations))
	sem := semaphore.NewWeighted(maxConcurrentDestinations)
	var wg sync.WaitGroup

	for i, dest := range destinations {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = DestinationResult{
				DestinationID: destinationID(dest), DestinationName: dest.Name,
				Status: "failure", Error: err.Error(),
			}
			continue
		}
		wg.Add(1)
		go func(i int, dest *db.Destination) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = p.putToDestination(ctx, dest, sp, targetFolder, name)
		}(i, dest)
	}
	wg.Wait()

	return results
}

func (p *BackupPipeline) putToDestination(ctx context.Context, dest *db.Destination, sp *spool, targetFolder, name string) DestinationResult {
	start := time.Now()
	result := DestinationResult{DestinationID: destinationID(dest), DestinationName: dest.Name}

	adapter, err := p.destPool.Get(dest)
	if err != nil {
		result.Status = "failure"
		result.Error = err.Error()
		return result
	}

	var putResult storage.PutResult
	putErr := storage.WithRetry(ctx, func() error {
		reader, err := sp.reader()
		if err != nil {
			return err
		}
		defer reader.Close()
		putResult, err = adapter.Put(ctx, targetFolder, name, reader, sp.size)
		return err
	})

	result.DurationMS = time.Since(start).Milliseconds()
	if putErr != nil {
		result.Status = "failure"
		result.Error = putErr.Error()
		p.logger.Warn("destination put failed",
			zap.String("destination_id", result.DestinationID), zap.Error(putErr))
	} else {
		result.Status = "success"
		result.BackupID = putResult.BackupID
		result.Bytes = sp.size
	}
	metrics.DestinationOutcomesTotal.WithLabelValues(string(dest.DestinationType), result.Status).Inc()
	return result
}

// applyRetention runs the pure evaluator per destination and deletes what
// it names. Evaluation/deletion failures are recorded but never alter the
// backup Run's overall status (spec §4.4 step 7).
func (p *BackupPipeline) applyRetention(ctx context.Context, destinations []*db.Destination, targetFolder string, policy retention.Policy) []RetentionResult {
	if policy.MaxCount == nil && policy.MaxDays == nil && policy.MaxSizeMB == nil && policy.Smart == nil {
		return nil
	}

	results := make([]RetentionResult, 0, len(destinations))
	for _, dest := range destinations {
		result := RetentionResult{DestinationID: destinationID(dest)}

		adapter, err := p.destPool.Get(dest)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			results = append(results, result)
			continue
		}

		listing, err := adapter.List(ctx, storage.ListOptions{TargetFolder: targetFolder})
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			results = append(results, result)
			continue
		}

		artifacts := make([]retention.Artifact, 0, len(listing.Items))
		idByName := make(map[string]string, len(listing.Items))
		for _, item := range listing.Items {
			artifacts = append(artifacts, retention.Artifact{Name: item.Name, CreatedAt: item.CreatedAt, Size: item.Size})
			idByName[item.Name] = item.ID
		}

		toDelete, err := retention.Evaluate(policy, artifacts, time.Now().UTC())
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			results = append(results, result)
			continue
		}

		for _, artifact := range toDelete {
			if err := adapter.Delete(ctx, idByName[artifact.Name], artifact.Name); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", artifact.Name, err))
				continue
			}
			result.Deleted = append(result.Deleted, artifact.Name)
			metrics.RetentionDeletionsTotal.WithLabelValues(string(dest.DestinationType)).Inc()
		}
		results = append(results, result)
	}
	return results
}

// finalize determines overall status from per-destination results (spec
// §4.4 step 6) and persists the finished Run.
func (p *BackupPipeline) finalize(ctx context.Context, run *db.Run, name string, results []DestinationResult, retentionResults []RetentionResult, spoolBytes int64) {
	status := overallStatus(results)

	detail := BackupDetail{Destinations: results, Retention: retentionResults}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		detailJSON = []byte(`{}`)
	}

	sizeMB := float64(spoolBytes) / (1 << 20)
	var backupID string
	if len(results) == 1 {
		backupID = results[0].BackupID
	}

	errMsg := ""
	if status == db.RunStatusFailure {
		errMsg = "all destinations failed"
	} else if status == db.RunStatusPartialSuccess {
		errMsg = "one or more destinations failed"
	}

	if err := p.runs.RecordRunFinish(ctx, run.ID, status, string(detailJSON), sizeMB, backupID, name, errMsg); err != nil {
		p.logger.Error("failed to record run finish", zap.String("run_id", run.ID.String()), zap.Error(err))
	}

	metrics.RunsTotal.WithLabelValues(string(run.Operation), string(run.Trigger), string(status)).Inc()
	metrics.RunDuration.WithLabelValues(string(run.Operation)).Observe(time.Since(run.StartedAt).Seconds())
	metrics.RunSizeMB.WithLabelValues(string(run.Operation)).Observe(sizeMB)
}

func overallStatus(results []DestinationResult) db.RunStatus {
	if len(results) == 0 {
		return db.RunStatusFailure
	}
	successes, failures := 0, 0
	for _, r := range results {
		if r.Status == "success" {
			successes++
		} else {
			failures++
		}
	}
	switch {
	case failures == 0:
		return db.RunStatusSuccess
	case successes == 0:
		return db.RunStatusFailure
	default:
		return db.RunStatusPartialSuccess
	}
}

func (p *BackupPipeline) finishFailure(ctx context.Context, run *db.Run, err error) {
	if finishErr := p.runs.RecordRunFinish(ctx, run.ID, db.RunStatusFailure, "{}", 0, "", "", err.Error()); finishErr != nil {
		p.logger.Error("failed to record run failure", zap.String("run_id", run.ID.String()), zap.Error(finishErr))
	}
	metrics.RunsTotal.WithLabelValues(string(run.Operation), string(run.Trigger), string(db.RunStatusFailure)).Inc()
	metrics.RunDuration.WithLabelValues(string(run.Operation)).Observe(time.Since(run.StartedAt).Seconds())
}

// destinationID returns dest's id, or the built-in local destination's
// sentinel id for the synthetic Destination the API layer constructs when
// a caller targets local storage directly (which has no row of its own).
func destinationID(dest *db.Destination) string {
	if dest.ID == uuid.Nil {
		return db.LocalDestinationID
	}
	return dest.ID.String()
}
