package storage

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// gdriveAdapter stores backups as files in a single pre-existing Drive
// folder, identified once by config.folder_id (spec §4.3: "resolves
// folder_id once per call" — here resolved once at construction and reused,
// since the folder is a fixed destination property rather than something
// discovered from targetFolder).
type gdriveAdapter struct {
	folderID string
	secrets  gdriveSecrets
}

// NewGDriveAdapter builds the Adapter for destination_type=google_drive.
func NewGDriveAdapter(destination *db.Destination) (Adapter, error) {
	cfg, secrets, err := parseGDriveConfig(destination)
	if err != nil {
		return nil, err
	}
	return &gdriveAdapter{folderID: cfg.FolderID, secrets: secrets}, nil
}

func (a *gdriveAdapter) service(ctx context.Context) (*drive.Service, error) {
	return drive.NewService(ctx, option.WithCredentialsJSON([]byte(a.secrets.ServiceAccountJSON)))
}

// qualifiedName joins the logical target folder into the Drive filename,
// since Drive has no real directory hierarchy inside our single configured
// folder — every backup_id in this adapter is a bare Drive file ID, so the
// target folder has to be encoded into the name to keep List scoped.
func qualifiedName(targetFolder, name string) string {
	return targetFolder + "__" + name
}

func (a *gdriveAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (PutResult, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return PutResult{}, a.classify("put", err)
	}

	file := &drive.File{
		Name:    qualifiedName(targetFolder, name),
		Parents: []string{a.folderID},
	}

	call := svc.Files.Create(file).Context(ctx).Media(stream, option.WithChunkSize(8*1024*1024))
	created, err := call.Fields("id", "createdTime").Do()
	if err != nil {
		return PutResult{}, a.classify("put", err)
	}

	createdAt, err := time.Parse(time.RFC3339, created.CreatedTime)
	if err != nil {
		createdAt = time.Now().UTC()
	}
	return PutResult{BackupID: created.Id, CreatedAt: createdAt}, nil
}

func (a *gdriveAdapter) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return ListResult{}, a.classify("list", err)
	}

	query := fmt.Sprintf("'%s' in parents and trashed = false", a.folderID)

	items := make([]Item, 0)
	pageToken := ""
	for {
		call := svc.Files.List().Context(ctx).Q(query).
			Fields("nextPageToken, files(id, name, size, createdTime)").
			PageSize(1000)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return ListResult{}, a.classify("list", err)
		}
		for _, f := range page.Files {
			name := f.Name
			if opts.TargetFolder != "" {
				prefix := opts.TargetFolder + "__"
				if !strings.HasPrefix(name, prefix) {
					continue
				}
				name = strings.TrimPrefix(name, prefix)
			}
			if opts.Prefix != "" && !strings.HasPrefix(name, opts.Prefix) {
				continue
			}
			createdAt, err := time.Parse(time.RFC3339, f.CreatedTime)
			if err != nil {
				createdAt = time.Time{}
			}
			items = append(items, Item{ID: f.Id, Name: name, Size: f.Size, CreatedAt: createdAt})
		}
		pageToken = page.NextPageToken
		if pageToken == "" || (opts.Limit > 0 && len(items) >= opts.Offset+opts.Limit) {
			break
		}
	}

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

func (a *gdriveAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, a.classify("get", err)
	}

	resp, err := svc.Files.Get(backupID).Context(ctx).Download()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, ErrBackupNotFound
		}
		return nil, a.classify("get", err)
	}
	return resp.Body, nil
}

func (a *gdriveAdapter) Delete(ctx context.Context, backupID, name string) error {
	svc, err := a.service(ctx)
	if err != nil {
		return a.classify("delete", err)
	}

	if err := svc.Files.Delete(backupID).Context(ctx).Do(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return ErrBackupNotFound
		}
		return a.classify("delete", err)
	}
	return nil
}

func (a *gdriveAdapter) TestConnection(ctx context.Context) (ConnectionResult, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}

	folder, err := svc.Files.Get(a.folderID).Context(ctx).Fields("id", "mimeType").Do()
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	if folder.MimeType != "application/vnd.google-apps.folder" {
		return ConnectionResult{OK: false, Message: "configured folder_id is not a folder"}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

// classify inspects a googleapi.Error status code when present, otherwise
// falls back to treating the failure as permanent — conservative, since an
// unrecognized error from the Drive client library is more often a
// configuration mistake than a blip.
func (a *gdriveAdapter) classify(op string, err error) error {
	class := Permanent
	msg := err.Error()
	if idx := strings.Index(msg, "googleapi: Error "); idx >= 0 {
		rest := msg[idx+len("googleapi: Error "):]
		if sp := strings.IndexByte(rest, ':'); sp > 0 {
			if code, convErr := strconv.Atoi(rest[:sp]); convErr == nil {
				if code == 429 || code == 500 || code == 502 || code == 503 {
					class = Transient
				}
			}
		}
	}
	return &AdapterError{Classification: class, Destination: "google_drive", Op: op, Err: err}
}
