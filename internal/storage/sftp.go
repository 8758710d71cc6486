package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/dbsentinel/dbsentinel/internal/db"
)

// sftpAdapter dials fresh per call rather than holding a persistent
// connection — acceptable at the scheduling cadence this system runs at
// (spec §5: low concurrency, periodic backups), and it sidesteps having to
// detect and recover from a dropped SSH session mid-pipeline.
type sftpAdapter struct {
	cfg     sftpConfig
	secrets sftpSecrets
}

// NewSFTPAdapter builds the Adapter for destination_type=sftp.
func NewSFTPAdapter(destination *db.Destination) (Adapter, error) {
	cfg, secrets, err := parseSFTPConfig(destination)
	if err != nil {
		return nil, err
	}
	return &sftpAdapter{cfg: cfg, secrets: secrets}, nil
}

func (a *sftpAdapter) dial(ctx context.Context) (*sftp.Client, *ssh.Client, error) {
	auth, err := a.authMethod()
	if err != nil {
		return nil, nil, err
	}

	config := &ssh.ClientConfig{
		User:            a.cfg.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port)
	dialer := net.Dialer{Timeout: config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, err
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, nil, err
	}
	return client, sshClient, nil
}

// authMethod prefers a private key over a password per spec §4.3.
func (a *sftpAdapter) authMethod() (ssh.AuthMethod, error) {
	if a.secrets.PrivateKeyPEM != "" {
		var signer ssh.Signer
		var err error
		if a.secrets.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(a.secrets.PrivateKeyPEM), []byte(a.secrets.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(a.secrets.PrivateKeyPEM))
		}
		if err != nil {
			return nil, fmt.Errorf("storage: sftp: parsing private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(a.secrets.Password), nil
}

func (a *sftpAdapter) Put(ctx context.Context, targetFolder, name string, stream io.Reader, size int64) (PutResult, error) {
	client, conn, err := a.dial(ctx)
	if err != nil {
		return PutResult{}, a.classify("put", err)
	}
	defer conn.Close()
	defer client.Close()

	dir := path.Join(a.cfg.Root, targetFolder)
	if err := client.MkdirAll(dir); err != nil {
		return PutResult{}, a.classify("put", err)
	}

	final := path.Join(dir, name)
	tmp := final + ".part"

	f, err := client.Create(tmp)
	if err != nil {
		return PutResult{}, a.classify("put", err)
	}
	if _, err := io.Copy(f, stream); err != nil {
		f.Close()
		client.Remove(tmp)
		return PutResult{}, a.classify("put", err)
	}
	if err := f.Close(); err != nil {
		client.Remove(tmp)
		return PutResult{}, a.classify("put", err)
	}
	if err := client.Rename(tmp, final); err != nil {
		client.Remove(tmp)
		return PutResult{}, a.classify("put", err)
	}

	return PutResult{BackupID: final, CreatedAt: time.Now().UTC()}, nil
}

func (a *sftpAdapter) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	client, conn, err := a.dial(ctx)
	if err != nil {
		return ListResult{}, a.classify("list", err)
	}
	defer conn.Close()
	defer client.Close()

	dir := path.Join(a.cfg.Root, opts.TargetFolder)
	entries, err := client.ReadDir(dir)
	if err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such file") {
			return ListResult{Items: []Item{}}, nil
		}
		return ListResult{}, a.classify("list", err)
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".part") {
			continue
		}
		if opts.Prefix != "" && !strings.HasPrefix(entry.Name(), opts.Prefix) {
			continue
		}
		items = append(items, Item{
			ID:        path.Join(dir, entry.Name()),
			Name:      entry.Name(),
			Size:      entry.Size(),
			CreatedAt: entry.ModTime().UTC(),
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

func (a *sftpAdapter) Get(ctx context.Context, backupID, name string) (io.ReadCloser, error) {
	client, conn, err := a.dial(ctx)
	if err != nil {
		return nil, a.classify("get", err)
	}

	f, err := client.Open(backupID)
	if err != nil {
		conn.Close()
		client.Close()
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such file") {
			return nil, ErrBackupNotFound
		}
		return nil, a.classify("get", err)
	}
	return &sftpReadCloser{File: f, client: client, conn: conn}, nil
}

// sftpReadCloser closes the remote file handle and the underlying SSH
// connection together, since sftp.Client is not reusable once its ssh.Client
// is torn down.
type sftpReadCloser struct {
	*sftp.File
	client *sftp.Client
	conn   *ssh.Client
}

func (r *sftpReadCloser) Close() error {
	err := r.File.Close()
	r.client.Close()
	r.conn.Close()
	return err
}

func (a *sftpAdapter) Delete(ctx context.Context, backupID, name string) error {
	client, conn, err := a.dial(ctx)
	if err != nil {
		return a.classify("delete", err)
	}
	defer conn.Close()
	defer client.Close()

	if err := client.Remove(backupID); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "no such file") {
			return ErrBackupNotFound
		}
		return a.classify("delete", err)
	}
	return nil
}

func (a *sftpAdapter) TestConnection(ctx context.Context) (ConnectionResult, error) {
	client, conn, err := a.dial(ctx)
	if err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	defer conn.Close()
	defer client.Close()

	if err := client.MkdirAll(a.cfg.Root); err != nil {
		return ConnectionResult{OK: false, Message: err.Error()}, nil
	}
	return ConnectionResult{OK: true, Message: "connected"}, nil
}

// classify guesses TRANSIENT vs PERMANENT from the dial/operation error
// text, since the ssh/sftp packages don't expose a structured taxonomy.
// Auth and permission failures are treated as permanent; everything else
// (timeouts, connection resets, broken pipes) is treated as a transient
// network condition worth retrying.
func (a *sftpAdapter) classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	class := Transient
	if strings.Contains(msg, "auth") || strings.Contains(msg, "permission") || strings.Contains(msg, "unable to authenticate") {
		class = Permanent
	}
	return &AdapterError{Classification: class, Destination: "sftp", Op: op, Err: err}
}
