// Package archive uploads session evidence to Google Cloud Storage:
// violation events as JSON objects and snapshot frames as JPEGs.
// Uploads are best-effort; the pipeline never blocks on them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/sensai-labs/go-proctor/pkg/pipeline"
	"github.com/sensai-labs/go-proctor/pkg/violation"
)

// Config configures the evidence uploader.
type Config struct {
	Bucket          string        // GCS bucket receiving evidence
	Prefix          string        // object name prefix inside the bucket
	CredentialsPath string        // service account JSON key file
	UploadTimeout   time.Duration // per-object upload deadline
}

// DefaultConfig returns production defaults. Bucket and credentials
// must still be supplied.
func DefaultConfig() Config {
	return Config{
		Prefix:        "proctor",
		UploadTimeout: 30 * time.Second,
	}
}

// Uploader writes evidence objects into one GCS bucket.
type Uploader struct {
	cfg Config
	svc *storage.Service
}

// Confirmed violations can be archived straight off the emitter.
var _ pipeline.Sink = (*Uploader)(nil)

// NewUploader authenticates with the service account key and builds
// the storage client.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}

	data, err := os.ReadFile(cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, storage.DevstorageReadWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := storage.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, fmt.Errorf("create storage service: %w", err)
	}

	return &Uploader{cfg: cfg, svc: svc}, nil
}

// Upload streams one object into the bucket and returns its name.
func (u *Uploader) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.UploadTimeout)
	defer cancel()

	obj := &storage.Object{Name: name, ContentType: contentType}
	if _, err := u.svc.Objects.Insert(u.cfg.Bucket, obj).Media(r).Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return name, nil
}

// ArchiveSnapshot stores one JPEG frame under the session's snapshot
// folder and returns the object name.
func (u *Uploader) ArchiveSnapshot(ctx context.Context, sessionID string, ts time.Time, jpeg []byte) (string, error) {
	name := u.objectName(sessionID, "snapshots", snapshotFile(ts))
	return u.Upload(ctx, name, "image/jpeg", bytes.NewReader(jpeg))
}

// ArchiveEvents stores a batch of events as one JSON object.
func (u *Uploader) ArchiveEvents(ctx context.Context, sessionID string, ts time.Time, events []violation.Event) (string, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	name := u.objectName(sessionID, "events", ts.UTC().Format(stampLayout)+".json")
	return u.Upload(ctx, name, "application/json", bytes.NewReader(data))
}

// Emit implements pipeline.Sink: each confirmed violation becomes its
// own JSON object, keyed by event id.
func (u *Uploader) Emit(ctx context.Context, e violation.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	name := u.objectName(e.SessionID, "events", e.ID+".json")
	_, err = u.Upload(ctx, name, "application/json", bytes.NewReader(data))
	return err
}

// ObjectURL returns the browser URL for an uploaded object.
func (u *Uploader) ObjectURL(name string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", u.cfg.Bucket, name)
}

// Bucket returns the configured bucket name.
func (u *Uploader) Bucket() string {
	return u.cfg.Bucket
}

// stampLayout is compact and free of characters that read poorly in
// object names.
const stampLayout = "20060102T150405.000"

func snapshotFile(ts time.Time) string {
	return ts.UTC().Format(stampLayout) + ".jpg"
}

func (u *Uploader) objectName(sessionID, kind, file string) string {
	return path.Join(u.cfg.Prefix, "sessions", sessionID, kind, file)
}
