// Package archive stores exported report documents in a blob backend
// (memory, local filesystem or S3-compatible object storage).
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"stockledger/internal/config"
)

// Driver identifies a concrete archive backend.
type Driver string

const (
	DriverMemory     Driver = config.ArchiveMemory
	DriverFilesystem Driver = config.ArchiveFilesystem
	DriverS3         Driver = config.ArchiveS3
)

var (
	// ErrExists is returned by Put when the key is already taken. Archived
	// reports are write-once.
	ErrExists = errors.New("archive: object already exists")
	// ErrNotFound is returned by Get for missing keys.
	ErrNotFound = errors.New("archive: object not found")
)

// PutOptions specifies optional parameters for Put.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes a stored object.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the write-once object store used for report archives.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// Open builds the Store selected by cfg.
func Open(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
