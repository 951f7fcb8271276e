package storage

import (
	"context"
	"io"
	"time"
)

// RemoveFailure reports a single path that could not be removed during a
// best-effort bulk removal.
type RemoveFailure struct {
	Path string
	Err  error
}

// ObjectInfo describes a stored object, used by the orphan reconciler.
type ObjectInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobStore is the interface for document content storage.
//
// Put has upsert=false semantics: writing to an already-occupied path is
// rejected, so an upload retried after a lost version race cannot silently
// overwrite the winner's content.
type BlobStore interface {
	// Put stores content at path. It fails if an object already exists
	// at that path.
	Put(ctx context.Context, path string, content io.Reader, contentType string) error

	// Remove deletes the given paths best-effort. Paths that could not
	// be removed are reported in the return value; Remove itself never
	// fails the calling workflow.
	Remove(ctx context.Context, paths []string) []RemoveFailure

	// SignedURL produces a time-limited URL granting read access to path.
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// List returns all objects under the given prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// HealthCheck verifies connectivity to the backing store.
	HealthCheck(ctx context.Context) error
}

// Config holds storage configuration
type Config struct {
	// PostgreSQL
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// S3 / MinIO
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// Redis (rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns sensible local-development defaults.
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 25,
		PostgresMinConns: 5,
		PostgresTimeout:  10 * time.Second,
		S3Region:         "us-east-1",
		S3Bucket:         "docstack",
	}
}
