package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by OpenBackend.
const (
	BackendSQLite = "sqlite"
	BackendDir    = "dir"
	BackendS3     = "s3"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend string

	// Path is the SQLite database file (sqlite backend).
	Path string

	// Dir is the artifact directory (dir backend).
	Dir string

	// S3 configures the object store (s3 backend).
	S3 S3Config
}

// OpenBackend opens the configured store.
func OpenBackend(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Backend {
	case BackendSQLite, "":
		s, err := Open(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendDir:
		s, err := OpenDir(opts.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendS3:
		client, err := NewMinIOClient(opts.S3, logger)
		if err != nil {
			return nil, err
		}
		s, err := NewObjectStore(ctx, client, opts.S3.Bucket, opts.S3.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s, %s or %s)", opts.Backend, BackendSQLite, BackendDir, BackendS3)
	}
}

// BackendOf names the backend behind s, or "other".
func BackendOf(s Store) string {
	switch s.(type) {
	case *SQLiteStore:
		return BackendSQLite
	case *DirStore:
		return BackendDir
	case *ObjectStore:
		return BackendS3
	default:
		return "other"
	}
}
