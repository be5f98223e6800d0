package storage

import (
	"context"
	"fmt"
	"io"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing, truncating an existing file.
	// Data is only durable once Close returns nil.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// Save writes data to path as one unit. The artifact counts as written only
// when both the write and the close succeed; on failure a partial file is removed.
func Save(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("storage: open %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		fs.Delete(context.WithoutCancel(ctx), path)
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		fs.Delete(context.WithoutCancel(ctx), path)
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	return nil
}

// Load reads the whole named file
func Load(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Backend names accepted by New
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Options selects and configures a backend
type Options struct {
	Backend string
	Dir     string // local root
	S3      S3Options
}

// New opens the configured backend
func New(opts Options) (FileStore, error) {
	switch opts.Backend {
	case BackendLocal, "":
		return NewLocal(opts.Dir)
	case BackendS3:
		if opts.S3.Bucket == "" {
			return nil, fmt.Errorf("storage: s3 backend requires a bucket")
		}
		return NewS3(NewS3Client(opts.S3), opts.S3.Bucket, opts.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
