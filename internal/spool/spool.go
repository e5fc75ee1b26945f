// Package spool keeps upload bodies on local disk between acceptance and
// extraction, hashing them while they are written.
package spool

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

const filePrefix = "upload-"

// Dir is a directory of spooled uploads.
type Dir struct {
	path string
}

// New creates the spool directory. An empty path uses a ragdex directory
// under the system temp dir.
func New(path string) (*Dir, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "ragdex-spool")
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory.
func (d *Dir) Path() string { return d.path }

// Write copies r into a new spool file while computing its sha256.
// maxBytes <= 0 disables the size limit.
func (d *Dir) Write(r io.Reader, maxBytes int64) (*File, error) {
	f, err := os.CreateTemp(d.path, filePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	h := sha256.New()
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("%w: more than %d bytes", domain.ErrUploadTooLarge, maxBytes)
	}

	return &File{path: f.Name(), hash: hex.EncodeToString(h.Sum(nil)), size: n}, nil
}

// Sweep removes spool files left behind by a previous process.
func (d *Dir) Sweep() (int, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		if err := os.Remove(filepath.Join(d.path, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// File is one spooled upload. Release is safe to call more than once.
type File struct {
	path string
	hash string
	size int64

	once       sync.Once
	releaseErr error
}

// Hash returns the hex sha256 of the content.
func (f *File) Hash() string { return f.hash }

// Size returns the content length in bytes.
func (f *File) Size() int64 { return f.size }

// Path returns the location on disk.
func (f *File) Path() string { return f.path }

// Open opens the content for reading.
func (f *File) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

// Release deletes the file. Only the first call has an effect.
func (f *File) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.releaseErr = fmt.Errorf("remove spool file: %w", err)
		}
	})
	return f.releaseErr
}
