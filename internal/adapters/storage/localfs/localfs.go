package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"pagepress/internal/ports"
)

// LocalFS implements ports.StorageProvider on the local filesystem.
// Objects live directly under root and are never overwritten.
type LocalFS struct {
	root string
}

func New(root string) (*LocalFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalFS{root: root}, nil
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) Create(ctx context.Context, key, contentType string) (ports.ObjectWriter, error) {
	dst, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ports.ErrObjectExists, key)
		}
		return nil, err
	}
	return &fileWriter{f: f, key: key, path: dst}, nil
}

func (l *LocalFS) Open(ctx context.Context, path string) (io.ReadCloser, ports.ObjectInfo, error) {
	p, err := l.resolve(path)
	if err != nil {
		return nil, ports.ObjectInfo{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.ObjectInfo{}, fmt.Errorf("%w: %s", ports.ErrObjectNotFound, path)
		}
		return nil, ports.ObjectInfo{}, err
	}

	info := ports.ObjectInfo{ContentType: "application/octet-stream"}
	if st, statErr := f.Stat(); statErr == nil {
		info.Size = st.Size()
	}
	if mt, mtErr := mimetype.DetectFile(p); mtErr == nil {
		info.ContentType = mt.String()
	}
	return f, info, nil
}

func (l *LocalFS) Delete(ctx context.Context, path string) error {
	p, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ports.ErrObjectNotFound, path)
		}
		return err
	}
	return nil
}

func (l *LocalFS) resolve(key string) (string, error) {
	rel := filepath.FromSlash(key)
	if key == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.root, rel), nil
}

type fileWriter struct {
	f    *os.File
	key  string
	path string
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w *fileWriter) Commit() (string, error) {
	if w.done {
		return "", errors.New("object writer already finished")
	}
	w.done = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.path)
		return "", err
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.path)
		return "", err
	}
	return w.key, nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true

	_ = w.f.Close()
	if err := os.Remove(w.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
