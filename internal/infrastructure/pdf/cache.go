package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const archiveDirName = "archive"

// Materializer caches rendered PDFs on disk under deterministic names
// (<name>.pdf). Concurrent requests for the same document converge on
// one file: everyone renders into a private temp file, the final name
// is claimed atomically, and losers discard their bytes and serve the
// winner's file.
type Materializer struct {
	dir    string
	logger *zap.Logger
}

// NewMaterializer creates a Materializer rooted at dir, creating the
// directory and its archive/ subdirectory as needed.
func NewMaterializer(dir string, logger *zap.Logger) (*Materializer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Join(dir, archiveDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create pdf directory: %w", err)
	}
	return &Materializer{dir: dir, logger: logger}, nil
}

// Path returns the deterministic location of a document.
func (m *Materializer) Path(name string) string {
	return filepath.Join(m.dir, name+".pdf")
}

// Get returns the cached document, producing and claiming it when no
// usable file exists yet. An empty file on disk counts as missing and
// gets replaced.
func (m *Materializer) Get(ctx context.Context, name string, produce func(context.Context) ([]byte, error)) ([]byte, error) {
	path := m.Path(name)

	if data, ok := m.readUsable(path); ok {
		return data, nil
	}

	data, err := produce(ctx)
	if err != nil {
		return nil, err
	}

	return m.claim(path, data)
}

// claim writes data to a private temp file and links it to path. When
// another writer got there first, the temp file is discarded and the
// winner's bytes are returned.
func (m *Materializer) claim(path string, data []byte) ([]byte, error) {
	tmp, err := os.CreateTemp(m.dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	// Stale zero-byte artifacts block the link; clear them first.
	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		os.Remove(path)
	}

	if err := os.Link(tmpName, path); err != nil {
		os.Remove(tmpName)
		if errors.Is(err, fs.ErrExist) {
			if winner, ok := m.readUsable(path); ok {
				m.logger.Debug("lost materialization race", zap.String("path", path))
				return winner, nil
			}
			// Winner's file vanished or is empty; fall through with our bytes.
			return data, nil
		}
		return nil, fmt.Errorf("claim %s: %w", path, err)
	}
	os.Remove(tmpName)

	m.logger.Info("PDF materialized", zap.String("path", path), zap.Int("bytes", len(data)))
	return data, nil
}

// Invalidate removes the cached document so the next Get re-renders.
// A missing file is not an error.
func (m *Materializer) Invalidate(name string) error {
	err := os.Remove(m.Path(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Archive moves the document into the archive/ subdirectory, keeping
// it out of the active set without destroying it. A name collision in
// the archive gets a timestamp suffix.
func (m *Materializer) Archive(name string, now time.Time) error {
	src := m.Path(name)
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	dst := filepath.Join(m.dir, archiveDirName, name+".pdf")
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(m.dir, archiveDirName,
			fmt.Sprintf("%s-%s.pdf", name, now.Format("20060102-150405")))
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("archive %s: %w", src, err)
	}
	m.logger.Info("PDF archived", zap.String("from", src), zap.String("to", dst))
	return nil
}

// readUsable returns the file contents when it exists and is non-empty.
func (m *Materializer) readUsable(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}
