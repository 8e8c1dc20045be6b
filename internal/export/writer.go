package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wonny/quantsnap/internal/contracts"
	"github.com/wonny/quantsnap/internal/storage"
	"github.com/wonny/quantsnap/pkg/logger"
)

// Writer publishes snapshots to a fixed path.
// The visible file is only ever replaced by rename, never written in place.
type Writer struct {
	path   string
	logger *logger.Logger
}

// NewWriter creates a writer for path
func NewWriter(path string, log *logger.Logger) *Writer {
	return &Writer{
		path:   path,
		logger: log.WithField("module", "export"),
	}
}

// Path returns the published file location
func (w *Writer) Path() string {
	return w.path
}

// Staged is a fully written temp file waiting to be published
type Staged struct {
	tmp    string
	path   string
	logger *logger.Logger
	done   bool
}

// Stage encodes the snapshot into a temp file next to the target.
// Nothing visible changes until Commit.
func (w *Writer) Stage(r *contracts.RunResult, recent []storage.RunSummary) (*Staged, error) {
	data, err := json.MarshalIndent(NewSnapshot(r, recent), "", "  ")
	if err != nil {
		return nil, w.fail(fmt.Errorf("encode snapshot: %w", err))
	}
	data = append(data, '\n')

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, w.fail(fmt.Errorf("create directory: %w", err))
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return nil, w.fail(fmt.Errorf("create temp file: %w", err))
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, w.fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, w.fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, w.fail(fmt.Errorf("close temp file: %w", err))
	}
	// CreateTemp uses 0600; the dashboard host needs to read it
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return nil, w.fail(fmt.Errorf("chmod temp file: %w", err))
	}

	w.logger.WithFields(map[string]interface{}{
		"path":            w.path,
		"bytes":           len(data),
		"recommendations": len(r.Recommendations),
	}).Debug("Snapshot staged")

	return &Staged{tmp: tmp, path: w.path, logger: w.logger}, nil
}

func (w *Writer) fail(err error) error {
	return &contracts.ExportError{Path: w.path, Err: err}
}

// Commit atomically replaces the published snapshot
func (s *Staged) Commit() error {
	if s.done {
		return &contracts.ExportError{Path: s.path, Err: fmt.Errorf("staged snapshot already finalized")}
	}
	s.done = true

	// rename is retried once before giving up
	err := os.Rename(s.tmp, s.path)
	if err != nil {
		s.logger.WithError(err).Warn("Snapshot rename failed, retrying once")
		err = os.Rename(s.tmp, s.path)
	}
	if err != nil {
		os.Remove(s.tmp)
		return &contracts.ExportError{Path: s.path, Err: fmt.Errorf("publish: %w", err)}
	}

	s.logger.WithField("path", s.path).Info("Snapshot exported")
	return nil
}

// Discard drops the temp file. Safe to call after Commit.
func (s *Staged) Discard() {
	if s.done {
		return
	}
	s.done = true
	if err := os.Remove(s.tmp); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).Warn("Failed to remove staged snapshot")
	}
}
