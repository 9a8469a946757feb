// Package manifest implements the append-only, tail-readable manifest
// files described in spec.md §4.6/§9: FileWriter for lazily-opened
// append targets, a YAML-line codec, IndexedListWriter for the
// (list, index) pair pattern shared by master and per-depth
// sub-manifests, and the SegmentsList/Chunker specialisations of it.
package manifest

import (
	"os"
	"path/filepath"
)

// FileWriter is a lazily-opened append-mode file handle that
// transparently reopens when the caller asks it to target a different
// path, recreating parent directories as needed.
type FileWriter struct {
	path string
	f    *os.File
}

// NewFileWriter builds a FileWriter bound to no path yet; call
// Append to open it against a concrete file.
func NewFileWriter() *FileWriter {
	return &FileWriter{}
}

// Tell reports the file's current length, i.e. the byte offset the next
// write will land at. Returns 0 if the file has not been opened yet.
func (w *FileWriter) Tell() (int64, error) {
	if w.f == nil {
		if w.path == "" {
			return 0, nil
		}
		info, err := os.Stat(w.path)
		if os.IsNotExist(err) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}
	return w.f.Seek(0, os.SEEK_CUR)
}

// Append opens path (if not already open against it) and writes data to
// its end.
func (w *FileWriter) Append(path string, data []byte) error {
	if err := w.ensureOpen(path); err != nil {
		return err
	}
	_, err := w.f.Write(data)
	return err
}

// Reopen forces the writer to close its current handle, so the next
// Append reopens against whatever path is given then. Callers use this
// when rolling to a new directory.
func (w *FileWriter) Reopen() error {
	return w.Close()
}

func (w *FileWriter) ensureOpen(path string) error {
	if w.f != nil && w.path == path {
		return nil
	}
	if w.f != nil {
		if err := w.f.Close(); err != nil {
			return err
		}
		w.f = nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.path = path
	return nil
}

// Close closes the underlying handle, if open.
func (w *FileWriter) Close() error {
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
