package manifest

import (
	"path/filepath"
	"time"
)

// IndexedListWriter owns a list file and an optional index file: every
// write appends to the list, and whenever the caller's key changes from
// the previous write, a new [key, canonical_key, position] row is first
// appended to the index.
type IndexedListWriter struct {
	listPath  string
	indexPath string

	list  *FileWriter
	index *FileWriter

	lastKey    interface{}
	haveLastKey bool

	lastItem   interface{}
	lastObject interface{} // most recent decoded item that was not a bare tag string
}

// OpenIndexedListWriter builds a writer rooted at dir, using "segments"
// as the base filename (producing segments.yaml and segments.index.yaml)
// unless name overrides it, tail-scanning both files to recover
// lastItem/lastObject/lastKey so a restart resumes exactly where the
// previous process left off.
func OpenIndexedListWriter(dir, name string, withIndex bool) (*IndexedListWriter, error) {
	if name == "" {
		name = "segments"
	}
	w := &IndexedListWriter{
		listPath: filepath.Join(dir, name+".yaml"),
		list:     &FileWriter{path: filepath.Join(dir, name+".yaml")},
	}
	if withIndex {
		w.indexPath = filepath.Join(dir, name+".index.yaml")
		w.index = &FileWriter{path: w.indexPath}
	}

	tail, err := ReadTail(w.listPath, 1)
	if err != nil {
		return nil, err
	}
	if len(tail) > 0 {
		v, err := DecodeLine(tail[len(tail)-1])
		if err != nil {
			return nil, err
		}
		w.lastItem = v
		if _, isTag := v.(string); !isTag {
			w.lastObject = v
		}
	}

	if withIndex {
		idxTail, err := ReadTail(w.indexPath, 1)
		if err != nil {
			return nil, err
		}
		if len(idxTail) > 0 {
			v, err := DecodeLine(idxTail[len(idxTail)-1])
			if err != nil {
				return nil, err
			}
			if row, ok := v.([]interface{}); ok && len(row) > 0 {
				w.lastKey = row[0]
				w.haveLastKey = true
			}
		}
	}

	return w, nil
}

// LastItem returns the most recently written item (segment row or bare
// tag string), recovered from the tail on open.
func (w *IndexedListWriter) LastItem() interface{} { return w.lastItem }

// LastObject returns the most recently written item that was not a bare
// tag string, i.e. the last real record.
func (w *IndexedListWriter) LastObject() interface{} { return w.lastObject }

// Write appends fields as a list row, first recording an index
// transition if key differs from the last write's key.
func (w *IndexedListWriter) Write(key, canonicalKey interface{}, fields ...interface{}) error {
	if w.index != nil && (!w.haveLastKey || key != w.lastKey) {
		pos, err := w.list.Tell()
		if err != nil {
			return err
		}
		row, err := EncodeRow(key, canonicalKey, pos)
		if err != nil {
			return err
		}
		if err := w.index.Append(w.indexPath, row); err != nil {
			return err
		}
		w.lastKey = key
		w.haveLastKey = true
	}

	row, err := EncodeRow(fields...)
	if err != nil {
		return err
	}
	if err := w.list.Append(w.listPath, row); err != nil {
		return err
	}
	w.lastItem = fields
	w.lastObject = fields
	return nil
}

// WriteTag appends a bare tag-kind string, deduplicating against an
// identical immediately-preceding tag.
func (w *IndexedListWriter) WriteTag(kind string) error {
	if s, ok := w.lastItem.(string); ok && s == kind {
		return nil
	}
	if err := w.list.Append(w.listPath, EncodeBareString(kind)); err != nil {
		return err
	}
	w.lastItem = kind
	return nil
}

// Close closes both underlying files.
func (w *IndexedListWriter) Close() error {
	if err := w.list.Close(); err != nil {
		return err
	}
	if w.index != nil {
		return w.index.Close()
	}
	return nil
}

// FormatDatetime renders a time.Time the way manifest rows do,
// exported so callers building prev/next lookups can compare strings.
func FormatDatetime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
