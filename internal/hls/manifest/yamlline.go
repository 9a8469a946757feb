package manifest

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"
)

// yamlTime formats a time.Time the way every manifest line does:
// "YYYY-MM-DD HH:MM:SS" UTC, no fractional seconds, no offset.
type yamlTime time.Time

func (t yamlTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format("2006-01-02 15:04:05"))
}

func toYAMLField(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return yamlTime(t)
	}
	return v
}

// EncodeRow renders one tuple row as a manifest line: "- [json...]\n".
func EncodeRow(fields ...interface{}) ([]byte, error) {
	converted := make([]interface{}, len(fields))
	for i, f := range fields {
		converted[i] = toYAMLField(f)
	}
	body, err := json.Marshal(converted)
	if err != nil {
		return nil, err
	}
	return append(append([]byte("- "), body...), '\n'), nil
}

// EncodeBareString renders a tag kind (or any other bare string record)
// as a manifest line without JSON quoting.
func EncodeBareString(s string) []byte {
	return []byte("- " + s + "\n")
}

// DecodeLine interprets one manifest line (with its leading "- "
// stripped) as JSON if it looks like an array/object/quoted string, as
// a bare string with surrounding single quotes stripped otherwise, or
// as a raw string as a last resort.
func DecodeLine(line string) (interface{}, error) {
	line = strings.TrimPrefix(line, "- ")
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, nil
	}

	switch trimmed[0] {
	case '[', '{', '"':
		var v interface{}
		if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
			return nil, err
		}
		return v, nil
	}

	return strings.Trim(trimmed, "'"), nil
}

const tailBlockSize = 4096

// ReadTail reads path from the end backwards in fixed-size blocks,
// scanning for newline boundaries, and returns at most maxLines of the
// most recent complete lines in original order. A missing file yields
// no lines and no error.
func ReadTail(path string, maxLines int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return nil, nil
	}

	var (
		buf    []byte
		offset = size
	)

	for offset > 0 {
		readSize := int64(tailBlockSize)
		if readSize > offset {
			readSize = offset
		}
		offset -= readSize

		block := make([]byte, readSize)
		if _, err := f.ReadAt(block, offset); err != nil {
			return nil, err
		}
		buf = append(block, buf...)

		if maxLines > 0 && offset > 0 && countNewlines(buf) > maxLines {
			break
		}
	}

	raw := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			lines = append(lines, l)
		}
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines, nil
}

func countNewlines(buf []byte) int {
	n := 0
	for _, b := range buf {
		if b == '\n' {
			n++
		}
	}
	return n
}

// ErrNoObjectFound describes a manifest tail that contains only bare tag
// strings. No function in this package returns it; LastObject reports
// that case as nil.
var ErrNoObjectFound = errors.New("manifest: no object in tail")
