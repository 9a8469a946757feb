package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWriter_AppendCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "segments.yaml")

	w := NewFileWriter()
	require.NoError(t, w.Append(path, []byte("- [1]\n")))
	require.NoError(t, w.Append(path, []byte("- [2]\n")))
	require.NoError(t, w.Close())

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "- [1]\n- [2]\n", string(body))
}

func TestFileWriter_Tell(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.yaml")
	w := NewFileWriter()

	pos, err := w.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pos)

	require.NoError(t, w.Append(path, []byte("- [1]\n")))
	pos, err = w.Tell()
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
}

func TestEncodeRow_FormatsDatetime(t *testing.T) {
	dt := time.Date(2026, 7, 30, 10, 15, 30, 0, time.UTC)
	row, err := EncodeRow(1, 2, 6.0, dt, "path.ts", uint32(42))
	require.NoError(t, err)
	assert.Equal(t, `- [1,2,6,"2026-07-30 10:15:30","path.ts",42]`+"\n", string(row))
}

func TestEncodeBareString(t *testing.T) {
	assert.Equal(t, []byte("- SOURCE_DISCONTINUITY\n"), EncodeBareString("SOURCE_DISCONTINUITY"))
}

func TestDecodeLine_Array(t *testing.T) {
	v, err := DecodeLine(`- [1,2,6,"2026-07-30 10:15:30","path.ts",42]`)
	require.NoError(t, err)
	arr, ok := v.([]interface{})
	require.True(t, ok)
	assert.Len(t, arr, 6)
}

func TestDecodeLine_BareString(t *testing.T) {
	v, err := DecodeLine("- SOURCE_END")
	require.NoError(t, err)
	assert.Equal(t, "SOURCE_END", v)
}

func TestReadTail_MissingFileYieldsNothing(t *testing.T) {
	lines, err := ReadTail(filepath.Join(t.TempDir(), "nope.yaml"), 5)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReadTail_ReturnsMostRecentLinesInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segments.yaml")
	var body string
	for i := 0; i < 20; i++ {
		body += "- [" + string(rune('a'+i)) + "]\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	lines, err := ReadTail(path, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "- [r]", lines[0])
	assert.Equal(t, "- [s]", lines[1])
	assert.Equal(t, "- [t]", lines[2])
}

func TestReadTail_BlockBoundarySpanningLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 2000; i++ {
		_, err := f.WriteString("- [\"padding-row-of-filler-text\"]\n")
		require.NoError(t, err)
	}
	_, err = f.WriteString("- [\"last-line\"]\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	lines, err := ReadTail(path, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, `- ["last-line"]`, lines[0])
}

func TestIndexedListWriter_WriteAndIndexTransition(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenIndexedListWriter(dir, "segments", true)
	require.NoError(t, err)

	require.NoError(t, w.Write("2026-07-30", "2026-07-30 00:00:00", 0, 0, 6.0, time.Now(), "a.ts", uint32(1)))
	require.NoError(t, w.Write("2026-07-30", "2026-07-30 00:00:06", 1, 1, 6.0, time.Now(), "b.ts", uint32(2)))
	require.NoError(t, w.Write("2026-07-31", "2026-07-31 00:00:00", 2, 2, 6.0, time.Now(), "c.ts", uint32(3)))
	require.NoError(t, w.Close())

	listBody, err := os.ReadFile(filepath.Join(dir, "segments.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 3, countLines(string(listBody)))

	indexBody, err := os.ReadFile(filepath.Join(dir, "segments.index.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(string(indexBody)), "index should only transition on key changes")
}

func TestIndexedListWriter_ResumesFromTailOnReopen(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenIndexedListWriter(dir, "segments", true)
	require.NoError(t, err)
	require.NoError(t, w.Write("k1", "k1", 0, 0, 6.0, time.Now(), "a.ts", uint32(1)))
	require.NoError(t, w.Close())

	w2, err := OpenIndexedListWriter(dir, "segments", true)
	require.NoError(t, err)
	last := w2.LastObject()
	require.NotNil(t, last)
	arr, ok := last.([]interface{})
	require.True(t, ok)
	assert.Len(t, arr, 6)
}

func TestIndexedListWriter_WriteTagDedupes(t *testing.T) {
	dir := t.TempDir()
	w, err := OpenIndexedListWriter(dir, "segments", false)
	require.NoError(t, err)
	require.NoError(t, w.WriteTag("SOURCE_DISCONTINUITY"))
	require.NoError(t, w.WriteTag("SOURCE_DISCONTINUITY"))
	require.NoError(t, w.Close())

	body, err := os.ReadFile(filepath.Join(dir, "segments.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 1, countLines(string(body)))
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
