package asyncio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")
	w := New(Options{Filename: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func TestWriteLineAppearsInFile(t *testing.T) {
	w, path := newTestWriter(t)
	w.WriteLine("hello world")
	require.NoError(t, w.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "hello world")
}

func TestWriteImplementsIoWriterForStandardLogger(t *testing.T) {
	w, path := newTestWriter(t)
	n, err := w.Write([]byte("logged via io.Writer\n"))
	require.NoError(t, err)
	assert.Equal(t, len("logged via io.Writer\n"), n)
	require.NoError(t, w.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "logged via io.Writer")
}

func TestCloseDrainsEveryQueuedLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drain.log")
	w := New(Options{Filename: path, MaxSizeMB: 1})

	const n = 50
	for i := 0; i < n; i++ {
		w.WriteLine("filler")
	}
	require.NoError(t, w.Close())
	assert.Equal(t, uint64(0), w.DroppedCount())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, n, strings.Count(string(contents), "filler"))
}

func TestDroppedCountStartsAtZero(t *testing.T) {
	w, _ := newTestWriter(t)
	assert.Equal(t, uint64(0), w.DroppedCount())
}
