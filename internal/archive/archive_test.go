package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopReturnsURI(t *testing.T) {
	uri, err := Noop{}.Put(context.Background(), "jobs/1.html", "text/html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, "noop://jobs/1.html", uri)
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	uri, err := m.Put(context.Background(), "jobs/1.html", "text/html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, "mem://jobs/1.html", uri)

	data, ok := m.Get("jobs/1.html")
	require.True(t, ok)
	require.Equal(t, []byte("<html>"), data)
	require.Equal(t, 1, m.Len())

	_, ok = m.Get("missing")
	require.False(t, ok)
}

func TestLocalWritesFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir)
	require.NoError(t, err)

	uri, err := l.Put(context.Background(), "jobs/abc/page.html", "text/html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "jobs/abc/page.html"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "jobs/abc/page.html"))
	require.NoError(t, err)
	require.Equal(t, []byte("<html>"), data)
}

func TestLocalRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = l.Put(context.Background(), "../outside.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestLocalRejectsEmptyConfig(t *testing.T) {
	_, err := NewLocal("  ")
	require.Error(t, err)
}
