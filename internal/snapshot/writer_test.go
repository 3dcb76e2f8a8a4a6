package snapshot

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readAllLines(t *testing.T, path string) [][]byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	raw, err := io.ReadAll(f)
	require.NoError(t, err)

	var lines [][]byte
	r := bytes.NewReader(raw)
	for r.Len() > 0 {
		gz, err := gzip.NewReader(r)
		require.NoError(t, err)
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			lines = append(lines, line)
		}
		gz.Close()
	}
	return lines
}

func TestMaybeWriteFlushGate(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "order_book", "BTC-USD", time.Unix(0, 0), 60*time.Second, zap.NewNop())

	n := 0
	producer := func() any {
		n++
		return map[string]int{"n": n}
	}

	base := time.Unix(0, 0)
	wrote, err := w.MaybeWrite(base, producer)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = w.MaybeWrite(base.Add(30*time.Second), producer)
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = w.MaybeWrite(base.Add(60*time.Second), producer)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = w.MaybeWrite(base.Add(61*time.Second), producer)
	require.NoError(t, err)
	assert.False(t, wrote)

	require.NoError(t, w.Close())

	path := filepath.Join(dir, FileName("order_book", "BTC-USD", time.Unix(0, 0)))
	lines := readAllLines(t, path)
	require.Len(t, lines, 2)

	var first, second map[string]int
	require.NoError(t, json.Unmarshal(lines[0], &first))
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, 1, first["n"])
	assert.Equal(t, 2, second["n"])
}

func TestMaybeWriteCreatesParentDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w := New(dir, "order_book", "ETH-USD", time.Unix(0, 0), time.Second, zap.NewNop())

	wrote, err := w.MaybeWrite(time.Unix(0, 0), func() any { return map[string]string{"ok": "yes"} })
	require.NoError(t, err)
	assert.True(t, wrote)
	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(dir, FileName("order_book", "ETH-USD", time.Unix(0, 0))))
	assert.NoError(t, err)
}
