package event

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []AccessEvent {
	return []AccessEvent{
		{Kind: KindConstruct, Symbol: "com.acme.Solver", Member: "<init>", Params: []string{"long", "boolean"}},
		{Kind: KindInvoke, Symbol: "com.acme.Solver", Member: "solve", Params: []string{}},
		{Kind: KindRead, Symbol: "com.acme.Config", Member: "hostField"},
		{Kind: KindArrayType, Symbol: "com.acme.Solver[]"},
	}
}

func readAll(t *testing.T, path string) []AccessEvent {
	t.Helper()
	r, err := OpenCapture(path)
	require.NoError(t, err)
	defer r.Close()

	var out []AccessEvent
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestCapture_RoundTrip(t *testing.T) {
	t.Run("Plain NDJSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.ndjson")
		w, err := NewCaptureWriter(path)
		require.NoError(t, err)

		events := sampleEvents()
		for _, ev := range events {
			require.NoError(t, w.Write(ev))
		}
		assert.Equal(t, int64(len(events)), w.Events())
		require.NoError(t, w.Close())

		assert.Equal(t, events, readAll(t, path))
	})

	t.Run("Gzip compressed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.ndjson.gz")
		w, err := NewCaptureWriter(path)
		require.NoError(t, err)

		events := sampleEvents()
		for _, ev := range events {
			require.NoError(t, w.Write(ev))
		}
		require.NoError(t, w.Close())

		assert.Equal(t, events, readAll(t, path))
	})

	t.Run("Signature distinction survives replay", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.ndjson")
		w, err := NewCaptureWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Write(AccessEvent{Kind: KindInvoke, Symbol: "A", Member: "m", Params: []string{}}))
		require.NoError(t, w.Write(AccessEvent{Kind: KindInvoke, Symbol: "A", Member: "m"}))
		require.NoError(t, w.Close())

		back := readAll(t, path)
		require.Len(t, back, 2)
		require.NotNil(t, back[0].Params)
		assert.Len(t, back[0].Params, 0)
		assert.Nil(t, back[1].Params)
	})

	t.Run("Empty capture replays as no events", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.ndjson")
		w, err := NewCaptureWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.Empty(t, readAll(t, path))
	})
}

func TestCapture_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures", "nested", "run.ndjson")
	w, err := NewCaptureWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(AccessEvent{Kind: KindRead, Symbol: "A"}))
	require.NoError(t, w.Close())

	assert.Len(t, readAll(t, path), 1)
}

func TestOpenCapture_MissingFile(t *testing.T) {
	_, err := OpenCapture(filepath.Join(t.TempDir(), "absent.ndjson"))
	assert.Error(t, err)
}

func TestOpenCapture_CorruptGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.ndjson.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip data"), 0o644))

	_, err := OpenCapture(path)
	assert.Error(t, err)
}
