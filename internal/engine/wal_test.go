package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWALReplay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := OpenWAL(path)
	require.NoError(t, err)

	recs := []Record{
		{Timestamp: 1, Level: 3, Line: []byte(`{"a":1}`)},
		{Timestamp: 2, Level: 6, Line: []byte(`{"b":2}`)},
	}
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())

	w, err = OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	got, err := w.Replay()
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	require.NoError(t, w.Reset())
	got, err = w.Replay()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWALReplayTornTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := OpenWAL(path)
	require.NoError(t, err)
	good := Record{Timestamp: 5, Level: 4, Line: []byte(`{"ok":true}`)}
	require.NoError(t, w.Write(good))
	require.NoError(t, w.Close())

	// half a header
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{9, 0, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = OpenWAL(path)
	require.NoError(t, err)
	defer w.Close()

	got, err := w.Replay()
	assert.ErrorIs(t, err, ErrTornWAL)
	assert.Equal(t, []Record{good}, got)

	next := Record{Timestamp: 6, Level: 6, Line: []byte(`{}`)}
	require.NoError(t, w.Write(next))
	got, err = w.Replay()
	require.NoError(t, err)
	assert.Equal(t, []Record{good, next}, got)
}

func TestSegmentName(t *testing.T) {
	t.Parallel()

	name := segmentName(12, 1000, 2000)
	assert.Equal(t, "seg_12_1000_2000.nano", name)

	seg, err := parseSegmentName(filepath.Join("data", name))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), seg.seq)
	assert.Equal(t, int64(1000), seg.minTs)
	assert.Equal(t, int64(2000), seg.maxTs)

	for _, bad := range []string{"log_1_2.nano", "seg_1_2.nano", "seg_a_1_2.nano", "seg_1_2_3.txt"} {
		_, err := parseSegmentName(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemTable(t *testing.T) {
	t.Parallel()

	mt := NewMemTable()
	line := []byte(`{"x":1}`)
	mt.Append(Record{Timestamp: 30, Level: 3, Line: line})
	mt.Append(Record{Timestamp: 10, Level: 6, Line: []byte(`{}`)})
	line[2] = 'y'

	recs := mt.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, `{"x":1}`, string(recs[0].Line))
	assert.Equal(t, map[uint8]int64{3: 1, 6: 1}, mt.LevelCounts())
	assert.Equal(t, int64(7+9+2+9), mt.Size())

	minTs, maxTs := TimeRange(recs)
	assert.Equal(t, int64(10), minTs)
	assert.Equal(t, int64(30), maxTs)

	mt.Reset()
	assert.Zero(t, mt.Len())
	assert.Zero(t, mt.Size())
	assert.Empty(t, mt.Records())
}
