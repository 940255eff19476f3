package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
)

func entriesNode(t *testing.T, body string, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/entries":
			time.Sleep(delay)
			w.Write([]byte(body))
		case "/api/stats":
			w.Write([]byte(`{"total_entries":3,"buffered":1,"segments":1,"disk_usage":100,"level_counts":{"info":2,"error":1}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAggregatorRetrieveKeepsNodeOrder(t *testing.T) {
	t.Parallel()

	// The first node answers last; results must still come first.
	slow := entriesNode(t, `{"entries":[{"id":1},{"id":2}],"skipped":1}`, 50*time.Millisecond)
	fast := entriesNode(t, `{"entries":[{"id":3},7],"skipped":0}`, 0)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(down.Close)

	a := NewAggregator([]string{slow.URL, down.URL, fast.URL + "/"}, "", nil)
	res, err := a.Retrieve(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, model.Entry{"id": float64(1)}, res.Entries[0])
	assert.Equal(t, model.Entry{"id": float64(2)}, res.Entries[1])
	assert.Equal(t, model.Entry{"id": float64(3)}, res.Entries[2])
	// one reported by the slow node, one non-object from the fast node
	assert.Equal(t, 2, res.Skipped)
}

func TestAggregatorSendsToken(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{"entries":[],"skipped":0}`))
	}))
	t.Cleanup(srv.Close)

	a := NewAggregator([]string{srv.URL}, "s3cret", nil)
	res, err := a.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Equal(t, "Bearer s3cret", got)
}

func TestAggregatorCancelled(t *testing.T) {
	t.Parallel()

	srv := entriesNode(t, `{"entries":[]}`, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAggregator([]string{srv.URL}, "", nil).Retrieve(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregatorStats(t *testing.T) {
	t.Parallel()

	a := NewAggregator([]string{entriesNode(t, "", 0).URL, entriesNode(t, "", 0).URL}, "", nil)
	stats := a.Stats(context.Background())

	assert.Equal(t, engine.Stats{
		TotalEntries: 6,
		Buffered:     2,
		Segments:     2,
		DiskUsage:    200,
		LevelCounts:  map[string]int64{"info": 4, "error": 2},
	}, stats)
}

type ingestRecorder struct {
	mu      sync.Mutex
	batches int
	entries []map[string]any
	headers []http.Header
}

func (rec *ingestRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ingest", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		var batch []map[string]any
		if !assert.NoError(t, err) || !assert.NoError(t, json.Unmarshal(body, &batch)) {
			http.Error(w, "bad batch", http.StatusBadRequest)
			return
		}

		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.batches++
		rec.entries = append(rec.entries, batch...)
		rec.headers = append(rec.headers, r.Header.Clone())
	}
}

func (rec *ingestRecorder) snapshot() (int, []map[string]any, []http.Header) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.batches, append([]map[string]any(nil), rec.entries...), rec.headers
}

func TestShipperDrainsOnClose(t *testing.T) {
	t.Parallel()

	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	s := NewShipper(ShipperOptions{URL: srv.URL, Token: "tok", FlushInterval: time.Hour})
	for i := 0; i < 250; i++ {
		ok, err := s.Persist(context.Background(), model.Entry{"level": "info", "n": i})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.NoError(t, s.Close())

	batches, entries, headers := rec.snapshot()
	assert.Equal(t, 3, batches)
	require.Len(t, entries, 250)
	for i, e := range entries {
		assert.Equal(t, float64(i), e["n"])
	}
	for _, h := range headers {
		assert.Equal(t, "Bearer tok", h.Get("Authorization"))
		assert.Equal(t, s.InstanceID(), h.Get("X-Instance-ID"))
		assert.Equal(t, userAgent, h.Get("User-Agent"))
	}

	_, err := s.Persist(context.Background(), model.Entry{"level": "info"})
	assert.ErrorIs(t, err, ErrShipperClosed)
	assert.NoError(t, s.Close())
}

func TestShipperFlushesOnInterval(t *testing.T) {
	t.Parallel()

	rec := &ingestRecorder{}
	srv := httptest.NewServer(rec.handler(t))
	t.Cleanup(srv.Close)

	s := NewShipper(ShipperOptions{URL: srv.URL, FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() { s.Close() })

	_, err := s.Persist(context.Background(), model.Entry{"level": "error", "message": "boom"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, entries, _ := rec.snapshot()
		return len(entries) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestShipperReportsPartialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted":1,"rejected":0,"failed":1}`))
	}))
	t.Cleanup(srv.Close)

	var logs bytes.Buffer
	s := NewShipper(ShipperOptions{
		URL:           srv.URL,
		FlushInterval: time.Hour,
		Logger:        slog.New(slog.NewTextHandler(&logs, nil)),
	})
	for i := 0; i < 2; i++ {
		_, err := s.Persist(context.Background(), model.Entry{"level": "info", "n": i})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	assert.Contains(t, logs.String(), "batch delivery failed")
	assert.Contains(t, logs.String(), "1 of 2 entries not persisted")
}

func TestShipperLevelThreshold(t *testing.T) {
	t.Parallel()

	s := NewShipper(ShipperOptions{
		PersistOptions: medium.PersistOptions{Level: model.LevelWarning},
		URL:            "http://127.0.0.1:1",
	})
	t.Cleanup(func() { s.Close() })

	ok, err := s.Persist(context.Background(), model.Entry{"level": "debug"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShipperQueueFull(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	t.Cleanup(srv.Close)

	s := NewShipper(ShipperOptions{URL: srv.URL, BatchSize: 1, QueueSize: 1, FlushInterval: time.Hour})

	var full bool
	for i := 0; i < 10 && !full; i++ {
		_, err := s.Persist(context.Background(), model.Entry{"level": "info"})
		full = err != nil
		if full {
			assert.ErrorIs(t, err, ErrQueueFull)
		}
	}
	assert.True(t, full)

	close(block)
	require.NoError(t, s.Close())
}
