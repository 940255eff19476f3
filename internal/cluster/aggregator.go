// Package cluster reads from and ships to remote logpile nodes over HTTP.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
)

// maxResponseSize caps a node's entries response.
const maxResponseSize = 256 << 20

// Aggregator centralizes distributed retrieval across data nodes.
type Aggregator struct {
	Nodes  []string
	Token  string
	Client *http.Client
	Logger *slog.Logger

	parsers fastjson.ParserPool
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(nodes []string, token string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Nodes:  nodes,
		Token:  token,
		Client: &http.Client{Timeout: 10 * time.Second},
		Logger: logger.With("component", "aggregator"),
	}
}

// Retrieve is a medium.RetrieveFunc performing a scatter-gather over
// every node's GET /api/entries. Results are concatenated in node order;
// failing nodes are logged and contribute nothing.
func (a *Aggregator) Retrieve(ctx context.Context) (medium.Retrieval, error) {
	parts := make([]medium.Retrieval, len(a.Nodes))
	var wg sync.WaitGroup

	for i, node := range a.Nodes {
		wg.Add(1)
		go func(i int, nodeURL string) {
			defer wg.Done()
			part, err := a.fetchEntries(ctx, nodeURL)
			if err != nil {
				a.Logger.Warn("node retrieval failed", "node", nodeURL, "error", err)
				return
			}
			parts[i] = part
		}(i, node)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return medium.Retrieval{}, err
	}
	var res medium.Retrieval
	for _, p := range parts {
		res.Add(p)
	}
	return res, nil
}

func (a *Aggregator) fetchEntries(ctx context.Context, nodeURL string) (medium.Retrieval, error) {
	body, err := a.get(ctx, nodeURL, "/api/entries")
	if err != nil {
		return medium.Retrieval{}, err
	}

	p := a.parsers.Get()
	defer a.parsers.Put(p)

	v, err := p.ParseBytes(body)
	if err != nil {
		return medium.Retrieval{}, fmt.Errorf("decode response: %w", err)
	}

	res := medium.Retrieval{Skipped: v.GetInt("skipped")}
	for _, item := range v.GetArray("entries") {
		e, err := model.EntryFromJSON(item)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

// Stats performs scatter-gather stats aggregation.
func (a *Aggregator) Stats(ctx context.Context) engine.Stats {
	total := engine.Stats{LevelCounts: make(map[string]int64)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range a.Nodes {
		wg.Add(1)
		go func(nodeURL string) {
			defer wg.Done()
			body, err := a.get(ctx, nodeURL, "/api/stats")
			if err != nil {
				a.Logger.Warn("node stats failed", "node", nodeURL, "error", err)
				return
			}
			var nodeStats engine.Stats
			if err := json.Unmarshal(body, &nodeStats); err != nil {
				a.Logger.Warn("node stats undecodable", "node", nodeURL, "error", err)
				return
			}

			mu.Lock()
			defer mu.Unlock()
			total.TotalEntries += nodeStats.TotalEntries
			total.Buffered += nodeStats.Buffered
			total.Segments += nodeStats.Segments
			total.DiskUsage += nodeStats.DiskUsage
			for k, v := range nodeStats.LevelCounts {
				total.LevelCounts[k] += v
			}
		}(node)
	}
	wg.Wait()

	return total
}

func (a *Aggregator) get(ctx context.Context, nodeURL, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(nodeURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}
