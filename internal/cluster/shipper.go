package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
)

const userAgent = "logpile-shipper/1"

var (
	ErrQueueFull     = errors.New("shipper queue full")
	ErrShipperClosed = errors.New("shipper closed")
)

// ShipperOptions configure a Shipper.
type ShipperOptions struct {
	medium.PersistOptions

	// URL of the receiving node.
	URL   string
	Token string

	BatchSize     int           // default 100
	FlushInterval time.Duration // default 1s
	QueueSize     int           // default 10000

	Client *http.Client
	Logger *slog.Logger
}

// Shipper batches entries to a node's POST /api/ingest from one background goroutine.
type Shipper struct {
	opts       ShipperOptions
	instanceID string
	log        *slog.Logger

	queue chan []byte
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewShipper(opts ShipperOptions) *Shipper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 10000
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Shipper{
		opts:       opts,
		instanceID: uuid.New().String(),
		log:        opts.Logger.With("component", "shipper", "target", opts.URL),
		queue:      make(chan []byte, opts.QueueSize),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.runLoop()
	return s
}

// InstanceID identifies this shipper to the receiving node.
func (s *Shipper) InstanceID() string { return s.instanceID }

// Persist is a medium.PersistFunc. The entry is queued, not yet delivered;
// a full queue drops it.
func (s *Shipper) Persist(_ context.Context, e model.Entry) (bool, error) {
	if !s.opts.Admits(e) {
		return false, nil
	}
	data, err := medium.Encode(e, s.opts.Depth)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrShipperClosed
	}

	select {
	case s.queue <- data:
		return true, nil
	default:
		return false, ErrQueueFull
	}
}

// Close delivers everything queued and stops the background goroutine.
func (s *Shipper) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return nil
}

func (s *Shipper) runLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	var batch [][]byte
	send := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.send(batch); err != nil {
			s.log.Warn("batch delivery failed", "entries", len(batch), "error", err)
		}
		batch = nil
	}

	for {
		select {
		case data := <-s.queue:
			batch = append(batch, data)
			if len(batch) >= s.opts.BatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-s.done:
			// Flush remaining
			for {
				select {
				case data := <-s.queue:
					batch = append(batch, data)
					if len(batch) >= s.opts.BatchSize {
						send()
					}
				default:
					send()
					return
				}
			}
		}
	}
}

// send posts the batch as a JSON array: [ {}, {}, {} ]
func (s *Shipper) send(batch [][]byte) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, b := range batch {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(s.opts.URL, "/")+"/api/ingest", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Instance-ID", s.instanceID)
	req.Header.Set("User-Agent", userAgent)
	if s.opts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// the node stores what it can and reports the rest as failed
	var ack struct {
		Failed int `json:"failed"`
	}
	if json.NewDecoder(resp.Body).Decode(&ack) == nil && ack.Failed > 0 {
		return fmt.Errorf("%d of %d entries not persisted", ack.Failed, len(batch))
	}
	return nil
}
