// Package engine implements the segment store medium: a WAL-backed columnar
// MemTable flushed to compressed segment files.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
)

// DefaultMaxTableSize is the MemTable flush threshold.
const DefaultMaxTableSize = 64 * 1024 * 1024

const walFileName = "wal.log"

// Options configure a Store.
type Options struct {
	DataDir      string
	MaxTableSize int64
	Retention    time.Duration
	Persist      medium.PersistOptions

	Writer SegmentWriterFunc
	Reader SegmentReaderFunc
	Logger *slog.Logger
}

// Store persists entries to a WAL and MemTable, flushing to segment files,
// and reads them back in persist order.
type Store struct {
	dataDir      string
	maxTableSize int64
	retention    time.Duration
	persist      medium.PersistOptions
	writer       SegmentWriterFunc
	reader       SegmentReaderFunc
	log          *slog.Logger

	// mu serialises writes and flushes against reads and purges.
	mu      sync.RWMutex
	mt      *MemTable
	wal     *WAL
	nextSeq uint64
	stats   persistentStats

	parsers fastjson.ParserPool
}

// Open creates the data directory, loads stats and replays the WAL.
func Open(opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("engine: data dir is required")
	}
	if opts.Writer == nil || opts.Reader == nil {
		return nil, errors.New("engine: segment writer and reader are required")
	}
	if opts.MaxTableSize <= 0 {
		opts.MaxTableSize = DefaultMaxTableSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	wal, err := OpenWAL(filepath.Join(opts.DataDir, walFileName))
	if err != nil {
		return nil, fmt.Errorf("open WAL: %w", err)
	}

	s := &Store{
		dataDir:      opts.DataDir,
		maxTableSize: opts.MaxTableSize,
		retention:    opts.Retention,
		persist:      opts.Persist,
		writer:       opts.Writer,
		reader:       opts.Reader,
		log:          opts.Logger.With("component", "store"),
		mt:           NewMemTable(),
		wal:          wal,
		stats:        loadPersistentStats(opts.DataDir),
	}

	segs, err := s.segments()
	if err != nil {
		wal.Close()
		return nil, err
	}
	if n := len(segs); n > 0 {
		s.nextSeq = segs[n-1].seq + 1
	}

	// Crash recovery: re-append WAL rows without writing them to the WAL again
	recovered, err := wal.Replay()
	if err != nil {
		s.log.Warn("WAL replay", "error", err)
	}
	for _, r := range recovered {
		s.mt.Append(r)
	}
	if len(recovered) > 0 {
		s.log.Info("crash recovery: replayed WAL", "entries", len(recovered))
	}

	return s, nil
}

// Persist is a medium.PersistFunc: the entry is acknowledged once it is in the WAL.
func (s *Store) Persist(ctx context.Context, e model.Entry) (bool, error) {
	if !s.persist.Admits(e) {
		return false, nil
	}
	rec, err := NewRecord(e, s.persist.Depth)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 1. Write to WAL first for durability
	if err := s.wal.Write(rec); err != nil {
		return false, fmt.Errorf("write WAL: %w", err)
	}

	// 2. Append to MemTable
	s.mt.Append(rec)

	// 3. Flush when the threshold is reached; a failed flush keeps the rows buffered
	if s.mt.Size() >= s.maxTableSize {
		if err := s.flushLocked(); err != nil {
			s.log.Warn("flush failed", "error", err)
		}
	}
	return true, nil
}

// Flush writes the buffered rows to a new segment and resets the WAL.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	recs := s.mt.Records()
	if len(recs) == 0 {
		return nil
	}

	minTs, maxTs := TimeRange(recs)
	name := segmentName(s.nextSeq, minTs, maxTs)
	path := filepath.Join(s.dataDir, name)

	// === Step 1: Write file to disk ===
	if err := s.writer(path, recs); err != nil {
		return fmt.Errorf("write segment %s: %w", name, err)
	}
	s.nextSeq++

	// === Step 2: Stats transfer ===
	for _, r := range recs {
		s.stats.TotalEntries++
		s.stats.TotalBytes += r.size()
		s.stats.LevelCounts[r.Level]++
	}
	if err := savePersistentStats(s.dataDir, s.stats); err != nil {
		s.log.Warn("stats persist error", "error", err)
	}

	// === Step 3: Reset MemTable and WAL ===
	s.mt.Reset()
	if err := s.wal.Reset(); err != nil {
		s.log.Warn("WAL reset error", "error", err)
	}

	s.log.Debug("flushed to disk", "segment", name, "rows", len(recs))
	return nil
}

// Retrieve is a medium.RetrieveFunc: segment entries in sequence order,
// then buffered entries. Unreadable segments and undecodable lines are
// counted as skipped.
func (s *Store) Retrieve(ctx context.Context) (medium.Retrieval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segs, err := s.segments()
	if err != nil {
		return medium.Retrieval{}, err
	}

	p := s.parsers.Get()
	defer s.parsers.Put(p)

	var res medium.Retrieval
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return medium.Retrieval{}, err
		}
		recs, err := s.reader(seg.path)
		if err != nil {
			s.log.Warn("skipping unreadable segment", "path", seg.path, "error", err)
			res.Skipped++
			continue
		}
		s.decode(p, recs, &res)
	}
	s.decode(p, s.mt.Records(), &res)
	return res, nil
}

func (s *Store) decode(p *fastjson.Parser, recs []Record, res *medium.Retrieval) {
	for _, r := range recs {
		e, err := r.Entry(p)
		if err != nil {
			res.Skipped++
			continue
		}
		res.Entries = append(res.Entries, e)
	}
}

// Medium exposes the store as a persist/retrieve pair.
func (s *Store) Medium() medium.Medium {
	return medium.Medium{
		Persist:  []medium.PersistFunc{s.Persist},
		Retrieve: s.Retrieve,
	}
}

// Sync flushes the WAL file to disk.
func (s *Store) Sync() error {
	return s.wal.Sync()
}

// Close flushes buffered rows and closes the WAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.flushLocked()
	return errors.Join(flushErr, s.wal.Close())
}

// segments lists segment files ordered by sequence number.
func (s *Store) segments() ([]segment, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segs []segment
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), segmentSuffix) {
			continue
		}
		seg, err := parseSegmentName(filepath.Join(s.dataDir, entry.Name()))
		if err != nil {
			continue // Skip files with unexpected names
		}
		segs = append(segs, seg)
	}
	sort.Slice(segs, func(i, j int) bool {
		return segs[i].seq < segs[j].seq
	})
	return segs, nil
}
