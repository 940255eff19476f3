package engine

import (
	"sync"
	"sync/atomic"
)

// MemTable buffers records in columnar format until they are flushed to a segment.
type MemTable struct {
	mu sync.RWMutex

	ts    *Int64Column
	lvl   *Uint8Column
	lines *BytesColumn

	// Estimated memory usage in bytes
	sizeBytes int64
}

// NewMemTable initializes MemTable with pre-allocated capacity.
func NewMemTable() *MemTable {
	const rows = 4096
	return &MemTable{
		ts:    NewInt64Column(rows),
		lvl:   NewUint8Column(rows),
		lines: NewBytesColumn(64*1024, rows),
	}
}

// Append adds a record. The line is copied.
func (mt *MemTable) Append(r Record) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.ts.Append(r.Timestamp)
	mt.lvl.Append(r.Level)
	mt.lines.Append(r.Line)
	atomic.AddInt64(&mt.sizeBytes, r.size())
}

// Size returns the estimated memory usage in bytes.
func (mt *MemTable) Size() int64 {
	return atomic.LoadInt64(&mt.sizeBytes)
}

// Len returns the number of rows.
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.ts.Size()
}

// Reset clears all column data for memory reuse.
func (mt *MemTable) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	for _, c := range []Column{mt.ts, mt.lvl, mt.lines} {
		c.Reset()
	}
	atomic.StoreInt64(&mt.sizeBytes, 0)
}

// Records returns a copy of the buffered rows in append order.
func (mt *MemTable) Records() []Record {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	out := make([]Record, mt.ts.Size())
	for i := range out {
		out[i] = Record{
			Timestamp: mt.ts.Data[i],
			Level:     mt.lvl.Data[i],
			Line:      append([]byte(nil), mt.lines.Get(i)...),
		}
	}
	return out
}

// LevelCounts counts buffered rows per severity code.
func (mt *MemTable) LevelCounts() map[uint8]int64 {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	counts := make(map[uint8]int64)
	for _, l := range mt.lvl.Data {
		counts[l]++
	}
	return counts
}

// TimeRange returns the smallest and largest timestamps of recs.
// Entries may carry caller supplied timestamps, so rows are not assumed sorted.
func TimeRange(recs []Record) (minTs, maxTs int64) {
	for i, r := range recs {
		if i == 0 || r.Timestamp < minTs {
			minTs = r.Timestamp
		}
		if i == 0 || r.Timestamp > maxTs {
			maxTs = r.Timestamp
		}
	}
	return minTs, maxTs
}
