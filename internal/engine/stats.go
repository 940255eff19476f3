package engine

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coffersTech/logpile/internal/model"
)

// persistentStats holds cumulative statistics of flushed entries that survive restarts.
type persistentStats struct {
	TotalEntries int64           `json:"total_entries"`
	TotalBytes   int64           `json:"total_bytes"`
	LevelCounts  map[uint8]int64 `json:"level_counts"` // Level code -> count
}

// Stats is the store summary served by the API and CLI.
type Stats struct {
	TotalEntries int64            `json:"total_entries"`
	Buffered     int              `json:"buffered"`
	Segments     int              `json:"segments"`
	DiskUsage    int64            `json:"disk_usage"` // bytes
	LevelCounts  map[string]int64 `json:"level_counts"`
}

// statsFileName is the filename for persisted stats
const statsFileName = ".logpile.stats"

// loadPersistentStats reads stats from disk. Missing or corrupted files yield empty stats.
func loadPersistentStats(dataDir string) persistentStats {
	stats := persistentStats{LevelCounts: make(map[uint8]int64)}

	data, err := os.ReadFile(filepath.Join(dataDir, statsFileName))
	if err != nil {
		return stats
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return persistentStats{LevelCounts: make(map[uint8]int64)}
	}
	if stats.LevelCounts == nil {
		stats.LevelCounts = make(map[uint8]int64)
	}
	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats persistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Stats merges persisted counters with the buffered rows and measures disk usage.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalEntries: s.stats.TotalEntries,
		Buffered:     s.mt.Len(),
		LevelCounts:  make(map[string]int64),
	}
	for code, n := range s.stats.LevelCounts {
		stats.LevelCounts[string(model.LevelFromNumber(int(code)))] += n
	}
	for code, n := range s.mt.LevelCounts() {
		stats.LevelCounts[string(model.LevelFromNumber(int(code)))] += n
	}
	stats.TotalEntries += int64(stats.Buffered)

	if segs, err := s.segments(); err == nil {
		stats.Segments = len(segs)
	}

	var size int64
	_ = filepath.Walk(s.dataDir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	stats.DiskUsage = size

	return stats
}
