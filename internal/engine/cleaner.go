package engine

import (
	"context"
	"os"
	"time"
)

// RunCleaner periodically removes segments older than the retention until ctx is done.
func (s *Store) RunCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("cleaner started", "retention", s.retention, "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.retention <= 0 {
				continue
			}
			if _, err := s.PurgeExpired(now); err != nil {
				s.log.Warn("cleaner failed", "error", err)
			}
		}
	}
}

// PurgeExpired deletes segments whose newest entry is older than now minus
// the retention. It returns the number of removed segments.
func (s *Store) PurgeExpired(now time.Time) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	threshold := now.Add(-s.retention).UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	segs, err := s.segments()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, seg := range segs {
		if seg.maxTs >= threshold {
			continue
		}
		if err := os.Remove(seg.path); err != nil {
			s.log.Warn("failed to delete expired segment", "path", seg.path, "error", err)
			continue
		}
		removed++
		s.log.Info("expired segment deleted", "path", seg.path)
	}
	return removed, nil
}
