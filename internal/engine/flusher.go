package engine

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	segmentPrefix = "seg_"
	segmentSuffix = ".nano"
)

// SegmentWriterFunc writes records to a segment file.
// This allows the engine package to not depend on storage package directly.
type SegmentWriterFunc func(path string, recs []Record) error

// SegmentReaderFunc reads every record of a segment file.
type SegmentReaderFunc func(path string) ([]Record, error)

// segment describes a flushed file.
// Filename format: seg_{Seq}_{MinTimestamp}_{MaxTimestamp}.nano
type segment struct {
	path  string
	seq   uint64
	minTs int64
	maxTs int64
}

func segmentName(seq uint64, minTs, maxTs int64) string {
	return fmt.Sprintf("%s%d_%d_%d%s", segmentPrefix, seq, minTs, maxTs, segmentSuffix)
}

// parseSegmentName extracts sequence and time range from a segment filename.
func parseSegmentName(path string) (segment, error) {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, segmentPrefix) || !strings.HasSuffix(base, segmentSuffix) {
		return segment{}, fmt.Errorf("not a segment: %s", base)
	}
	content := strings.TrimSuffix(strings.TrimPrefix(base, segmentPrefix), segmentSuffix)
	parts := strings.Split(content, "_")
	if len(parts) != 3 {
		return segment{}, fmt.Errorf("invalid segment name: %s", base)
	}
	seq, err1 := strconv.ParseUint(parts[0], 10, 64)
	minTs, err2 := strconv.ParseInt(parts[1], 10, 64)
	maxTs, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return segment{}, fmt.Errorf("invalid segment numbers: %s", base)
	}
	return segment{path: path, seq: seq, minTs: minTs, maxTs: maxTs}, nil
}
