package engine

import (
	"github.com/valyala/fastjson"

	"github.com/coffersTech/logpile/internal/medium"
	"github.com/coffersTech/logpile/internal/model"
)

// Record is a single stored entry (row-oriented view) used by the WAL,
// segment files and retrieval.
type Record struct {
	Timestamp int64 // unix milliseconds, 0 when the entry has no usable timestamp
	Level     uint8 // RFC 5424 code
	Line      []byte
}

// NewRecord sanitizes and encodes e.
func NewRecord(e model.Entry, depth int) (Record, error) {
	line, err := medium.Encode(e, depth)
	if err != nil {
		return Record{}, err
	}
	var ts int64
	if t, ok := e.Timestamp(); ok {
		ts = t.UnixMilli()
	}
	return Record{
		Timestamp: ts,
		Level:     uint8(e.Level().Number()),
		Line:      line,
	}, nil
}

// Entry decodes the stored line.
func (r Record) Entry(p *fastjson.Parser) (model.Entry, error) {
	return model.ParseEntry(p, r.Line)
}

// size is the memory estimate used for flush thresholds: line + 8 (timestamp) + 1 (level).
func (r Record) size() int64 {
	return int64(len(r.Line) + 9)
}
