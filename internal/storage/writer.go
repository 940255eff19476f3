package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/pkg/security"
)

// MagicHeader starts every segment file.
var MagicHeader = []byte("LOGPILE1")

// Header flags.
const (
	flagEncrypted byte = 1 << iota
)

// footerSize is RowCount(4) + MinTs(8) + MaxTs(8).
const footerSize = 20

// ColumnWriter writes segment files: header, three column blocks
// (timestamps, levels, lines), footer. Each block is zstd compressed and,
// with a cipher, sealed with AES-GCM.
type ColumnWriter struct {
	encoder *zstd.Encoder
	cipher  *security.Cipher
}

// NewColumnWriter returns a writer; c may be nil for plaintext segments.
func NewColumnWriter(c *security.Cipher) (*ColumnWriter, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnWriter{encoder: enc, cipher: c}, nil
}

// WriteSegment writes recs to path. The file appears atomically.
func (cw *ColumnWriter) WriteSegment(path string, recs []engine.Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := cw.write(f, recs); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (cw *ColumnWriter) write(f *os.File, recs []engine.Record) error {
	// 1. Write Header
	var flags byte
	if cw.cipher != nil {
		flags |= flagEncrypted
	}
	if _, err := f.Write(append(append([]byte(nil), MagicHeader...), flags)); err != nil {
		return err
	}

	// 2. Prepare Data
	ts := make([]int64, len(recs))
	lvl := make([]uint8, len(recs))
	lines := make([][]byte, len(recs))
	for i, r := range recs {
		ts[i], lvl[i], lines[i] = r.Timestamp, r.Level, r.Line
	}
	minTs, maxTs := engine.TimeRange(recs)

	// 3. Compress and Write Columns
	if err := cw.writeInt64Col(f, ts); err != nil {
		return fmt.Errorf("timestamp column: %w", err)
	}
	if err := cw.writeBlock(f, lvl); err != nil {
		return fmt.Errorf("level column: %w", err)
	}
	if err := cw.writeBytesCol(f, lines); err != nil {
		return fmt.Errorf("line column: %w", err)
	}

	// 4. Footer
	return writeFooter(f, uint32(len(recs)), minTs, maxTs)
}

func (cw *ColumnWriter) writeInt64Col(f *os.File, data []int64) error {
	raw := make([]byte, len(data)*8)
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[i*8:], uint64(v))
	}
	return cw.writeBlock(f, raw)
}

func (cw *ColumnWriter) writeBytesCol(f *os.File, data [][]byte) error {
	buf := new(bytes.Buffer)
	// Serialize: [Len uint32][Bytes]...
	var lenBuf [4]byte
	for _, b := range data {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		buf.Write(lenBuf[:])
		buf.Write(b)
	}
	return cw.writeBlock(f, buf.Bytes())
}

// writeBlock compresses (and seals) raw and writes [Size uint32][Block].
func (cw *ColumnWriter) writeBlock(f *os.File, raw []byte) error {
	block := cw.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
	if cw.cipher != nil {
		sealed, err := cw.cipher.Seal(block)
		if err != nil {
			return err
		}
		block = sealed
	}

	if err := binary.Write(f, binary.LittleEndian, uint32(len(block))); err != nil {
		return err
	}
	_, err := f.Write(block)
	return err
}

func writeFooter(f *os.File, rowCount uint32, minTs, maxTs int64) error {
	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[0:4], rowCount)
	binary.LittleEndian.PutUint64(footer[4:12], uint64(minTs))
	binary.LittleEndian.PutUint64(footer[12:20], uint64(maxTs))
	_, err := f.Write(footer[:])
	return err
}
