package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/coffersTech/logpile/internal/engine"
	"github.com/coffersTech/logpile/internal/pkg/security"
)

var (
	ErrInvalidHeader  = errors.New("invalid segment header")
	ErrFileTooSmall   = errors.New("segment file too small")
	ErrColumnMismatch = errors.New("column length mismatch")
	ErrNoCipher       = errors.New("segment is encrypted but no key is configured")
)

// headerSize is Magic(8) + Flags(1).
const headerSize = 9

// Footer is the trailing summary of a segment.
type Footer struct {
	RowCount uint32
	MinTs    int64
	MaxTs    int64
}

// RecordIterator provides a row-by-row view of a segment.
type RecordIterator interface {
	Next() bool
	Record() engine.Record
	Error() error
	Close() error
}

type ColumnReader struct {
	decoder *zstd.Decoder
	cipher  *security.Cipher
}

// NewColumnReader returns a reader; c may be nil when no segment is encrypted.
func NewColumnReader(c *security.Cipher) (*ColumnReader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &ColumnReader{decoder: dec, cipher: c}, nil
}

// NewIterator opens a segment and decodes its columns.
func (cr *ColumnReader) NewIterator(filename string) (RecordIterator, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	it := &FileIterator{reader: cr, cursor: -1}
	if err := it.init(f); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return it, nil
}

// FileIterator walks the rows of one decoded segment.
type FileIterator struct {
	reader *ColumnReader

	footer     Footer
	timestamps []int64
	levels     []uint8
	lines      [][]byte

	cursor int
	err    error
}

func (it *FileIterator) init(f *os.File) error {
	// 1. Validate Header
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return err
	}
	if !bytes.Equal(header[:len(MagicHeader)], MagicHeader) {
		return ErrInvalidHeader
	}
	encrypted := header[len(MagicHeader)]&flagEncrypted != 0
	if encrypted && it.reader.cipher == nil {
		return ErrNoCipher
	}

	// 2. Read Footer (at end of file)
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < headerSize+footerSize {
		return ErrFileTooSmall
	}
	footer, err := ReadFooterAt(f, info.Size())
	if err != nil {
		return err
	}
	it.footer = footer

	// 3. Read and decompress all columns
	body := io.NewSectionReader(f, headerSize, info.Size()-headerSize-footerSize)

	tsData, err := it.reader.readBlock(body, encrypted)
	if err != nil {
		return err
	}
	it.timestamps = bytesToInt64Slice(tsData)

	lvlData, err := it.reader.readBlock(body, encrypted)
	if err != nil {
		return err
	}
	it.levels = lvlData

	lineData, err := it.reader.readBlock(body, encrypted)
	if err != nil {
		return err
	}
	it.lines, err = bytesToSlices(lineData)
	if err != nil {
		return err
	}

	n := int(footer.RowCount)
	if n != len(it.timestamps) || n != len(it.levels) || n != len(it.lines) {
		return ErrColumnMismatch
	}
	return nil
}

func (it *FileIterator) Next() bool {
	it.cursor++
	return it.cursor < len(it.timestamps)
}

func (it *FileIterator) Record() engine.Record {
	return engine.Record{
		Timestamp: it.timestamps[it.cursor],
		Level:     it.levels[it.cursor],
		Line:      it.lines[it.cursor],
	}
}

func (it *FileIterator) Footer() Footer { return it.footer }

func (it *FileIterator) Error() error { return it.err }

// Close is a no-op: columns are decoded eagerly and the file is already closed.
func (it *FileIterator) Close() error { return nil }

// ReadSegment reads every record of a segment file.
func (cr *ColumnReader) ReadSegment(filename string) ([]engine.Record, error) {
	it, err := cr.NewIterator(filename)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var recs []engine.Record
	for it.Next() {
		recs = append(recs, it.Record())
	}
	return recs, it.Error()
}

// ReadFooterAt reads the footer of a segment of the given size.
func ReadFooterAt(r io.ReaderAt, size int64) (Footer, error) {
	buf := make([]byte, footerSize)
	if _, err := r.ReadAt(buf, size-footerSize); err != nil {
		return Footer{}, err
	}
	return Footer{
		RowCount: binary.LittleEndian.Uint32(buf[0:4]),
		MinTs:    int64(binary.LittleEndian.Uint64(buf[4:12])),
		MaxTs:    int64(binary.LittleEndian.Uint64(buf[12:20])),
	}, nil
}

// readBlock reads a block (size + data), opens it if sealed and decompresses it.
func (cr *ColumnReader) readBlock(r io.Reader, encrypted bool) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}

	block := make([]byte, size)
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}

	if encrypted {
		plain, err := cr.cipher.Open(block)
		if err != nil {
			return nil, fmt.Errorf("decrypt block: %w", err)
		}
		block = plain
	}

	return cr.decoder.DecodeAll(block, nil)
}

// bytesToInt64Slice converts a byte slice to []int64 (LittleEndian).
func bytesToInt64Slice(data []byte) []int64 {
	result := make([]int64, len(data)/8)
	for i := range result {
		result[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return result
}

// bytesToSlices splits a [Len uint32][Bytes]... column.
func bytesToSlices(data []byte) ([][]byte, error) {
	var result [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		n := binary.LittleEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(n) > uint64(len(data)) {
			return nil, io.ErrUnexpectedEOF
		}
		result = append(result, data[:n:n])
		data = data[n:]
	}
	return result, nil
}
