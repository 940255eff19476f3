package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrTornWAL reports a partially written WAL tail, which replay discards.
var ErrTornWAL = errors.New("torn WAL tail")

// walHeaderSize is Len(4) + Timestamp(8) + Level(1).
const walHeaderSize = 13

// maxWALRecord guards replay against garbage lengths.
const maxWALRecord = 64 << 20

// WAL handles write-ahead logging to prevent data loss during crashes.
// Format per record: [Len uint32][Timestamp int64][Level uint8][Line]
type WAL struct {
	file *os.File
	path string
	mu   sync.Mutex
}

// OpenWAL opens or creates a WAL file at the specified path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return &WAL{file: f, path: path}, nil
}

// Write records a row in the WAL.
func (w *WAL) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf := make([]byte, walHeaderSize, walHeaderSize+len(r.Line))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(r.Line)))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(r.Timestamp))
	buf[12] = r.Level
	buf = append(buf, r.Line...)

	_, err := w.file.Write(buf)
	return err
}

// Sync flushes the WAL file buffers to disk.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Reset truncates the WAL file.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, io.SeekStart)
	return err
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Replay reads every complete record from the WAL. A torn tail is cut off
// so later writes append after the last good record; the records read so far
// are returned together with ErrTornWAL.
func (w *WAL) Replay() ([]Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var (
		rows   []Record
		good   int64
		header = make([]byte, walHeaderSize)
	)
	for {
		_, err := io.ReadFull(w.file, header)
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, w.truncateAt(good, fmt.Errorf("%w: header: %v", ErrTornWAL, err))
		}

		length := binary.LittleEndian.Uint32(header[0:4])
		if length > maxWALRecord {
			return rows, w.truncateAt(good, fmt.Errorf("%w: record length %d", ErrTornWAL, length))
		}
		line := make([]byte, length)
		if _, err := io.ReadFull(w.file, line); err != nil {
			return rows, w.truncateAt(good, fmt.Errorf("%w: data: %v", ErrTornWAL, err))
		}

		rows = append(rows, Record{
			Timestamp: int64(binary.LittleEndian.Uint64(header[4:12])),
			Level:     header[12],
			Line:      line,
		})
		good += int64(walHeaderSize) + int64(length)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return rows, err
	}
	return rows, nil
}

func (w *WAL) truncateAt(offset int64, cause error) error {
	if err := w.file.Truncate(offset); err != nil {
		return errors.Join(cause, err)
	}
	if _, err := w.file.Seek(offset, io.SeekStart); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
