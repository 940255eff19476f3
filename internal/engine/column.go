package engine

// ColumnType defines the type of data stored in a column.
type ColumnType int

const (
	ColumnTypeInt64 ColumnType = iota
	ColumnTypeUint8
	ColumnTypeBytes
)

// Column is the generic interface for a column in the MemTable.
type Column interface {
	Type() ColumnType
	Reset()
	Size() int  // Number of rows
	Bytes() int // Estimated memory usage in bytes
}

// Int64Column stores int64 values (timestamps).
type Int64Column struct {
	Data []int64
}

func NewInt64Column(capacity int) *Int64Column {
	return &Int64Column{Data: make([]int64, 0, capacity)}
}

func (c *Int64Column) Type() ColumnType { return ColumnTypeInt64 }
func (c *Int64Column) Append(v int64)   { c.Data = append(c.Data, v) }
func (c *Int64Column) Reset()           { c.Data = c.Data[:0] }
func (c *Int64Column) Size() int        { return len(c.Data) }
func (c *Int64Column) Bytes() int       { return len(c.Data) * 8 }

// Uint8Column stores severity codes.
type Uint8Column struct {
	Data []uint8
}

func NewUint8Column(capacity int) *Uint8Column {
	return &Uint8Column{Data: make([]uint8, 0, capacity)}
}

func (c *Uint8Column) Type() ColumnType { return ColumnTypeUint8 }
func (c *Uint8Column) Append(v uint8)   { c.Data = append(c.Data, v) }
func (c *Uint8Column) Reset()           { c.Data = c.Data[:0] }
func (c *Uint8Column) Size() int        { return len(c.Data) }
func (c *Uint8Column) Bytes() int       { return len(c.Data) }

// BytesColumn stores variable-length byte slices using a flat buffer and offsets.
// This reduces GC pressure compared to [][]byte.
type BytesColumn struct {
	Data    []byte // The flat buffer storing all bytes
	Offsets []int  // Starting offset for each row. Length is RowCount + 1
}

func NewBytesColumn(dataCap, rowsCap int) *BytesColumn {
	c := &BytesColumn{
		Data:    make([]byte, 0, dataCap),
		Offsets: make([]int, 0, rowsCap+1),
	}
	c.Offsets = append(c.Offsets, 0)
	return c
}

func (c *BytesColumn) Type() ColumnType { return ColumnTypeBytes }

// Append copies v into the column.
func (c *BytesColumn) Append(v []byte) {
	c.Data = append(c.Data, v...)
	c.Offsets = append(c.Offsets, len(c.Data))
}

func (c *BytesColumn) Reset() {
	c.Data = c.Data[:0]
	c.Offsets = c.Offsets[:1]
}

func (c *BytesColumn) Size() int  { return len(c.Offsets) - 1 }
func (c *BytesColumn) Bytes() int { return len(c.Data) + len(c.Offsets)*8 }

// Get returns the bytes at index i. The slice aliases the column buffer
// and is only valid until the next Reset.
func (c *BytesColumn) Get(i int) []byte {
	if i < 0 || i >= len(c.Offsets)-1 {
		return nil
	}
	return c.Data[c.Offsets[i]:c.Offsets[i+1]]
}
