package vcdleak

import "bytes"

// Cursor is a zero-copy scanning position over a byte range, typically the
// memory-mapped image of a VCD file. It never copies the underlying data
// except where an operation explicitly says it returns an owned copy.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the current byte offset, used both as a resume point and as
// the offset reported in parse errors.
func (c *Cursor) Pos() int {
	return c.pos
}

// AtEOF reports whether the cursor has consumed the whole range.
func (c *Cursor) AtEOF() bool {
	return c.pos >= len(c.data)
}

// TryConsume advances past keyword and returns true iff the cursor currently
// sits at the start of keyword. Leaves the cursor untouched otherwise.
func (c *Cursor) TryConsume(keyword string) bool {
	if c.pos+len(keyword) > len(c.data) {
		return false
	}
	if string(c.data[c.pos:c.pos+len(keyword)]) != keyword {
		return false
	}
	c.pos += len(keyword)
	return true
}

// DistanceTo returns the number of bytes between the cursor and the first
// occurrence of delim, without moving the cursor. Fails with
// MalformedTraceError if delim does not occur before the end of the range.
func (c *Cursor) DistanceTo(delim string) (int, error) {
	idx := bytes.Index(c.data[c.pos:], []byte(delim))
	if idx < 0 {
		return 0, MalformedTraceError{Offset: c.pos, Detail: "unterminated search for " + quote(delim)}
	}
	return idx, nil
}

// TakeUntil copies bytes [pos, pos+DistanceTo(delim)) and advances the
// cursor over them, but not over delim itself.
func (c *Cursor) TakeUntil(delim string) ([]byte, error) {
	n, err := c.DistanceTo(delim)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.data[c.pos:c.pos+n])
	c.pos += n
	return out, nil
}

// SkipPastEndMarker advances to and over the next "$end\n" literal.
func (c *Cursor) SkipPastEndMarker() error {
	const end = "$end\n"
	n, err := c.DistanceTo(end)
	if err != nil {
		return err
	}
	c.pos += n + len(end)
	return nil
}

// ParseUnsignedDecimal consumes a base-10 unsigned integer, advancing the
// cursor to the first non-digit byte.
func (c *Cursor) ParseUnsignedDecimal() (uint64, error) {
	start := c.pos
	var v uint64
	for c.pos < len(c.data) && c.data[c.pos] >= '0' && c.data[c.pos] <= '9' {
		v = v*10 + uint64(c.data[c.pos]-'0')
		c.pos++
	}
	if c.pos == start {
		return 0, MalformedTraceError{Offset: c.pos, Detail: "expected decimal digit"}
	}
	return v, nil
}

// ParseSignedDecimal consumes an optionally '-'-prefixed base-10 integer.
func (c *Cursor) ParseSignedDecimal() (int64, error) {
	neg := false
	if c.pos < len(c.data) && c.data[c.pos] == '-' {
		neg = true
		c.pos++
	}
	v, err := c.ParseUnsignedDecimal()
	if err != nil {
		return 0, err
	}
	if neg {
		return -int64(v), nil
	}
	return int64(v), nil
}

// Byte returns the byte at the cursor without advancing it.
func (c *Cursor) Byte() byte {
	return c.data[c.pos]
}

// Advance moves the cursor forward n bytes.
func (c *Cursor) Advance(n int) {
	c.pos += n
}

// Seek repositions the cursor to an absolute offset.
func (c *Cursor) Seek(pos int) {
	c.pos = pos
}

// Data returns the full underlying byte range. Callers must not mutate it.
func (c *Cursor) Data() []byte {
	return c.data
}

func quote(s string) string {
	return "\"" + s + "\""
}
