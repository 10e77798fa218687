package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value does not fit its target width.
var ErrOverflow = errors.New("leb128: overflow")

// Reader decodes ILM primitives from an in-memory buffer.
type Reader struct {
	data []byte
	pos  int
	// base is the offset of data within the enclosing module, so positions
	// reported from section readers are absolute.
	base int
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the absolute offset of the next unread byte.
func (r *Reader) Position() int { return r.base + r.pos }

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.data) - r.pos }

// ReadByte reads one byte. It returns io.EOF at the end of the buffer.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes. The result is a copy.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, r.wrapError(fmt.Errorf("negative length %d", n))
	}
	if n > r.Len() {
		return nil, r.wrapError(io.ErrUnexpectedEOF)
	}
	out := append([]byte(nil), r.data[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}

// ReadBlob reads a byte slice prefixed by its LEB128 length.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(int(n))
}

// ReadName reads a length-prefixed UTF-8 string.
func (r *Reader) ReadName() (string, error) {
	data, err := r.ReadBlob()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", r.wrapError(errors.New("invalid UTF-8 in name"))
	}
	return string(data), nil
}

// ReadSection reads a section frame written by Writer.Section and returns
// its id and a reader over the payload.
func (r *Reader) ReadSection() (byte, *Reader, error) {
	id, err := r.ReadByte()
	if err != nil {
		return 0, nil, err
	}
	n, err := r.ReadU32()
	if err != nil {
		return id, nil, err
	}
	if int(n) > r.Len() {
		return id, nil, r.wrapError(io.ErrUnexpectedEOF)
	}
	sr := &Reader{data: r.data[r.pos : r.pos+int(n)], base: r.Position()}
	r.pos += int(n)
	return id, sr, nil
}

// ReadU32 reads an unsigned LEB128 value of at most five bytes.
func (r *Reader) ReadU32() (uint32, error) {
	var v uint32
	for i := 0; i < 5; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 4 && b > 0x0f {
			return 0, r.wrapError(ErrOverflow)
		}
		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, r.wrapError(ErrOverflow)
}

// ReadS32 reads a signed LEB128 value that must fit in an int32.
func (r *Reader) ReadS32() (int32, error) {
	v, err := r.ReadS64()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, r.wrapError(ErrOverflow)
	}
	return int32(v), nil
}

// ReadS64 reads a signed LEB128 value of at most ten bytes.
func (r *Reader) ReadS64() (int64, error) {
	var v int64
	var shift uint
	for i := 0; i < 10; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 != 0 {
			continue
		}
		if shift < 64 && b&0x40 != 0 {
			v |= -1 << shift
		}
		return v, nil
	}
	return 0, r.wrapError(ErrOverflow)
}

// ReadU32LE reads four little-endian bytes.
func (r *Reader) ReadU32LE() (uint32, error) {
	if r.Len() < 4 {
		return 0, r.wrapError(io.ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadF32 reads the little-endian IEEE 754 bits of a float32.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32LE()
	return math.Float32frombits(v), err
}

// ReadF64 reads the little-endian IEEE 754 bits of a float64.
func (r *Reader) ReadF64() (float64, error) {
	if r.Len() < 8 {
		return 0, r.wrapError(io.ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(v), nil
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.Position(), err)
}

// ParseError is a decoding failure with the module offset where it occurred.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("ilm: at position %d: %v", e.Position, e.Err)
	}
	return fmt.Sprintf("ilm: %s at position %d: %v", e.Section, e.Position, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WrapError returns err as a ParseError at the current position.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{Err: err, Section: section, Position: r.Position()}
}
