package binary

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytesPastEnd(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	if _, err := r.ReadBytes(3); err == nil {
		t.Error("expected error reading past end")
	}
	if _, err := r.ReadBytes(-1); err == nil {
		t.Error("expected error for negative length")
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		r := NewReader(tt.encoded)
		got, err := r.ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	_, err := r.ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadS32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, -1},
		{[]byte{0x3f}, 63},
		{[]byte{0x40}, -64},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0xbf, 0x7f}, -65},
	}

	for _, tt := range tests {
		r := NewReader(tt.encoded)
		got, err := r.ReadS32()
		if err != nil {
			t.Errorf("ReadS32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadS32OutOfRange(t *testing.T) {
	w := NewWriter()
	w.WriteS64(math.MaxInt32 + 1)
	r := NewReader(w.Bytes())
	if _, err := r.ReadS32(); !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadNameInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestReaderWrapError(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	r.ReadByte()
	r.ReadByte()

	err := r.WrapError("type definition", errors.New("boom"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Position != 2 {
		t.Errorf("Position: got %d, want 2", pe.Position)
	}
	if got := pe.Error(); got != "ilm: type definition at position 2: boom" {
		t.Errorf("Error(): got %q", got)
	}

	pe = &ParseError{Position: 5, Err: errors.New("some error")}
	if got := pe.Error(); got != "ilm: at position 5: some error" {
		t.Errorf("Error(): got %q", got)
	}
}

func TestWriterWriteU32(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range tests {
		w := NewWriter()
		w.WriteU32(tt.value)
		if !bytes.Equal(w.Bytes(), tt.want) {
			t.Errorf("WriteU32(%d): got %v, want %v", tt.value, w.Bytes(), tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	w := NewWriter()
	w.Byte(0x42)
	w.WriteU32(300)
	w.WriteS32(-12345)
	w.WriteS64(math.MinInt64)
	w.WriteName("Sample.Logger")
	w.WriteBlob([]byte{0xA1, 0x01})
	w.WriteU32LE(0x06000001)
	w.WriteF32(1.5)
	w.WriteF64(-2.25)

	r := NewReader(w.Bytes())
	if b, _ := r.ReadByte(); b != 0x42 {
		t.Errorf("byte: got 0x%02x", b)
	}
	if v, _ := r.ReadU32(); v != 300 {
		t.Errorf("u32: got %d", v)
	}
	if v, _ := r.ReadS32(); v != -12345 {
		t.Errorf("s32: got %d", v)
	}
	if v, _ := r.ReadS64(); v != math.MinInt64 {
		t.Errorf("s64: got %d", v)
	}
	if v, _ := r.ReadName(); v != "Sample.Logger" {
		t.Errorf("name: got %q", v)
	}
	if v, _ := r.ReadBlob(); !bytes.Equal(v, []byte{0xA1, 0x01}) {
		t.Errorf("blob: got %v", v)
	}
	if v, _ := r.ReadU32LE(); v != 0x06000001 {
		t.Errorf("u32le: got 0x%08x", v)
	}
	if v, _ := r.ReadF32(); v != 1.5 {
		t.Errorf("f32: got %v", v)
	}
	if v, _ := r.ReadF64(); v != -2.25 {
		t.Errorf("f64: got %v", v)
	}
	if r.Len() != 0 {
		t.Errorf("unread bytes: %d", r.Len())
	}
}

func TestSection(t *testing.T) {
	payload := NewWriter()
	payload.WriteName("Demo")
	payload.WriteU32(200)

	w := NewWriter()
	w.Section(3, payload)

	want := []byte{3, 7, 4, 'D', 'e', 'm', 'o', 0xC8, 0x01}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got %v, want %v", w.Bytes(), want)
	}

	r := NewReader(append([]byte{0xEE}, w.Bytes()...))
	r.ReadByte()
	id, sr, err := r.ReadSection()
	if err != nil {
		t.Fatalf("ReadSection: %v", err)
	}
	if id != 3 || sr.Len() != 7 || r.Len() != 0 {
		t.Errorf("id %d, payload %d bytes, %d left", id, sr.Len(), r.Len())
	}
	if sr.Position() != 3 {
		t.Errorf("payload position: got %d, want 3", sr.Position())
	}
	if name, _ := sr.ReadName(); name != "Demo" {
		t.Errorf("name: got %q", name)
	}

	short := NewReader([]byte{3, 9, 1})
	if _, _, err := short.ReadSection(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated section: got %v", err)
	}
}
