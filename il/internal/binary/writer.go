package binary

import (
	"encoding/binary"
	"math"
)

// Writer accumulates ILM binary output in memory.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes. The slice aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Byte writes a single byte.
func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes writes data without a length prefix.
func (w *Writer) WriteBytes(data []byte) { w.buf = append(w.buf, data...) }

// WriteBlob writes data prefixed by its LEB128 length.
func (w *Writer) WriteBlob(data []byte) {
	w.WriteU32(uint32(len(data)))
	w.WriteBytes(data)
}

// WriteName writes a length-prefixed UTF-8 string.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Section writes a section frame: id, LEB128 payload size, payload.
func (w *Writer) Section(id byte, payload *Writer) {
	w.Byte(id)
	w.WriteBlob(payload.buf)
}

// WriteU32 writes v as unsigned LEB128.
// Unsigned LEB128 and the uvarint encoding are the same byte sequence.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
}

// WriteS32 writes v as signed LEB128.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteS64 writes v as signed LEB128.
func (w *Writer) WriteS64(v int64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signClear := b&0x40 == 0
		if (v == 0 && signClear) || (v == -1 && !signClear) {
			w.buf = append(w.buf, b)
			return
		}
		w.buf = append(w.buf, b|0x80)
	}
}

// WriteU32LE writes v as four little-endian bytes. Tokens use this form.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteF32 writes the IEEE 754 bits of v, little-endian.
func (w *Writer) WriteF32(v float32) { w.WriteU32LE(math.Float32bits(v)) }

// WriteF64 writes the IEEE 754 bits of v, little-endian.
func (w *Writer) WriteF64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}
