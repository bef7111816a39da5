package data

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

var ErrShortRead = errors.New("short read")

// ParseEncoding maps a code page name to a text encoding. An empty name or
// "utf-8" returns nil, meaning bytes are taken as-is.
func ParseEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(name) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "cp949", "euc-kr":
		return korean.EUCKR, nil
	case "ms950", "big5":
		return traditionalchinese.Big5, nil
	case "gbk", "cp936":
		return simplifiedchinese.GBK, nil
	case "shift_jis", "cp932":
		return japanese.ShiftJIS, nil
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// Reader decodes little-endian asset payloads. The first out-of-range read
// sets a sticky ErrShortRead and every later read returns zero values, so a
// parser can read a whole record and check Err once.
type Reader struct {
	data []byte
	off  int
	err  error
	enc  encoding.Encoding
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// WithEncoding sets the code page used by String.
func (r *Reader) WithEncoding(enc encoding.Encoding) *Reader {
	r.enc = enc
	return r
}

func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortRead, n, r.off, len(r.data))
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) I32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(b))
}

func (r *Reader) F32() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func (r *Reader) Vec2() mgl32.Vec2 {
	return mgl32.Vec2{r.F32(), r.F32()}
}

func (r *Reader) Vec3() mgl32.Vec3 {
	return mgl32.Vec3{r.F32(), r.F32(), r.F32()}
}

// Bytes reads n raw bytes. The result aliases the payload.
func (r *Reader) Bytes(n int) []byte {
	return r.take(n)
}

// String reads n bytes in the reader's code page and returns UTF-8.
// Trailing NULs are dropped.
func (r *Reader) String(n int) string {
	raw := r.take(n)
	for len(raw) > 0 && raw[len(raw)-1] == 0 {
		raw = raw[:len(raw)-1]
	}
	return decodeString(raw, r.enc)
}

func decodeString(raw []byte, enc encoding.Encoding) string {
	if len(raw) == 0 {
		return ""
	}
	// ASCII passes through unchanged
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII || enc == nil {
		return string(raw)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// Writer builds little-endian asset payloads. Used by tools and tests.
type Writer struct {
	buf []byte
	enc encoding.Encoding
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// WithEncoding sets the code page used by String.
func (w *Writer) WithEncoding(enc encoding.Encoding) *Writer {
	w.enc = enc
	return w
}

func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *Writer) I32(v int32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) F32(v float32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *Writer) Vec2(v mgl32.Vec2) {
	w.F32(v[0])
	w.F32(v[1])
}

func (w *Writer) Vec3(v mgl32.Vec3) {
	w.F32(v[0])
	w.F32(v[1])
	w.F32(v[2])
}

func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// String encodes s in the writer's code page and returns the number of
// bytes written, without any length prefix.
func (w *Writer) String(s string) int {
	raw := []byte(s)
	if w.enc != nil {
		if encoded, err := w.enc.NewEncoder().Bytes(raw); err == nil {
			raw = encoded
		}
	}
	w.buf = append(w.buf, raw...)
	return len(raw)
}

// EncodedLen returns the byte length String would write for s.
func (w *Writer) EncodedLen(s string) int {
	if w.enc == nil {
		return len(s)
	}
	encoded, err := w.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return len(s)
	}
	return len(encoded)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}
