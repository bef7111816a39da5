package asset

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Format selects the compressed container written by Encode.
type Format int

const (
	// FormatZlib is a 4-byte little-endian uncompressed size followed by a zlib stream.
	FormatZlib Format = iota
	// FormatZstd is a bare zstd frame.
	FormatZstd
)

var ErrCorrupt = errors.New("corrupt asset container")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Upper bound on a declared uncompressed size. Tiles are ~40 KiB.
const maxDecodedSize = 64 << 20

// Shared coders: DecodeAll/EncodeAll are safe for concurrent use. The
// decoder enforces the same output bound as the zlib path.
var (
	zstdDec, _ = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
)

// Decode unwraps a compressed container, detecting zstd by its magic.
func Decode(raw []byte) ([]byte, error) {
	if bytes.HasPrefix(raw, zstdMagic) {
		out, err := zstdDec.DecodeAll(raw, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) {
			return nil, fmt.Errorf("%w: zstd frame over %d bytes", ErrCorrupt, maxDecodedSize)
		}
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	}

	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(raw))
	}
	size := binary.LittleEndian.Uint32(raw)
	if size > maxDecodedSize {
		return nil, fmt.Errorf("%w: declared size %d", ErrCorrupt, size)
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw[4:]))
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("zlib: inflate %d bytes: %w", size, err)
	}
	return out, nil
}

// Encode wraps payload in the given container format.
func Encode(payload []byte, f Format) ([]byte, error) {
	switch f {
	case FormatZstd:
		return zstdEnc.EncodeAll(payload, nil), nil
	case FormatZlib:
		var buf bytes.Buffer
		var size [4]byte
		binary.LittleEndian.PutUint32(size[:], uint32(len(payload)))
		buf.Write(size[:])

		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown container format %d", f)
	}
}

// ParseFormat maps a config/flag name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "zlib", "":
		return FormatZlib, nil
	case "zstd":
		return FormatZstd, nil
	}
	return 0, fmt.Errorf("unknown container format %q", name)
}
