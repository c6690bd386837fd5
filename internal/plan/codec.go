package plan

import (
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Codec names the compression applied to a stored plan.
type Codec string

const (
	CodecNone   Codec = "none"
	CodecSnappy Codec = "snappy"
	CodecZstd   Codec = "zstd"
)

// ParseCodec returns the codec called name. An empty name selects snappy.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(name); c {
	case "":
		return CodecSnappy, nil
	case CodecNone, CodecSnappy, CodecZstd:
		return c, nil
	default:
		return "", fmt.Errorf("plan: unknown codec %q (must be none, snappy, or zstd)", name)
	}
}

// Extension returns the object name suffix for the codec.
func (c Codec) Extension() string {
	switch c {
	case CodecSnappy:
		return ".snappy"
	case CodecZstd:
		return ".zst"
	default:
		return ""
	}
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCoders() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Compress encodes data with c.
func (c Codec) Compress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecZstd:
		enc, _, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("plan: create zstd encoder: %w", err)
		}
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("plan: unknown codec %q", c)
	}
}

// Decompress decodes data written with c.
func (c Codec) Decompress(data []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return data, nil
	case CodecSnappy:
		raw, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("plan: snappy decompress: %w", err)
		}
		return raw, nil
	case CodecZstd:
		_, dec, err := zstdCoders()
		if err != nil {
			return nil, fmt.Errorf("plan: create zstd decoder: %w", err)
		}
		raw, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("plan: zstd decompress: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("plan: unknown codec %q", c)
	}
}
