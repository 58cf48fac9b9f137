package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Encoder and decoder are reused across calls. Both are safe for
// concurrent EncodeAll/DecodeAll.
var (
	codecOnce   sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	codecErr    error
)

func initCodec() {
	zstdEncoder, codecErr = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if codecErr != nil {
		return
	}
	zstdDecoder, codecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// compressBytecode compresses a program blob for the originals table.
func compressBytecode(data []byte) ([]byte, error) {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("zstd init: %w", codecErr)
	}
	return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// decompressBytecode reverses compressBytecode. size is the recorded
// uncompressed length and must match.
func decompressBytecode(data []byte, size int) ([]byte, error) {
	codecOnce.Do(initCodec)
	if codecErr != nil {
		return nil, fmt.Errorf("zstd init: %w", codecErr)
	}
	out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd decode: got %d bytes, want %d", len(out), size)
	}
	return out, nil
}

// toNanos stores a time as UTC nanoseconds. The zero time maps to 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromNanos reverses toNanos.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
