package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Version is the storage version tag written at the start of every frame.
const Version int32 = 1

const HeaderBytes = 8

// Upper bound on a single decoded payload.
const maxDecodedBytes = 64 << 20

var (
	ErrTruncated = errors.New("codec: frame truncated")
	ErrVersion   = errors.New("codec: storage version mismatch")
	ErrCorrupt   = errors.New("codec: corrupt payload")
)

var encoders = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedFastest),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd writer: %v", err))
		}
		return enc
	},
}

var decoders = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecodedBytes),
		)
		if err != nil {
			panic(fmt.Sprintf("zstd reader: %v", err))
		}
		return dec
	},
}

// Encode frames raw as [version][len(raw)][zstd(raw)].
func Encode(raw []byte) []byte {
	enc := encoders.Get().(*zstd.Encoder)
	defer encoders.Put(enc)

	out := make([]byte, HeaderBytes, HeaderBytes+len(raw)/2+64)
	binary.BigEndian.PutUint32(out[0:], uint32(Version))
	binary.BigEndian.PutUint32(out[4:], uint32(len(raw)))
	return enc.EncodeAll(raw, out)
}

// Decode validates the frame header and returns the decompressed payload,
// which is exactly the length recorded in the header.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < HeaderBytes {
		return nil, ErrTruncated
	}
	if v := int32(binary.BigEndian.Uint32(frame[0:])); v != Version {
		return nil, fmt.Errorf("%w: got %d want %d", ErrVersion, v, Version)
	}
	n := int32(binary.BigEndian.Uint32(frame[4:]))
	if n < 0 || n > maxDecodedBytes {
		return nil, fmt.Errorf("%w: bad length %d", ErrCorrupt, n)
	}

	dec := decoders.Get().(*zstd.Decoder)
	defer decoders.Put(dec)

	out, err := dec.DecodeAll(frame[HeaderBytes:], make([]byte, 0, n))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out) != int(n) {
		return nil, fmt.Errorf("%w: decoded %d bytes want %d", ErrCorrupt, len(out), n)
	}
	return out, nil
}

// IsMiss reports whether err means "no usable cached data" rather than an I/O failure.
func IsMiss(err error) bool {
	return errors.Is(err, ErrTruncated) || errors.Is(err, ErrVersion) || errors.Is(err, ErrCorrupt)
}
