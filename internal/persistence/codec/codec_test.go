package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
)

func sample(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7 % 13)
	}
	return b
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	raw := sample(4096)
	frame := Encode(raw)
	if got := int32(binary.BigEndian.Uint32(frame[0:])); got != Version {
		t.Fatalf("version tag=%d want %d", got, Version)
	}
	if got := binary.BigEndian.Uint32(frame[4:]); got != uint32(len(raw)) {
		t.Fatalf("length=%d want %d", got, len(raw))
	}
	out, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatalf("round trip mismatch")
	}
}

func TestEncode_Deterministic(t *testing.T) {
	raw := sample(1024)
	if !bytes.Equal(Encode(raw), Encode(raw)) {
		t.Fatalf("encode not deterministic")
	}
}

func TestDecode_Truncated(t *testing.T) {
	if _, err := Decode([]byte{0, 0, 0}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v want ErrTruncated", err)
	}
}

func TestDecode_WrongVersion(t *testing.T) {
	frame := Encode(sample(64))
	binary.BigEndian.PutUint32(frame[0:], uint32(Version+1))
	_, err := Decode(frame)
	if !errors.Is(err, ErrVersion) {
		t.Fatalf("err=%v want ErrVersion", err)
	}
	if !IsMiss(err) {
		t.Fatalf("version mismatch should be a miss")
	}
}

func TestDecode_TruncatedPayload(t *testing.T) {
	frame := Encode(sample(4096))
	_, err := Decode(frame[:len(frame)-5])
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err=%v want ErrCorrupt", err)
	}
}

func TestDecode_LengthMismatch(t *testing.T) {
	frame := Encode(sample(256))
	binary.BigEndian.PutUint32(frame[4:], 300)
	if _, err := Decode(frame); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err=%v want ErrCorrupt", err)
	}
}

func TestEncodeDecode_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := sample(512 + i*100)
			for n := 0; n < 20; n++ {
				out, err := Decode(Encode(raw))
				if err != nil || !bytes.Equal(out, raw) {
					t.Errorf("worker %d: round trip failed: %v", i, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}
