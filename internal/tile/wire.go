package tile

import (
	"encoding/binary"
	"fmt"
)

// WireHeaderBytes is the position header (x, z, level) that precedes the body
// when a tile is sent to a remote consumer.
const WireHeaderBytes = 12

func (d *Data) AppendWire(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(d.Pos.X))
	dst = binary.BigEndian.AppendUint32(dst, uint32(d.Pos.Z))
	dst = binary.BigEndian.AppendUint32(dst, uint32(d.Pos.Level))
	return d.AppendBody(dst)
}

func DecodeWire(b []byte) (*Data, error) {
	if len(b) != WireHeaderBytes+BodyBytes {
		return nil, fmt.Errorf("tile wire length mismatch: got %d want %d", len(b), WireHeaderBytes+BodyBytes)
	}
	pos := Pos{
		X:     int32(binary.BigEndian.Uint32(b[0:])),
		Z:     int32(binary.BigEndian.Uint32(b[4:])),
		Level: int32(binary.BigEndian.Uint32(b[8:])),
	}
	if pos.Level < 0 {
		return nil, fmt.Errorf("tile wire: negative level %d", pos.Level)
	}
	d := New(pos)
	if err := d.ReadBody(b[WireHeaderBytes:]); err != nil {
		return nil, err
	}
	return d, nil
}
