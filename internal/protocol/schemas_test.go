package protocol_test

import (
	"testing"

	"farplane.ai/internal/protocol"
	"farplane.ai/internal/tile"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	hello := []byte(`{"type":"HELLO","protocol_version":"1.0","client_name":"viewer"}`)
	if err := protocol.Validate(protocol.TypeHello, hello); err != nil {
		t.Fatalf("hello: %v", err)
	}

	req := []byte(`{
	  "type":"TILE_REQ",
	  "req_id":"r1",
	  "if_ready":true,
	  "tiles":[{"x":-22,"z":-14,"level":0},{"x":3,"z":5,"level":4}]
	}`)
	m, err := protocol.DecodeTileReq(req)
	if err != nil {
		t.Fatalf("tile req: %v", err)
	}
	if m.ReqID != "r1" || !m.IfReady || len(m.Tiles) != 2 {
		t.Fatalf("decoded=%+v", m)
	}
	if m.Tiles[0].Pos() != (tile.Pos{X: -22, Z: -14}) {
		t.Fatalf("pos=%v", m.Tiles[0].Pos())
	}
}

func TestSchemas_RejectInvalid(t *testing.T) {
	cases := map[string][]byte{
		"empty tiles":      []byte(`{"type":"TILE_REQ","req_id":"r","tiles":[]}`),
		"negative level":   []byte(`{"type":"TILE_REQ","req_id":"r","tiles":[{"x":0,"z":0,"level":-1}]}`),
		"fractional x":     []byte(`{"type":"TILE_REQ","req_id":"r","tiles":[{"x":0.5,"z":0,"level":0}]}`),
		"x beyond int32":   []byte(`{"type":"TILE_REQ","req_id":"r","tiles":[{"x":4294967296,"z":0,"level":0}]}`),
		"missing req_id":   []byte(`{"type":"TILE_REQ","tiles":[{"x":0,"z":0,"level":0}]}`),
		"unknown field":    []byte(`{"type":"TILE_REQ","req_id":"r","tiles":[{"x":0,"z":0,"level":0}],"extra":1}`),
		"wrong type const": []byte(`{"type":"HELLO","req_id":"r","tiles":[{"x":0,"z":0,"level":0}]}`),
	}
	for name, raw := range cases {
		if _, err := protocol.DecodeTileReq(raw); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}

	if _, err := protocol.DecodeHello([]byte(`{"type":"HELLO","protocol_version":"one","client_name":"x"}`)); err == nil {
		t.Fatalf("expected bad version rejected")
	}
	if err := protocol.Validate("NOPE", []byte(`{}`)); err == nil {
		t.Fatalf("expected unknown type rejected")
	}
}

func TestDecodeBase(t *testing.T) {
	b, err := protocol.DecodeBase([]byte(`{"type":"TILE_REQ","protocol_version":"1.0"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b.Type != protocol.TypeTileReq || b.ProtocolVersion != protocol.Version {
		t.Fatalf("base=%+v", b)
	}
}
