package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"farplane.ai/internal/protocol"
	"farplane.ai/internal/tile"
	"farplane.ai/internal/tilestore"
)

func testStore(t *testing.T) *tilestore.Store {
	t.Helper()
	gen := tilestore.GeneratorFunc(func(_ context.Context, pos tile.Pos, out *tile.Writer) error {
		if pos.Level == 7 {
			return errors.New("no terrain at level 7")
		}
		out.Fill(func(x, z int) tile.Column {
			return tile.Column{Height: pos.X + int32(x), Block: uint32(z), Biome: uint8(pos.Level)}
		})
		return nil
	})
	s, err := tilestore.New(tilestore.Config{Root: t.TempDir(), Generator: gen})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func hello(t *testing.T, conn *websocket.Conn) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "test"}); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if w.Type != protocol.TypeWelcome || w.SessionID == "" || w.TileSize != tile.Size {
		t.Fatalf("welcome=%+v", w)
	}
	return w
}

func TestServer_StreamsRequestedTiles(t *testing.T) {
	store := testStore(t)
	s := NewServer(store, nil, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	hello(t, conn)

	req := protocol.TileReqMsg{
		Type:  protocol.TypeTileReq,
		ReqID: "r1",
		Tiles: []protocol.TileRef{{X: -22, Z: -14, Level: 0}, {X: 1, Z: 2, Level: 7}, {X: 3, Z: 5, Level: 2}},
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("send req: %v", err)
	}

	var got []*tile.Data
	var tileErr protocol.TileErrMsg
	var done protocol.ReqDoneMsg
	for done.Type == "" {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if kind == websocket.BinaryMessage {
			d, err := tile.DecodeWire(msg)
			if err != nil {
				t.Fatalf("decode wire: %v", err)
			}
			got = append(got, d)
			continue
		}
		base, _ := protocol.DecodeBase(msg)
		switch base.Type {
		case protocol.TypeTileErr:
			_ = json.Unmarshal(msg, &tileErr)
		case protocol.TypeReqDone:
			_ = json.Unmarshal(msg, &done)
		default:
			t.Fatalf("unexpected message %s", msg)
		}
	}

	if done.Sent != 2 || done.Failed != 1 || done.ReqID != "r1" {
		t.Fatalf("done=%+v", done)
	}
	if tileErr.Code != protocol.ErrGeneration || tileErr.Tile.Level != 7 {
		t.Fatalf("tile err=%+v", tileErr)
	}
	if len(got) != 2 || got[0].Pos != (tile.Pos{X: -22, Z: -14}) || got[1].Pos != (tile.Pos{X: 3, Z: 5, Level: 2}) {
		t.Fatalf("tiles out of order: %v", got)
	}
	for _, d := range got {
		want, ok := store.Resident(d.Pos)
		if !ok {
			t.Fatalf("%v not resident", d.Pos)
		}
		if want.Digest() != d.Digest() {
			t.Fatalf("%v: streamed tile differs from store", d.Pos)
		}
	}
	if st := s.Stats(); st.TilesSent != 2 || st.TileErrors != 1 || st.Requests != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestServer_RejectsOversizedRequest(t *testing.T) {
	s := NewServer(testStore(t), nil, Options{MaxTilesPerRequest: 1})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	if w := hello(t, conn); w.MaxTilesPerRequest != 1 {
		t.Fatalf("max tiles=%d", w.MaxTilesPerRequest)
	}
	_ = conn.WriteJSON(protocol.TileReqMsg{
		Type:  protocol.TypeTileReq,
		ReqID: "big",
		Tiles: []protocol.TileRef{{X: 0}, {X: 1}},
	})
	var e protocol.ErrorMsg
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Type != protocol.TypeError || e.Code != protocol.ErrTooManyTiles || e.ReqID != "big" {
		t.Fatalf("error=%+v", e)
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"TILE_REQ","req_id":"x","tiles":[{"x":0,"z":0,"level":-3}]}`))
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("error=%+v", e)
	}
}

func TestServer_RequiresHello(t *testing.T) {
	s := NewServer(testStore(t), nil, Options{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn := dial(t, srv)
	_ = conn.WriteJSON(protocol.TileReqMsg{Type: protocol.TypeTileReq, ReqID: "r", Tiles: []protocol.TileRef{{}}})
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v want policy violation close", err)
	}
}
