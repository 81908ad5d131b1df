package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"farplane.ai/internal/protocol"
	"farplane.ai/internal/render"
	"farplane.ai/internal/tile"
)

type client struct {
	conn    *websocket.Conn
	welcome protocol.WelcomeMsg
	seq     int
}

func handshake(conn *websocket.Conn, name string) (*client, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	if w.Type != protocol.TypeWelcome {
		return nil, fmt.Errorf("expected WELCOME, got %q", w.Type)
	}
	if w.TileSize != tile.Size {
		return nil, fmt.Errorf("server tile size %d, viewer built for %d", w.TileSize, tile.Size)
	}
	return &client{conn: conn, welcome: w}, nil
}

type fetchResult struct {
	tiles  []*tile.Data
	failed []protocol.TileErrMsg
	done   protocol.ReqDoneMsg
}

// fetch requests positions in batches the server accepts and collects every
// streamed tile until each batch's REQ_DONE.
func (c *client) fetch(positions []tile.Pos) (fetchResult, error) {
	var res fetchResult
	limit := c.welcome.MaxTilesPerRequest
	if limit <= 0 {
		limit = len(positions)
	}
	for start := 0; start < len(positions); start += limit {
		end := min(start+limit, len(positions))
		if err := c.fetchBatch(positions[start:end], &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *client) fetchBatch(batch []tile.Pos, res *fetchResult) error {
	c.seq++
	req := protocol.TileReqMsg{Type: protocol.TypeTileReq, ReqID: fmt.Sprintf("f%d", c.seq)}
	for _, p := range batch {
		req.Tiles = append(req.Tiles, protocol.RefOf(p))
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("send TILE_REQ: %w", err)
	}

	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if kind == websocket.BinaryMessage {
			d, err := tile.DecodeWire(msg)
			if err != nil {
				return fmt.Errorf("decode tile: %w", err)
			}
			res.tiles = append(res.tiles, d)
			continue
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			return err
		}
		switch base.Type {
		case protocol.TypeTileErr:
			var e protocol.TileErrMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				res.failed = append(res.failed, e)
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return fmt.Errorf("server error %s: %s", e.Code, e.Message)
		case protocol.TypeReqDone:
			var d protocol.ReqDoneMsg
			if err := json.Unmarshal(msg, &d); err != nil {
				return err
			}
			if d.ReqID != req.ReqID {
				continue
			}
			res.done.Sent += d.Sent
			res.done.Failed += d.Failed
			res.done.Pending += d.Pending
			return nil
		}
	}
}

// arena hands out synthetic GPU allocations so the assemblers see realistic
// offsets without a device.
type arena struct {
	vertexSize  int64
	indicesSize int64
	bakedSize   int64

	nextIndex, nextVertex, nextBaked int64
}

const quadsPerTile = tile.Size * tile.Size

func (a *arena) alloc() *render.Allocation {
	al := &render.Allocation{
		IndexOffset:  a.nextIndex,
		VertexOffset: a.nextVertex,
		IndexBytes:   quadsPerTile * 6 * a.indicesSize,
		Address:      a.nextBaked,
	}
	a.nextIndex += al.IndexBytes
	a.nextVertex += quadsPerTile * 4 * a.vertexSize
	a.nextBaked += a.bakedSize
	return al
}

// logUploader stands in for the GPU upload path.
type logUploader struct {
	log   *log.Logger
	total uint64
	last  map[int]int
}

func (u *logUploader) Upload(slot int, data []byte) error {
	if u.last == nil {
		u.last = map[int]int{}
	}
	u.last[slot] = len(data)
	u.total += uint64(len(data))
	if data == nil && u.log != nil {
		u.log.Printf("slot %d: nothing to draw", slot)
	}
	return nil
}

func (u *logUploader) summary() string {
	return fmt.Sprintf("draw=%s stitch=%s total=%s",
		humanize.Bytes(uint64(u.last[slotDraw])), humanize.Bytes(uint64(u.last[slotStitch])), humanize.Bytes(u.total))
}
