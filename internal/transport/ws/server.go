package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"farplane.ai/internal/persistence/codec"
	"farplane.ai/internal/protocol"
	"farplane.ai/internal/tile"
	"farplane.ai/internal/tilestore"
)

// TileSource is the part of the tile store the stream needs.
type TileSource interface {
	Get(pos tile.Pos) *tilestore.Future
}

type Options struct {
	MaxTilesPerRequest int
	WriteTimeout       time.Duration
	// SendQueue bounds frames buffered per session ahead of the socket.
	SendQueue int
	// TileTimeout bounds the wait for one tile; zero waits for the session.
	TileTimeout time.Duration
}

type Stats struct {
	SessionsActive int64  `json:"sessions_active"`
	SessionsTotal  uint64 `json:"sessions_total"`
	Requests       uint64 `json:"requests"`
	TilesSent      uint64 `json:"tiles_sent"`
	TileErrors     uint64 `json:"tile_errors"`
	Rejected       uint64 `json:"rejected"`
}

type Server struct {
	tiles TileSource
	log   *log.Logger
	opts  Options

	upgrader websocket.Upgrader

	active   atomic.Int64
	sessions atomic.Uint64
	requests atomic.Uint64
	sent     atomic.Uint64
	tileErrs atomic.Uint64
	rejected atomic.Uint64
}

func NewServer(src TileSource, logger *log.Logger, opts Options) *Server {
	if opts.MaxTilesPerRequest <= 0 {
		opts.MaxTilesPerRequest = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 512
	}
	return &Server{
		tiles: src,
		log:   logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Stats() Stats {
	return Stats{
		SessionsActive: s.active.Load(),
		SessionsTotal:  s.sessions.Load(),
		Requests:       s.requests.Load(),
		TilesSent:      s.sent.Load(),
		TileErrors:     s.tileErrs.Load(),
		Rejected:       s.rejected.Load(),
	}
}

type frame struct {
	kind int
	data []byte
}

// session is one connected client. Frames reach the socket only through out.
type session struct {
	id  string
	ctx context.Context
	out chan frame
}

func (ss *session) send(f frame) bool {
	select {
	case ss.out <- f:
		return true
	case <-ss.ctx.Done():
		return false
	}
}

func (ss *session) sendJSON(v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return ss.send(frame{kind: websocket.TextMessage, data: b})
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.active.Add(1)
		s.sessions.Add(1)
		defer s.active.Add(-1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		ss := &session{id: id, ctx: ctx, out: make(chan frame, s.opts.SendQueue)}

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case <-ctx.Done():
					return
				case f := <-ss.out:
					_ = conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
					if err := conn.WriteMessage(f.kind, f.data); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		var reqs sync.WaitGroup

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				s.reject(ss, "", protocol.ErrProtoBadRequest, "malformed json")
				continue
			}
			if base.Type != protocol.TypeTileReq {
				s.reject(ss, "", protocol.ErrProtoBadRequest, "unexpected message type "+base.Type)
				continue
			}
			req, err := protocol.DecodeTileReq(msg)
			if err != nil {
				s.reject(ss, "", protocol.ErrProtoBadRequest, err.Error())
				continue
			}
			if len(req.Tiles) > s.opts.MaxTilesPerRequest {
				s.reject(ss, req.ReqID, protocol.ErrTooManyTiles, "too many tiles in one request")
				continue
			}
			s.requests.Add(1)
			reqs.Add(1)
			go func() {
				defer reqs.Done()
				s.serve(ss, req)
			}()
		}

		reqs.Wait()
		<-writerDone
		s.logf("ws: session %s closed", id)
	}
}

func (s *Server) reject(ss *session, reqID, code, msg string) {
	s.rejected.Add(1)
	ss.sendJSON(protocol.ErrorMsg{Type: protocol.TypeError, ReqID: reqID, Code: code, Message: msg})
}

// serve schedules every tile of req up front, then streams them in request
// order as they resolve.
func (s *Server) serve(ss *session, req protocol.TileReqMsg) {
	futures := make([]*tilestore.Future, len(req.Tiles))
	for i, ref := range req.Tiles {
		futures[i] = s.tiles.Get(ref.Pos())
	}

	done := protocol.ReqDoneMsg{Type: protocol.TypeReqDone, ReqID: req.ReqID}
	for _, f := range futures {
		var (
			d   *tile.Data
			err error
		)
		if req.IfReady {
			d, err = f.Result()
			if errors.Is(err, tilestore.ErrPending) {
				done.Pending++
				continue
			}
		} else {
			d, err = s.wait(ss.ctx, f)
		}
		if ss.ctx.Err() != nil {
			return
		}
		if err != nil {
			done.Failed++
			s.tileErrs.Add(1)
			ss.sendJSON(protocol.TileErrMsg{
				Type:    protocol.TypeTileErr,
				ReqID:   req.ReqID,
				Tile:    protocol.RefOf(f.Pos()),
				Code:    errorCode(err),
				Message: err.Error(),
			})
			continue
		}
		buf := d.AppendWire(make([]byte, 0, tile.WireHeaderBytes+tile.BodyBytes))
		if !ss.send(frame{kind: websocket.BinaryMessage, data: buf}) {
			return
		}
		done.Sent++
		s.sent.Add(1)
	}
	ss.sendJSON(done)
}

func (s *Server) wait(ctx context.Context, f *tilestore.Future) (*tile.Data, error) {
	if s.opts.TileTimeout <= 0 {
		return f.Wait(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.TileTimeout)
	defer cancel()
	return f.Wait(ctx)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, tilestore.ErrGeneration):
		return protocol.ErrGeneration
	case errors.Is(err, tilestore.ErrClosed):
		return protocol.ErrClosed
	case errors.Is(err, context.DeadlineExceeded):
		return protocol.ErrTimeout
	default:
		return protocol.ErrInternal
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}

	id := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:               protocol.TypeWelcome,
		ProtocolVersion:    protocol.Version,
		SessionID:          id,
		TileSize:           tile.Size,
		StorageVersion:     codec.Version,
		MaxTilesPerRequest: s.opts.MaxTilesPerRequest,
	}
	if err := writeJSON(conn, welcome, s.opts.WriteTimeout); err != nil {
		return "", false
	}
	s.logf("ws: session %s opened client=%q remote=%s", id, hello.ClientName, conn.RemoteAddr())
	return id, true
}

func writeJSON(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
