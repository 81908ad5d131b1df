package protocol

import "farplane.ai/internal/tile"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type               string `json:"type"`
	ProtocolVersion    string `json:"protocol_version"`
	SessionID          string `json:"session_id"`
	TileSize           int    `json:"tile_size"`
	StorageVersion     int32  `json:"storage_version"`
	MaxTilesPerRequest int    `json:"max_tiles_per_request"`
}

type TileRef struct {
	X     int32 `json:"x"`
	Z     int32 `json:"z"`
	Level int32 `json:"level"`
}

func (r TileRef) Pos() tile.Pos { return tile.Pos{X: r.X, Z: r.Z, Level: r.Level} }

func RefOf(p tile.Pos) TileRef { return TileRef{X: p.X, Z: p.Z, Level: p.Level} }

// TILE_REQ (client -> server). Each resolved tile comes back as one binary
// frame; a tile that cannot be produced is reported with TILE_ERR.
type TileReqMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version,omitempty"`
	ReqID           string    `json:"req_id"`
	Tiles           []TileRef `json:"tiles"`
	// IfReady asks only for tiles already resident; misses are scheduled but
	// not waited for.
	IfReady bool `json:"if_ready,omitempty"`
}

// TILE_ERR (server -> client)
type TileErrMsg struct {
	Type    string  `json:"type"`
	ReqID   string  `json:"req_id"`
	Tile    TileRef `json:"tile"`
	Code    string  `json:"code"`
	Message string  `json:"message,omitempty"`
}

// REQ_DONE (server -> client) closes out one TILE_REQ.
type ReqDoneMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Pending int    `json:"pending"`
}

// ERROR (server -> client) for malformed or rejected messages.
type ErrorMsg struct {
	Type    string `json:"type"`
	ReqID   string `json:"req_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
