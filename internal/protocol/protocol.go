package protocol

import "encoding/json"

const Version = "1.0"

// Message types. Tiles themselves travel as binary frames in the tile wire
// layout; everything else is JSON text.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeTileReq = "TILE_REQ"
	TypeTileErr = "TILE_ERR"
	TypeReqDone = "REQ_DONE"
	TypeError   = "ERROR"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
