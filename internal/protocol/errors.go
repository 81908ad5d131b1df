package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Tile requests.
	ErrTooManyTiles = "E_TOO_MANY_TILES"
	ErrGeneration   = "E_GENERATION"
	ErrClosed       = "E_CLOSED"
	ErrTimeout      = "E_TIMEOUT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrTooManyTiles:    {},
	ErrGeneration:      {},
	ErrClosed:          {},
	ErrTimeout:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
