package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Seats.
	ErrUnknownPlayer = "E_UNKNOWN_PLAYER"
	ErrSeatTaken     = "E_SEAT_TAKEN"
	ErrUnauthorized  = "E_UNAUTHORIZED"

	// Turn layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidAction = "E_INVALID_ACTION"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnknownPlayer:   {},
	ErrSeatTaken:       {},
	ErrUnauthorized:    {},
	ErrBadRequest:      {},
	ErrInvalidAction:   {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
