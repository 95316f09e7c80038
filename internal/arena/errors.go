package arena

import "errors"

var (
	ErrLobbyFull         = errors.New("LOBBY_FULL: lobby is full or the match has started")
	ErrIncorrectPassword = errors.New("INCORRECT_PASSWORD: password does not match")
	ErrInvalidSeat       = errors.New("INVALID_SEAT: seat out of range")
	ErrSeatEmpty         = errors.New("SEAT_EMPTY: no player in seat")
	ErrCannotStartUp     = errors.New("CANNOT_START_UP: player already entered the match")
	ErrSparseID          = errors.New("SPARSE_ID: game object id would leave a gap")
	ErrWrongPhase        = errors.New("WRONG_PHASE: operation not allowed in this phase")
)
