package game

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Validation Kind = iota + 1
	Rule
	Lifecycle
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Rule:
		return "rule"
	case Lifecycle:
		return "lifecycle"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Error is a rejected request. Code is the identifier sent to clients.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newErr(k Kind, code, msg string) *Error { return &Error{Kind: k, Code: code, msg: msg} }

var (
	ErrInvalidPayload     = newErr(Validation, "INVALID_PAYLOAD", "invalid payload")
	ErrInvalidPlayerName  = newErr(Validation, "INVALID_PLAYER_NAME", "invalid player name")
	ErrInvalidPlayerCount = newErr(Validation, "INVALID_PLAYER_COUNT", "invalid player count")
	ErrInvalidRoomCode    = newErr(Validation, "INVALID_ROOM_CODE", "invalid room code")
	ErrInvalidRejoinData  = newErr(Validation, "INVALID_REJOIN_DATA", "invalid rejoin data")
	ErrUnknownMessage     = newErr(Validation, "UNKNOWN_MESSAGE", "unknown message type")
	ErrNotYourTurn        = newErr(Validation, "NOT_YOUR_TURN", "not your turn")
	ErrDuplicateIndices   = newErr(Validation, "DUPLICATE_INDICES", "duplicate card indices")
	ErrIndexOutOfRange    = newErr(Validation, "INDEX_OUT_OF_RANGE", "card index out of range")
	ErrTooManyDownCards   = newErr(Validation, "TOO_MANY_DOWN_CARDS", "only one down card may be played")
	ErrMixedRanks         = newErr(Validation, "MIXED_RANKS", "cards must share one rank")
	ErrWrongZone          = newErr(Validation, "WRONG_ZONE", "cards must be played from the current zone")
	ErrNotInRoom          = newErr(Validation, "NOT_IN_ROOM", "not in a room")

	ErrInvalidPlay      = newErr(Rule, "INVALID_PLAY", "that play does not beat the pile")
	ErrValidPlayExists  = newErr(Rule, "VALID_PLAY_EXISTS", "a valid play exists")
	ErrMustPlayDownCard = newErr(Rule, "MUST_PLAY_DOWN_CARD", "must play a down card")

	ErrRoomNotFound         = newErr(Lifecycle, "ROOM_NOT_FOUND", "room not found")
	ErrGameFull             = newErr(Lifecycle, "GAME_FULL", "game is full")
	ErrGameStarted          = newErr(Lifecycle, "GAME_ALREADY_STARTED", "game already started")
	ErrDuplicateJoin        = newErr(Lifecycle, "DUPLICATE_JOIN", "player already joined")
	ErrAlreadyInRoom        = newErr(Lifecycle, "ALREADY_IN_ROOM", "connection already in a room")
	ErrStarting             = newErr(Lifecycle, "STARTING", "game is starting")
	ErrNotHost              = newErr(Lifecycle, "NOT_HOST", "only the host can start the game")
	ErrNotInProgress        = newErr(Lifecycle, "NOT_IN_PROGRESS", "game is not in progress")
	ErrTurnInProgress       = newErr(Lifecycle, "TURN_IN_PROGRESS", "turn transition in progress")
	ErrPlayerNotFound       = newErr(Lifecycle, "PLAYER_NOT_FOUND", "player not found")
	ErrInvalidRoomForRejoin = newErr(Lifecycle, "INVALID_ROOM_FOR_REJOIN", "room does not match")

	ErrSessionEnded = newErr(Fatal, "SESSION_ENDED", "game session ended")
)

// CodeOf returns the client code of err, INTERNAL when it carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// KindOf returns the category of err, zero when it carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func wrapf(err *Error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{err}, args...)...)
}
