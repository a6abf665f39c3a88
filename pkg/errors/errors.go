package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindProtocol    Kind = "protocol"
	KindAuth        Kind = "auth"
	KindCommand     Kind = "command"
	KindGame        Kind = "game"
	KindConcurrency Kind = "concurrency"
	KindInternal    Kind = "internal"
)

// AppError carries a stable wire code. Two AppErrors match under errors.Is
// when their codes are equal, so wrapped copies with a custom message still
// compare against the sentinels below.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy with a caller-specific message.
func (e *AppError) WithMessage(format string, args ...interface{}) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newErr(kind Kind, code, msg string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: msg}
}

// Protocol
var (
	ErrInvalidEnvelope    = newErr(KindProtocol, "INVALID_ENVELOPE", "malformed envelope")
	ErrUnsupportedVersion = newErr(KindProtocol, "UNSUPPORTED_VERSION", "no mutually supported protocol version")
	ErrFrameTooLarge      = newErr(KindProtocol, "FRAME_TOO_LARGE", "frame exceeds size limit")
	ErrHelloRequired      = newErr(KindProtocol, "HELLO_REQUIRED", "hello must be the first message")
)

// Auth
var (
	ErrAuthRequired = newErr(KindAuth, "auth_required", "authentication required")
	ErrAuthInvalid  = newErr(KindAuth, "auth_invalid", "invalid or expired token")
)

// Command
var (
	ErrInvalidCommand   = newErr(KindCommand, "INVALID_COMMAND", "invalid command")
	ErrInvalidRequestID = newErr(KindCommand, "invalid_request_id", "requestId is required")
)

// Game
var (
	ErrIllegalAction     = newErr(KindGame, "illegal_action", "action not legal in current state")
	ErrNotYourTurn       = newErr(KindGame, "not_your_turn", "it is not your turn")
	ErrTableFull         = newErr(KindGame, "table_full", "table is full")
	ErrInsufficientStack = newErr(KindGame, "insufficient_stack", "insufficient chips")
	ErrTableNotFound     = newErr(KindGame, "table_not_found", "table not found")
	ErrTableClosed       = newErr(KindGame, "table_closed", "table is closed")
	ErrSeatTaken         = newErr(KindGame, "seat_taken", "seat is occupied")
	ErrNotSeated         = newErr(KindGame, "not_seated", "caller has no seat at this table")
	ErrAlreadySeated     = newErr(KindGame, "already_seated", "caller is already seated at this table")
	ErrHandInProgress    = newErr(KindGame, "hand_in_progress", "a hand is in progress")
	ErrNotEnoughPlayers  = newErr(KindGame, "not_enough_players", "at least two active seats are required")
)

// Concurrency
var (
	ErrVersionConflict = newErr(KindConcurrency, "version_conflict", "table version changed")
)

var ErrInternal = newErr(KindInternal, "internal_error", "internal error")

// As extracts the AppError from err, falling back to ErrInternal.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

var byCode = map[string]*AppError{}

func init() {
	for _, e := range []*AppError{
		ErrInvalidEnvelope, ErrUnsupportedVersion, ErrFrameTooLarge, ErrHelloRequired,
		ErrAuthRequired, ErrAuthInvalid,
		ErrInvalidCommand, ErrInvalidRequestID,
		ErrIllegalAction, ErrNotYourTurn, ErrTableFull, ErrInsufficientStack, ErrTableNotFound,
		ErrTableClosed, ErrSeatTaken, ErrNotSeated, ErrAlreadySeated, ErrHandInProgress, ErrNotEnoughPlayers,
		ErrVersionConflict, ErrInternal,
	} {
		byCode[e.Code] = e
	}
}

// FromCode rebuilds an AppError from a stored code and message. Unknown
// codes map to ErrInternal.
func FromCode(code, msg string) *AppError {
	base, ok := byCode[code]
	if !ok {
		return ErrInternal
	}
	if msg == "" {
		return base
	}
	return &AppError{Kind: base.Kind, Code: base.Code, Message: msg}
}
