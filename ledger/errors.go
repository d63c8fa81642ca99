package ledger

import "errors"

var (
	ErrForbidden      = errors.New("purchase does not belong to user")
	ErrInvalidPayload = errors.New("invalid qr payload")
	ErrInvalidPegSize = errors.New("invalid peg size")
	ErrInvalidAmount  = errors.New("amount must be positive")
)
