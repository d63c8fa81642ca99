package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every per-entity not-found error.
var ErrNotFound = errors.New("not found")

var (
	ErrVenueNotFound      = fmt.Errorf("venue %w", ErrNotFound)
	ErrBottleNotFound     = fmt.Errorf("bottle %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrPurchaseNotFound   = fmt.Errorf("purchase %w", ErrNotFound)
	ErrRedemptionNotFound = fmt.Errorf("redemption %w", ErrNotFound)
	ErrVenueInUse         = errors.New("venue still has bottles")
	ErrVolumeInUse        = errors.New("paid purchases hold more than the new bottle volume")
	ErrInvalidState       = errors.New("invalid state for this transition")
	ErrInsufficientVolume = errors.New("insufficient remaining volume")
	ErrAlreadyResolved    = errors.New("redemption already resolved")
	ErrExpired            = errors.New("redemption expired")
)
