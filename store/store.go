package store

import (
	"context"
	"time"

	"storemybottle-backend/models"
)

type VenueUpdate struct {
	Name      *string
	Address   *string
	UpdatedAt time.Time
}

type BottleUpdate struct {
	Brand         *string
	Type          *string
	Size          *string
	Price         *float64
	TotalVolumeML *int
	Active        *bool
	UpdatedAt     time.Time
}

// PurchaseFilter narrows ListPurchases; empty fields match everything.
type PurchaseFilter struct {
	UserID      string
	Status      string
	OldestFirst bool
}

type CatalogStore interface {
	ListVenues(ctx context.Context) ([]models.Venue, error)
	GetVenue(ctx context.Context, id string) (models.Venue, error)
	CreateVenue(ctx context.Context, venue models.Venue) (models.Venue, error)
	UpdateVenue(ctx context.Context, id string, input VenueUpdate) (models.Venue, error)
	DeleteVenue(ctx context.Context, id string) error
	ListBottles(ctx context.Context, venueID string, activeOnly bool) ([]models.Bottle, error)
	GetBottle(ctx context.Context, id string) (models.Bottle, error)
	CreateBottle(ctx context.Context, bottle models.Bottle) (models.Bottle, error)
	UpdateBottle(ctx context.Context, id string, input BottleUpdate) (models.Bottle, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	// UpsertUser inserts the user or, when it exists, overwrites its role
	// and any non-nil contact fields.
	UpsertUser(ctx context.Context, user models.User) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// LedgerStore holds purchases and redemptions. Every state transition is a
// single guarded statement evaluated by the database.
type LedgerStore interface {
	GetBottle(ctx context.Context, id string) (models.Bottle, error)
	CreatePurchase(ctx context.Context, purchase models.Purchase) (models.Purchase, error)
	GetPurchase(ctx context.Context, id string) (models.Purchase, error)
	ListPurchases(ctx context.Context, filter PurchaseFilter) ([]models.PurchaseDetail, error)
	// MarkPurchasePaid moves a pending purchase to paid and credits the
	// bottle's total volume. A purchase that is not pending yields
	// ErrInvalidState.
	MarkPurchasePaid(ctx context.Context, id string, at time.Time) (models.Purchase, error)
	// DecrementVolume subtracts amount only if at least amount remains,
	// otherwise ErrInsufficientVolume.
	DecrementVolume(ctx context.Context, id string, amount int, at time.Time) (models.Purchase, error)
	CreateRedemption(ctx context.Context, redemption models.Redemption) (models.Redemption, error)
	GetRedemptionByToken(ctx context.Context, token string) (models.Redemption, error)
	ListRedemptions(ctx context.Context, userID string) ([]models.Redemption, error)
	// ServeRedemption marks a pending, unexpired token served and decrements
	// the purchase in one transaction. Only the caller whose guarded update
	// wins sees a nil error.
	ServeRedemption(ctx context.Context, token, staffID string, at time.Time) (models.Redemption, models.Purchase, error)
	// ExpireRedemptions flips pending tokens with expires_at <= at to expired.
	ExpireRedemptions(ctx context.Context, at time.Time) (int64, error)
}

type Store interface {
	CatalogStore
	UserStore
	LedgerStore
	Stats(ctx context.Context) (models.DashboardStats, error)
	Ping(ctx context.Context) error
	Close()
}
