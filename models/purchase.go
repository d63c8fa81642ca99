package models

import (
	"time"
)

// Payment status constants
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

// Purchase is one customer's bottle acquisition and what is left in it
type Purchase struct {
	ID                string     `json:"id" db:"id"`
	UserID            string     `json:"user_id" db:"user_id"`
	BottleID          string     `json:"bottle_id" db:"bottle_id"`
	VenueID           string     `json:"venue_id" db:"venue_id"`
	PaymentStatus     string     `json:"payment_status" db:"payment_status"`
	RemainingVolumeML int        `json:"remaining_volume_ml" db:"remaining_volume_ml"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// PurchaseDetail joins a purchase with its bottle and venue for listings
type PurchaseDetail struct {
	Purchase
	BottleBrand   string `json:"bottle_brand"`
	BottleType    string `json:"bottle_type"`
	TotalVolumeML int    `json:"total_volume_ml"`
	VenueName     string `json:"venue_name"`
}

type CreatePurchaseRequest struct {
	BottleID string `json:"bottle_id" binding:"required"`
}
