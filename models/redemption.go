package models

import (
	"time"
)

// Redemption status constants
const (
	RedemptionPending = "pending"
	RedemptionServed  = "served"
	RedemptionExpired = "expired"
)

// Redemption is a single-use, time-boxed claim for one peg against a purchase
type Redemption struct {
	ID          string     `json:"id" db:"id"`
	PurchaseID  string     `json:"purchase_id" db:"purchase_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	PegVolumeML int        `json:"peg_volume_ml" db:"peg_volume_ml"`
	Token       string     `json:"token" db:"token"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ServedAt    *time.Time `json:"served_at,omitempty" db:"served_at"`
	ServedBy    *string    `json:"served_by,omitempty" db:"served_by"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
}

type RequestRedemptionRequest struct {
	PurchaseID  string `json:"purchase_id" binding:"required"`
	PegVolumeML int    `json:"peg_volume_ml" binding:"required"`
}

type ScanRedemptionRequest struct {
	QRData string `json:"qr_data" binding:"required"`
}

// DashboardStats is the admin overview
type DashboardStats struct {
	Users       int64 `json:"users"`
	Venues      int64 `json:"venues"`
	Bottles     int64 `json:"bottles"`
	Purchases   int64 `json:"purchases"`
	Paid        int64 `json:"paid_purchases"`
	Redemptions int64 `json:"redemptions"`
	Served      int64 `json:"served_redemptions"`
}
