package models

import (
	"time"
)

// Bottle is a catalog entry a customer can buy at a venue
type Bottle struct {
	ID            string    `json:"id" db:"id"`
	VenueID       string    `json:"venue_id" db:"venue_id"`
	Brand         string    `json:"brand" db:"brand"`
	Type          string    `json:"type" db:"type"`
	Size          string    `json:"size" db:"size"`
	Price         float64   `json:"price" db:"price"`
	TotalVolumeML int       `json:"total_volume_ml" db:"total_volume_ml"`
	Active        bool      `json:"active" db:"active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type CreateBottleRequest struct {
	VenueID       string  `json:"venue_id" binding:"required"`
	Brand         string  `json:"brand" binding:"required"`
	Type          string  `json:"type"`
	Size          string  `json:"size"`
	Price         float64 `json:"price" binding:"gte=0"`
	TotalVolumeML int     `json:"total_volume_ml" binding:"required,gt=0"`
	Active        *bool   `json:"active"`
}

// UpdateBottleRequest carries an admin edit; nil fields are left unchanged
type UpdateBottleRequest struct {
	Brand         *string  `json:"brand"`
	Type          *string  `json:"type"`
	Size          *string  `json:"size"`
	Price         *float64 `json:"price" binding:"omitempty,gte=0"`
	TotalVolumeML *int     `json:"total_volume_ml" binding:"omitempty,gt=0"`
	Active        *bool    `json:"active"`
}
