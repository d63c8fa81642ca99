package models

import (
	"time"
)

// Venue is a bar or lounge that stores bottles for its customers
type Venue struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Address   string    `json:"address" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateVenueRequest struct {
	Name    string `json:"name" binding:"required"`
	Address string `json:"address"`
}

type UpdateVenueRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
}
