package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CatalogHandler struct {
	store store.CatalogStore
	now   func() time.Time
}

func NewCatalogHandler(st store.CatalogStore) *CatalogHandler {
	return &CatalogHandler{
		store: st,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (h *CatalogHandler) ListVenues(c *gin.Context) {
	venues, err := h.store.ListVenues(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, venues)
}

func (h *CatalogHandler) GetVenue(c *gin.Context) {
	venue, err := h.store.GetVenue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *CatalogHandler) CreateVenue(c *gin.Context) {
	var req models.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	now := h.now()
	venue, err := h.store.CreateVenue(c.Request.Context(), models.Venue{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	slog.InfoContext(c.Request.Context(), "venue created", slog.String("venue_id", venue.ID), slog.String("name", venue.Name))
	c.JSON(http.StatusCreated, venue)
}

func (h *CatalogHandler) UpdateVenue(c *gin.Context) {
	var req models.UpdateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	venue, err := h.store.UpdateVenue(c.Request.Context(), c.Param("id"), store.VenueUpdate{
		Name:      req.Name,
		Address:   req.Address,
		UpdatedAt: h.now(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, venue)
}

func (h *CatalogHandler) DeleteVenue(c *gin.Context) {
	if err := h.store.DeleteVenue(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListVenueBottles is the public menu: active bottles only.
func (h *CatalogHandler) ListVenueBottles(c *gin.Context) {
	ctx := c.Request.Context()
	venueID := c.Param("id")
	if _, err := h.store.GetVenue(ctx, venueID); err != nil {
		respondError(c, err)
		return
	}
	bottles, err := h.store.ListBottles(ctx, venueID, true)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottles)
}

func (h *CatalogHandler) ListBottles(c *gin.Context) {
	bottles, err := h.store.ListBottles(c.Request.Context(), c.Query("venue_id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottles)
}

func (h *CatalogHandler) GetBottle(c *gin.Context) {
	bottle, err := h.store.GetBottle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottle)
}

func (h *CatalogHandler) CreateBottle(c *gin.Context) {
	var req models.CreateBottleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := h.now()
	bottle, err := h.store.CreateBottle(c.Request.Context(), models.Bottle{
		ID:            uuid.NewString(),
		VenueID:       req.VenueID,
		Brand:         req.Brand,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		TotalVolumeML: req.TotalVolumeML,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	slog.InfoContext(c.Request.Context(), "bottle created",
		slog.String("bottle_id", bottle.ID),
		slog.String("venue_id", bottle.VenueID),
		slog.Int("total_volume_ml", bottle.TotalVolumeML),
	)
	c.JSON(http.StatusCreated, bottle)
}

func (h *CatalogHandler) UpdateBottle(c *gin.Context) {
	var req models.UpdateBottleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	bottle, err := h.store.UpdateBottle(c.Request.Context(), c.Param("id"), store.BottleUpdate{
		Brand:         req.Brand,
		Type:          req.Type,
		Size:          req.Size,
		Price:         req.Price,
		TotalVolumeML: req.TotalVolumeML,
		Active:        req.Active,
		UpdatedAt:     h.now(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottle)
}

// DeleteBottle deactivates the bottle. Purchases keep referencing it.
func (h *CatalogHandler) DeleteBottle(c *gin.Context) {
	inactive := false
	bottle, err := h.store.UpdateBottle(c.Request.Context(), c.Param("id"), store.BottleUpdate{
		Active:    &inactive,
		UpdatedAt: h.now(),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottle)
}
