package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"storemybottle-backend/ledger"
	"storemybottle-backend/models"

	"github.com/gin-gonic/gin"
)

type AdminStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	Stats(ctx context.Context) (models.DashboardStats, error)
}

type AdminHandler struct {
	store       AdminStore
	users       UserDirectory
	purchases   *ledger.Purchases
	redemptions *ledger.Redemptions
}

func NewAdminHandler(st AdminStore, users UserDirectory, purchases *ledger.Purchases, redemptions *ledger.Redemptions) *AdminHandler {
	return &AdminHandler{
		store:       st,
		users:       users,
		purchases:   purchases,
		redemptions: redemptions,
	}
}

func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *AdminHandler) ListPurchases(c *gin.Context) {
	purchases, err := h.purchases.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchases)
}

func (h *AdminHandler) ListRedemptions(c *gin.Context) {
	redemptions, err := h.redemptions.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, redemptions)
}

func (h *AdminHandler) UpdateUserRole(c *gin.Context) {
	var req models.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.SetRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	slog.InfoContext(c.Request.Context(), "role updated by admin",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
		slog.String("admin_id", currentUserID(c)),
	)
	c.JSON(http.StatusOK, user)
}
