package handlers

import (
	"context"
	"net/http"

	"storemybottle-backend/models"

	"github.com/gin-gonic/gin"
)

// UserDirectory is the role resolver plus the users mirror it maintains.
type UserDirectory interface {
	RoleResolver
	CurrentUser(ctx context.Context, userID string) (models.User, error)
	SetRole(ctx context.Context, userID, role string) (models.User, error)
}

type UserHandler struct {
	users UserDirectory
}

func NewUserHandler(users UserDirectory) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.users.CurrentUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type setOwnRoleRequest struct {
	Role    string `json:"role"`
	AppType string `json:"app_type"`
}

// SetOwnRole lets a signed-in user claim the customer role. Staff roles only
// come from the identity provider or an admin.
func (h *UserHandler) SetOwnRole(c *gin.Context) {
	var req setOwnRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role := req.Role
	if role == "" {
		role = req.AppType
	}
	if role == "" {
		role = models.RoleCustomer
	}
	if !models.ValidRole(role) {
		writeError(c, http.StatusBadRequest, "invalid_role", "role must be customer, bartender or admin")
		return
	}
	if role != models.RoleCustomer {
		writeError(c, http.StatusForbidden, "insufficient_permissions", "staff roles are assigned by an admin")
		return
	}

	user, err := h.users.SetRole(c.Request.Context(), currentUserID(c), role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
