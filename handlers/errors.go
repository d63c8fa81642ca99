package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"storemybottle-backend/auth"
	"storemybottle-backend/ledger"
	"storemybottle-backend/store"

	"github.com/gin-gonic/gin"
)

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrVenueNotFound):
		return http.StatusNotFound, "venue_not_found", "venue not found"
	case errors.Is(err, store.ErrBottleNotFound):
		return http.StatusNotFound, "bottle_not_found", "bottle not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrPurchaseNotFound):
		return http.StatusNotFound, "purchase_not_found", "purchase not found"
	case errors.Is(err, store.ErrRedemptionNotFound):
		return http.StatusNotFound, "redemption_not_found", "redemption not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden, "forbidden", "purchase does not belong to user"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "purchase state does not allow this action"
	case errors.Is(err, store.ErrAlreadyResolved):
		return http.StatusConflict, "already_resolved", "redemption already served or expired"
	case errors.Is(err, store.ErrInsufficientVolume):
		return http.StatusConflict, "insufficient_volume", "not enough left in the bottle"
	case errors.Is(err, store.ErrVenueInUse):
		return http.StatusConflict, "venue_in_use", "venue still has bottles"
	case errors.Is(err, store.ErrVolumeInUse):
		return http.StatusConflict, "volume_in_use", "paid purchases hold more than the new bottle volume"
	case errors.Is(err, auth.ErrRoleManagedByProvider):
		return http.StatusConflict, "role_managed_by_provider", "role is assigned by the identity provider"
	case errors.Is(err, store.ErrExpired):
		return http.StatusGone, "expired", "redemption expired"
	case errors.Is(err, ledger.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid_payload", "qr data is not a redemption code"
	case errors.Is(err, ledger.ErrInvalidPegSize):
		return http.StatusBadRequest, "invalid_peg_size", err.Error()
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount", "amount must be positive"
	case errors.Is(err, auth.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role", "role must be customer, bartender or admin"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// respondError maps err to its status and stable code. Unexpected errors are
// logged and never leak details to the client.
func respondError(c *gin.Context, err error) {
	status, code, message := mapError(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("request_id", c.GetString(requestIDKey)),
			slog.Any("error", err),
		)
	}
	_ = c.Error(err)
	writeError(c, status, code, message)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		RequestID: c.GetString(requestIDKey),
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func badRequest(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
}
