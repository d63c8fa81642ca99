package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"storemybottle-backend/ledger"
	"storemybottle-backend/models"
	"storemybottle-backend/qrpayload"

	"github.com/gin-gonic/gin"
)

type qrCode struct {
	Data         string `json:"data"`
	ImageDataURL string `json:"image_data_url,omitempty"`
}

// renderQR pairs the payload with a PNG. A rendering failure only drops the
// image; clients can still draw the code from data.
func renderQR(ctx context.Context, data string, size int) qrCode {
	image, err := qrpayload.PNGDataURL(data, size)
	if err != nil {
		slog.WarnContext(ctx, "qr image rendering failed", slog.Any("error", err))
		return qrCode{Data: data}
	}
	return qrCode{Data: data, ImageDataURL: image}
}

type PurchaseHandler struct {
	purchases *ledger.Purchases
	resolver  RoleResolver
	qrSize    int
}

func NewPurchaseHandler(purchases *ledger.Purchases, resolver RoleResolver, qrSize int) *PurchaseHandler {
	return &PurchaseHandler{purchases: purchases, resolver: resolver, qrSize: qrSize}
}

func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	var req models.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := h.purchases.CreatePurchase(c.Request.Context(), currentUserID(c), req.BottleID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"purchase": ticket.Purchase,
		"qr_code":  renderQR(c.Request.Context(), ticket.QRData, h.qrSize),
	})
}

func (h *PurchaseHandler) ListMine(c *gin.Context) {
	bottles, err := h.purchases.ListUserBottles(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bottles)
}

func (h *PurchaseHandler) ListPending(c *gin.Context) {
	pending, err := h.purchases.ListPending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (h *PurchaseHandler) GetPurchase(c *gin.Context) {
	role, err := resolveRole(c, h.resolver)
	if err != nil {
		respondError(c, err)
		return
	}
	staff := role == models.RoleBartender || role == models.RoleAdmin

	purchase, err := h.purchases.GetPurchase(c.Request.Context(), c.Param("id"), currentUserID(c), staff)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *PurchaseHandler) MarkPaid(c *gin.Context) {
	purchase, err := h.purchases.MarkPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	slog.InfoContext(c.Request.Context(), "payment confirmed",
		slog.String("purchase_id", purchase.ID),
		slog.String("staff_id", currentUserID(c)),
	)
	c.JSON(http.StatusOK, gin.H{
		"message":  "Payment confirmed",
		"purchase": purchase,
	})
}
