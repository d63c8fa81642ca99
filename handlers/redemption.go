package handlers

import (
	"net/http"

	"storemybottle-backend/ledger"
	"storemybottle-backend/models"

	"github.com/gin-gonic/gin"
)

type RedemptionHandler struct {
	redemptions *ledger.Redemptions
	qrSize      int
}

func NewRedemptionHandler(redemptions *ledger.Redemptions, qrSize int) *RedemptionHandler {
	return &RedemptionHandler{redemptions: redemptions, qrSize: qrSize}
}

func (h *RedemptionHandler) PegSizes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"peg_sizes_ml": h.redemptions.PegSizes()})
}

func (h *RedemptionHandler) RequestRedemption(c *gin.Context) {
	var req models.RequestRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ticket, err := h.redemptions.RequestRedemption(c.Request.Context(), req.PurchaseID, currentUserID(c), req.PegVolumeML)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"redemption": ticket.Redemption,
		"qr_code":    renderQR(c.Request.Context(), ticket.QRData, h.qrSize),
	})
}

func (h *RedemptionHandler) ListMine(c *gin.Context) {
	redemptions, err := h.redemptions.ListUserRedemptions(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, redemptions)
}

// Scan serves the peg behind a scanned redemption QR.
func (h *RedemptionHandler) Scan(c *gin.Context) {
	var req models.ScanRedemptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.redemptions.ServeToken(c.Request.Context(), req.QRData, currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "Peg served",
		"redemption": result.Redemption,
		"purchase":   result.Purchase,
	})
}

func (h *RedemptionHandler) Sweep(c *gin.Context) {
	count, err := h.redemptions.ExpireStaleTokens(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}
