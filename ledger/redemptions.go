package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/qrpayload"
	"storemybottle-backend/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// RedemptionTicket is a pending redemption and the QR string the customer
// presents to staff.
type RedemptionTicket struct {
	Redemption models.Redemption
	QRData     string
}

// ServeResult is the served redemption and the purchase after the pour.
type ServeResult struct {
	Redemption models.Redemption
	Purchase   models.Purchase
}

type Redemptions struct {
	store    store.LedgerStore
	pegSizes []int
	ttl      time.Duration
	clock    Clock
	logger   *slog.Logger
}

func NewRedemptions(st store.LedgerStore, opts Options) *Redemptions {
	opts = opts.withDefaults()
	return &Redemptions{
		store:    st,
		pegSizes: opts.PegSizes,
		ttl:      opts.RedemptionTTL,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

// PegSizes returns the accepted pour sizes in ascending order.
func (r *Redemptions) PegSizes() []int {
	return append([]int(nil), r.pegSizes...)
}

func (r *Redemptions) validPeg(peg int) bool {
	i := sort.SearchInts(r.pegSizes, peg)
	return i < len(r.pegSizes) && r.pegSizes[i] == peg
}

// RequestRedemption issues a single-use token for one peg against a paid
// purchase owned by userID. No token is created when the peg does not fit.
func (r *Redemptions) RequestRedemption(ctx context.Context, purchaseID, userID string, pegVolumeML int) (ticket RedemptionTicket, err error) {
	ctx, span := tracer.Start(ctx, "ledger.RequestRedemption")
	span.SetAttributes(attribute.String("purchase.id", purchaseID), attribute.Int("peg_ml", pegVolumeML))
	defer func() { endSpan(span, err) }()

	if !r.validPeg(pegVolumeML) {
		return RedemptionTicket{}, fmt.Errorf("%d ml not in %v: %w", pegVolumeML, r.pegSizes, ErrInvalidPegSize)
	}

	purchase, err := r.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return RedemptionTicket{}, err
	}
	if purchase.UserID != userID {
		return RedemptionTicket{}, ErrForbidden
	}
	if purchase.PaymentStatus != models.PaymentPaid {
		return RedemptionTicket{}, store.ErrInvalidState
	}
	if purchase.RemainingVolumeML < pegVolumeML {
		return RedemptionTicket{}, store.ErrInsufficientVolume
	}

	now := r.clock.Now()
	redemption, err := r.store.CreateRedemption(ctx, models.Redemption{
		ID:          uuid.NewString(),
		PurchaseID:  purchase.ID,
		UserID:      userID,
		PegVolumeML: pegVolumeML,
		Token:       uuid.NewString(),
		Status:      models.RedemptionPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	})
	if err != nil {
		return RedemptionTicket{}, fmt.Errorf("create redemption: %w", err)
	}

	qr, err := qrpayload.EncodeAt(qrpayload.KindRedemption, qrpayload.Fields{Token: redemption.Token}, now)
	if err != nil {
		return RedemptionTicket{}, err
	}

	r.logger.InfoContext(ctx, "redemption requested",
		slog.String("redemption_id", redemption.ID),
		slog.String("purchase_id", purchase.ID),
		slog.Int("peg_ml", pegVolumeML),
		slog.Time("expires_at", redemption.ExpiresAt),
	)
	return RedemptionTicket{Redemption: redemption, QRData: qr}, nil
}

// ServeToken resolves a scanned redemption QR. The token transition and the
// volume decrement commit together or not at all.
func (r *Redemptions) ServeToken(ctx context.Context, rawQR, staffID string) (result ServeResult, err error) {
	ctx, span := tracer.Start(ctx, "ledger.ServeToken")
	defer func() { endSpan(span, err) }()

	payload, ok := qrpayload.Decode(rawQR)
	if !ok || payload.Type != qrpayload.KindRedemption || payload.Token == "" {
		return ServeResult{}, ErrInvalidPayload
	}

	redemption, err := r.store.GetRedemptionByToken(ctx, payload.Token)
	if err != nil {
		return ServeResult{}, err
	}
	span.SetAttributes(attribute.String("redemption.id", redemption.ID))

	now := r.clock.Now()
	if redemption.Status != models.RedemptionPending {
		return ServeResult{}, store.ErrAlreadyResolved
	}
	if !now.Before(redemption.ExpiresAt) {
		return ServeResult{}, store.ErrExpired
	}

	purchase, err := r.store.GetPurchase(ctx, redemption.PurchaseID)
	if err != nil {
		return ServeResult{}, err
	}
	if purchase.RemainingVolumeML < redemption.PegVolumeML {
		return ServeResult{}, store.ErrInsufficientVolume
	}

	served, after, err := r.store.ServeRedemption(ctx, payload.Token, staffID, now)
	if err != nil {
		return ServeResult{}, err
	}

	r.logger.InfoContext(ctx, "redemption served",
		slog.String("redemption_id", served.ID),
		slog.String("purchase_id", after.ID),
		slog.String("staff_id", staffID),
		slog.Int("peg_ml", served.PegVolumeML),
		slog.Int("remaining_volume_ml", after.RemainingVolumeML),
	)
	return ServeResult{Redemption: served, Purchase: after}, nil
}

// ExpireStaleTokens marks every pending token past its expiry as expired and
// returns how many changed. Running it twice is harmless.
func (r *Redemptions) ExpireStaleTokens(ctx context.Context) (count int64, err error) {
	ctx, span := tracer.Start(ctx, "ledger.ExpireStaleTokens")
	defer func() {
		span.SetAttributes(attribute.Int64("expired", count))
		endSpan(span, err)
	}()

	return r.store.ExpireRedemptions(ctx, r.clock.Now())
}

func (r *Redemptions) ListUserRedemptions(ctx context.Context, userID string) ([]models.Redemption, error) {
	return r.store.ListRedemptions(ctx, userID)
}

func (r *Redemptions) ListAll(ctx context.Context) ([]models.Redemption, error) {
	return r.store.ListRedemptions(ctx, "")
}
