package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"storemybottle-backend/models"
	"storemybottle-backend/qrpayload"
	"storemybottle-backend/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// PurchaseTicket is a freshly created purchase and the payment QR the
// customer shows at the bar.
type PurchaseTicket struct {
	Purchase models.Purchase
	QRData   string
}

type Purchases struct {
	store  store.LedgerStore
	clock  Clock
	logger *slog.Logger
}

func NewPurchases(st store.LedgerStore, opts Options) *Purchases {
	opts = opts.withDefaults()
	return &Purchases{store: st, clock: opts.Clock, logger: opts.Logger}
}

// CreatePurchase opens a pending purchase for an active bottle.
func (p *Purchases) CreatePurchase(ctx context.Context, userID, bottleID string) (ticket PurchaseTicket, err error) {
	ctx, span := tracer.Start(ctx, "ledger.CreatePurchase")
	span.SetAttributes(attribute.String("bottle.id", bottleID))
	defer func() { endSpan(span, err) }()

	bottle, err := p.store.GetBottle(ctx, bottleID)
	if err != nil {
		return PurchaseTicket{}, err
	}
	if !bottle.Active {
		return PurchaseTicket{}, store.ErrBottleNotFound
	}

	now := p.clock.Now()
	purchase, err := p.store.CreatePurchase(ctx, models.Purchase{
		ID:                uuid.NewString(),
		UserID:            userID,
		BottleID:          bottle.ID,
		VenueID:           bottle.VenueID,
		PaymentStatus:     models.PaymentPending,
		RemainingVolumeML: 0,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return PurchaseTicket{}, fmt.Errorf("create purchase: %w", err)
	}

	qr, err := qrpayload.EncodeAt(qrpayload.KindPayment, qrpayload.Fields{
		PurchaseID: purchase.ID,
		Token:      uuid.NewString(),
	}, now)
	if err != nil {
		return PurchaseTicket{}, err
	}

	p.logger.InfoContext(ctx, "purchase created",
		slog.String("purchase_id", purchase.ID),
		slog.String("user_id", userID),
		slog.String("bottle_id", bottle.ID),
	)
	return PurchaseTicket{Purchase: purchase, QRData: qr}, nil
}

// MarkPaid credits the bottle's full volume. Only the first caller for a
// pending purchase succeeds; everyone else gets store.ErrInvalidState.
func (p *Purchases) MarkPaid(ctx context.Context, purchaseID string) (purchase models.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "ledger.MarkPaid")
	span.SetAttributes(attribute.String("purchase.id", purchaseID))
	defer func() { endSpan(span, err) }()

	purchase, err = p.store.MarkPurchasePaid(ctx, purchaseID, p.clock.Now())
	if err != nil {
		return models.Purchase{}, err
	}

	p.logger.InfoContext(ctx, "purchase paid",
		slog.String("purchase_id", purchase.ID),
		slog.Int("remaining_volume_ml", purchase.RemainingVolumeML),
	)
	return purchase, nil
}

func (p *Purchases) DecrementVolume(ctx context.Context, purchaseID string, amount int) (purchase models.Purchase, err error) {
	ctx, span := tracer.Start(ctx, "ledger.DecrementVolume")
	span.SetAttributes(attribute.String("purchase.id", purchaseID), attribute.Int("amount_ml", amount))
	defer func() { endSpan(span, err) }()

	if amount <= 0 {
		return models.Purchase{}, ErrInvalidAmount
	}
	return p.store.DecrementVolume(ctx, purchaseID, amount, p.clock.Now())
}

// GetPurchase returns the purchase if userID owns it or staff is true.
func (p *Purchases) GetPurchase(ctx context.Context, purchaseID, userID string, staff bool) (models.Purchase, error) {
	purchase, err := p.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return models.Purchase{}, err
	}
	if !staff && purchase.UserID != userID {
		return models.Purchase{}, ErrForbidden
	}
	return purchase, nil
}

// ListUserBottles returns the paid purchases of userID with bottle and venue
// names.
func (p *Purchases) ListUserBottles(ctx context.Context, userID string) ([]models.PurchaseDetail, error) {
	return p.store.ListPurchases(ctx, store.PurchaseFilter{UserID: userID, Status: models.PaymentPaid})
}

// ListPending is the bartender's queue, oldest first.
func (p *Purchases) ListPending(ctx context.Context) ([]models.PurchaseDetail, error) {
	return p.store.ListPurchases(ctx, store.PurchaseFilter{Status: models.PaymentPending, OldestFirst: true})
}

func (p *Purchases) ListAll(ctx context.Context) ([]models.PurchaseDetail, error) {
	return p.store.ListPurchases(ctx, store.PurchaseFilter{})
}
