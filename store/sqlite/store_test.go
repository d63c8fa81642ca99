package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func seedBottle(t *testing.T, ctx context.Context, st *Store, volume int) models.Bottle {
	t.Helper()
	venue, err := st.CreateVenue(ctx, models.Venue{
		ID:        uuid.NewString(),
		Name:      "Blue Frog",
		Address:   "Lower Parel",
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	})
	require.NoError(t, err)

	bottle, err := st.CreateBottle(ctx, models.Bottle{
		ID:            uuid.NewString(),
		VenueID:       venue.ID,
		Brand:         "Glenfiddich",
		Type:          "Whisky",
		Size:          "750ml",
		Price:         5400,
		TotalVolumeML: volume,
		Active:        true,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	})
	require.NoError(t, err)
	return bottle
}

func seedPurchase(t *testing.T, ctx context.Context, st *Store, bottle models.Bottle, userID string) models.Purchase {
	t.Helper()
	purchase, err := st.CreatePurchase(ctx, models.Purchase{
		ID:            uuid.NewString(),
		UserID:        userID,
		BottleID:      bottle.ID,
		VenueID:       bottle.VenueID,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	})
	require.NoError(t, err)
	return purchase
}

func seedRedemption(t *testing.T, ctx context.Context, st *Store, purchase models.Purchase, peg int, expiresAt time.Time) models.Redemption {
	t.Helper()
	redemption, err := st.CreateRedemption(ctx, models.Redemption{
		ID:          uuid.NewString(),
		PurchaseID:  purchase.ID,
		UserID:      purchase.UserID,
		PegVolumeML: peg,
		Token:       uuid.NewString(),
		Status:      models.RedemptionPending,
		CreatedAt:   baseTime,
		ExpiresAt:   expiresAt,
	})
	require.NoError(t, err)
	return redemption
}

func TestVenueAndBottleCRUD(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)

	got, err := st.GetBottle(ctx, bottle.ID)
	require.NoError(t, err)
	assert.Equal(t, bottle, got)
	assert.True(t, got.Active)

	inactive := false
	price := 6000.0
	updated, err := st.UpdateBottle(ctx, bottle.ID, store.BottleUpdate{
		Price:     &price,
		Active:    &inactive,
		UpdatedAt: baseTime.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, updated.Active)
	assert.Equal(t, 6000.0, updated.Price)
	assert.Equal(t, "Glenfiddich", updated.Brand)

	active, err := st.ListBottles(ctx, bottle.VenueID, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := st.ListBottles(ctx, bottle.VenueID, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	err = st.DeleteVenue(ctx, bottle.VenueID)
	assert.ErrorIs(t, err, store.ErrVenueInUse)

	err = st.DeleteVenue(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = st.CreateBottle(ctx, models.Bottle{ID: uuid.NewString(), VenueID: "missing", Brand: "x", TotalVolumeML: 1})
	assert.ErrorIs(t, err, store.ErrVenueNotFound)
}

func TestUpsertUserKeepsContactFields(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)

	email := "asha@example.com"
	_, err := st.UpsertUser(ctx, models.User{ID: "user_1", Email: &email, Role: models.RoleCustomer, UpdatedAt: baseTime})
	require.NoError(t, err)

	user, err := st.UpsertUser(ctx, models.User{ID: "user_1", Role: models.RoleBartender, UpdatedAt: baseTime.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleBartender, user.Role)
	require.NotNil(t, user.Email)
	assert.Equal(t, email, *user.Email)
	assert.Equal(t, baseTime, user.CreatedAt)

	_, err = st.GetUser(ctx, "user_2")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestMarkPurchasePaidCreditsVolume(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	assert.Equal(t, 0, purchase.RemainingVolumeML)

	paidAt := baseTime.Add(5 * time.Minute)
	paid, err := st.MarkPurchasePaid(ctx, purchase.ID, paidAt)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, 750, paid.RemainingVolumeML)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, paidAt, *paid.PaidAt)

	_, err = st.MarkPurchasePaid(ctx, purchase.ID, paidAt)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	_, err = st.MarkPurchasePaid(ctx, "missing", paidAt)
	assert.ErrorIs(t, err, store.ErrPurchaseNotFound)
}

func TestUpdateBottleVolumeGuard(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	at := baseTime.Add(time.Minute)

	// A pending purchase has nothing credited yet.
	smaller := 700
	updated, err := st.UpdateBottle(ctx, bottle.ID, store.BottleUpdate{TotalVolumeML: &smaller, UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, 700, updated.TotalVolumeML)

	_, err = st.MarkPurchasePaid(ctx, purchase.ID, at)
	require.NoError(t, err)

	shrunk := 500
	_, err = st.UpdateBottle(ctx, bottle.ID, store.BottleUpdate{TotalVolumeML: &shrunk, UpdatedAt: at})
	assert.ErrorIs(t, err, store.ErrVolumeInUse)

	got, err := st.GetBottle(ctx, bottle.ID)
	require.NoError(t, err)
	assert.Equal(t, 700, got.TotalVolumeML)

	// Other fields stay editable while purchases are open.
	brand := "Glenfiddich 15"
	updated, err = st.UpdateBottle(ctx, bottle.ID, store.BottleUpdate{Brand: &brand, UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, "Glenfiddich 15", updated.Brand)

	_, err = st.DecrementVolume(ctx, purchase.ID, 300, at)
	require.NoError(t, err)
	updated, err = st.UpdateBottle(ctx, bottle.ID, store.BottleUpdate{TotalVolumeML: &shrunk, UpdatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, 500, updated.TotalVolumeML)

	_, err = st.UpdateBottle(ctx, "missing", store.BottleUpdate{TotalVolumeML: &shrunk, UpdatedAt: at})
	assert.ErrorIs(t, err, store.ErrBottleNotFound)
}

func TestMarkPurchasePaidConcurrency(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrInvalidState)
	}
	assert.Equal(t, 1, succeeded)

	got, err := st.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 750, got.RemainingVolumeML)
}

func TestDecrementVolumeGuards(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 100)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")

	_, err := st.DecrementVolume(ctx, purchase.ID, 30, baseTime)
	assert.ErrorIs(t, err, store.ErrInvalidState)

	_, err = st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)

	got, err := st.DecrementVolume(ctx, purchase.ID, 60, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 40, got.RemainingVolumeML)

	_, err = st.DecrementVolume(ctx, purchase.ID, 45, baseTime)
	assert.ErrorIs(t, err, store.ErrInsufficientVolume)

	got, err = st.DecrementVolume(ctx, purchase.ID, 40, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RemainingVolumeML)

	_, err = st.DecrementVolume(ctx, "missing", 1, baseTime)
	assert.ErrorIs(t, err, store.ErrPurchaseNotFound)
}

func TestServeRedemption(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)

	redemption := seedRedemption(t, ctx, st, purchase, 60, baseTime.Add(24*time.Hour))
	servedAt := baseTime.Add(time.Hour)

	served, after, err := st.ServeRedemption(ctx, redemption.Token, "staff_1", servedAt)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionServed, served.Status)
	require.NotNil(t, served.ServedBy)
	assert.Equal(t, "staff_1", *served.ServedBy)
	require.NotNil(t, served.ServedAt)
	assert.Equal(t, servedAt, *served.ServedAt)
	assert.Equal(t, 690, after.RemainingVolumeML)

	_, _, err = st.ServeRedemption(ctx, redemption.Token, "staff_2", servedAt)
	assert.ErrorIs(t, err, store.ErrAlreadyResolved)

	_, _, err = st.ServeRedemption(ctx, "unknown", "staff_1", servedAt)
	assert.ErrorIs(t, err, store.ErrRedemptionNotFound)
}

func TestServeRedemptionExpired(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)

	expiresAt := baseTime.Add(time.Hour)
	redemption := seedRedemption(t, ctx, st, purchase, 30, expiresAt)

	_, _, err = st.ServeRedemption(ctx, redemption.Token, "staff_1", expiresAt)
	assert.ErrorIs(t, err, store.ErrExpired)

	got, err := st.GetRedemptionByToken(ctx, redemption.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionPending, got.Status)
	assert.Nil(t, got.ServedBy)

	purchaseAfter, err := st.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 750, purchaseAfter.RemainingVolumeML)
}

func TestServeRedemptionRollsBackOnInsufficientVolume(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 60)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)

	first := seedRedemption(t, ctx, st, purchase, 45, baseTime.Add(time.Hour))
	second := seedRedemption(t, ctx, st, purchase, 30, baseTime.Add(time.Hour))

	_, _, err = st.ServeRedemption(ctx, first.Token, "staff_1", baseTime)
	require.NoError(t, err)

	_, _, err = st.ServeRedemption(ctx, second.Token, "staff_1", baseTime)
	assert.ErrorIs(t, err, store.ErrInsufficientVolume)

	got, err := st.GetRedemptionByToken(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionPending, got.Status)

	purchaseAfter, err := st.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, purchaseAfter.RemainingVolumeML)
}

func TestServeRedemptionConcurrency(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)
	redemption := seedRedemption(t, ctx, st, purchase, 60, baseTime.Add(24*time.Hour))

	staff := []string{"staff_a", "staff_b", "staff_c", "staff_d"}
	var wg sync.WaitGroup
	errs := make(chan error, len(staff))
	for _, staffID := range staff {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := st.ServeRedemption(ctx, redemption.Token, id, baseTime.Add(time.Minute))
			errs <- err
		}(staffID)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, store.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, succeeded)

	got, err := st.GetPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 690, got.RemainingVolumeML)
}

func TestExpireRedemptions(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	purchase := seedPurchase(t, ctx, st, bottle, "user_1")
	_, err := st.MarkPurchasePaid(ctx, purchase.ID, baseTime)
	require.NoError(t, err)

	stale := seedRedemption(t, ctx, st, purchase, 30, baseTime.Add(time.Hour))
	fresh := seedRedemption(t, ctx, st, purchase, 30, baseTime.Add(3*time.Hour))
	served := seedRedemption(t, ctx, st, purchase, 30, baseTime.Add(time.Hour))
	_, _, err = st.ServeRedemption(ctx, served.Token, "staff_1", baseTime)
	require.NoError(t, err)

	count, err := st.ExpireRedemptions(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = st.ExpireRedemptions(ctx, baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	got, err := st.GetRedemptionByToken(ctx, stale.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionExpired, got.Status)

	got, err = st.GetRedemptionByToken(ctx, fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionPending, got.Status)

	got, err = st.GetRedemptionByToken(ctx, served.Token)
	require.NoError(t, err)
	assert.Equal(t, models.RedemptionServed, got.Status)
}

func TestListPurchasesAndStats(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	bottle := seedBottle(t, ctx, st, 750)
	paid := seedPurchase(t, ctx, st, bottle, "user_1")
	seedPurchase(t, ctx, st, bottle, "user_1")
	seedPurchase(t, ctx, st, bottle, "user_2")
	_, err := st.MarkPurchasePaid(ctx, paid.ID, baseTime)
	require.NoError(t, err)

	mine, err := st.ListPurchases(ctx, store.PurchaseFilter{UserID: "user_1", Status: models.PaymentPaid})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, paid.ID, mine[0].ID)
	assert.Equal(t, "Glenfiddich", mine[0].BottleBrand)
	assert.Equal(t, "Blue Frog", mine[0].VenueName)
	assert.Equal(t, 750, mine[0].TotalVolumeML)

	pending, err := st.ListPurchases(ctx, store.PurchaseFilter{Status: models.PaymentPending, OldestFirst: true})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Venues)
	assert.Equal(t, int64(1), stats.Bottles)
	assert.Equal(t, int64(3), stats.Purchases)
	assert.Equal(t, int64(1), stats.Paid)
}
