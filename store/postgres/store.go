package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	venueColumns      = "id, name, address, created_at, updated_at"
	bottleColumns     = "id, venue_id, brand, type, size, price, total_volume_ml, active, created_at, updated_at"
	userColumns       = "id, email, phone, role, created_at, updated_at"
	purchaseColumns   = "id, user_id, bottle_id, venue_id, payment_status, remaining_volume_ml, created_at, paid_at, updated_at"
	redemptionColumns = "id, purchase_id, user_id, peg_volume_ml, token, status, created_at, served_at, served_by, expires_at"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool against databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewStore(pool), nil
}

// EnsureSchema creates missing tables. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ListVenues(ctx context.Context) ([]models.Venue, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+venueColumns+" FROM venues ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	venues := []models.Venue{}
	for rows.Next() {
		venue, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, venue)
	}
	return venues, rows.Err()
}

func (s *Store) GetVenue(ctx context.Context, id string) (models.Venue, error) {
	venue, err := scanVenue(s.pool.QueryRow(ctx, "SELECT "+venueColumns+" FROM venues WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Venue{}, store.ErrVenueNotFound
	}
	return venue, err
}

func (s *Store) CreateVenue(ctx context.Context, venue models.Venue) (models.Venue, error) {
	query := `
		INSERT INTO venues (id, name, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + venueColumns
	return scanVenue(s.pool.QueryRow(ctx, query, venue.ID, venue.Name, venue.Address, venue.CreatedAt, venue.UpdatedAt))
}

func (s *Store) UpdateVenue(ctx context.Context, id string, input store.VenueUpdate) (models.Venue, error) {
	query := `
		UPDATE venues
		SET name = COALESCE($2, name),
			address = COALESCE($3, address),
			updated_at = $4
		WHERE id = $1
		RETURNING ` + venueColumns
	venue, err := scanVenue(s.pool.QueryRow(ctx, query, id, input.Name, input.Address, input.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Venue{}, store.ErrVenueNotFound
	}
	return venue, err
}

func (s *Store) DeleteVenue(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM venues
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM bottles WHERE venue_id = $1)
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.GetVenue(ctx, id); err != nil {
		return err
	}
	return store.ErrVenueInUse
}

func (s *Store) ListBottles(ctx context.Context, venueID string, activeOnly bool) ([]models.Bottle, error) {
	query := "SELECT " + bottleColumns + " FROM bottles WHERE 1=1"
	args := []interface{}{}
	if venueID != "" {
		args = append(args, venueID)
		query += fmt.Sprintf(" AND venue_id = $%d", len(args))
	}
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY brand, type ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bottles := []models.Bottle{}
	for rows.Next() {
		bottle, err := scanBottle(rows)
		if err != nil {
			return nil, err
		}
		bottles = append(bottles, bottle)
	}
	return bottles, rows.Err()
}

func (s *Store) GetBottle(ctx context.Context, id string) (models.Bottle, error) {
	bottle, err := scanBottle(s.pool.QueryRow(ctx, "SELECT "+bottleColumns+" FROM bottles WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Bottle{}, store.ErrBottleNotFound
	}
	return bottle, err
}

func (s *Store) CreateBottle(ctx context.Context, bottle models.Bottle) (models.Bottle, error) {
	if _, err := s.GetVenue(ctx, bottle.VenueID); err != nil {
		return models.Bottle{}, err
	}
	query := `
		INSERT INTO bottles (id, venue_id, brand, type, size, price, total_volume_ml, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + bottleColumns
	return scanBottle(s.pool.QueryRow(ctx, query,
		bottle.ID,
		bottle.VenueID,
		bottle.Brand,
		bottle.Type,
		bottle.Size,
		bottle.Price,
		bottle.TotalVolumeML,
		bottle.Active,
		bottle.CreatedAt,
		bottle.UpdatedAt,
	))
}

func (s *Store) UpdateBottle(ctx context.Context, id string, input store.BottleUpdate) (models.Bottle, error) {
	query := `
		UPDATE bottles
		SET brand = COALESCE($2, brand),
			type = COALESCE($3, type),
			size = COALESCE($4, size),
			price = COALESCE($5, price),
			total_volume_ml = COALESCE($6, total_volume_ml),
			active = COALESCE($7, active),
			updated_at = $8
		WHERE id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM purchases p
			WHERE p.bottle_id = bottles.id
			  AND p.payment_status <> 'pending'
			  AND p.remaining_volume_ml > COALESCE($6, bottles.total_volume_ml)
		  )
		RETURNING ` + bottleColumns
	bottle, err := scanBottle(s.pool.QueryRow(ctx, query,
		id,
		input.Brand,
		input.Type,
		input.Size,
		input.Price,
		input.TotalVolumeML,
		input.Active,
		input.UpdatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.GetBottle(ctx, id); err != nil {
			return models.Bottle{}, err
		}
		return models.Bottle{}, store.ErrVolumeInUse
	}
	return bottle, err
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, store.ErrUserNotFound
	}
	return user, err
}

func (s *Store) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
		INSERT INTO users (id, email, phone, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(EXCLUDED.email, users.email),
			phone = COALESCE(EXCLUDED.phone, users.phone),
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns
	now := user.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return scanUser(s.pool.QueryRow(ctx, query, user.ID, user.Email, user.Phone, user.Role, now))
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) CreatePurchase(ctx context.Context, purchase models.Purchase) (models.Purchase, error) {
	query := `
		INSERT INTO purchases (id, user_id, bottle_id, venue_id, payment_status, remaining_volume_ml, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + purchaseColumns
	return scanPurchase(s.pool.QueryRow(ctx, query,
		purchase.ID,
		purchase.UserID,
		purchase.BottleID,
		purchase.VenueID,
		purchase.PaymentStatus,
		purchase.RemainingVolumeML,
		purchase.CreatedAt,
		purchase.UpdatedAt,
	))
}

func (s *Store) GetPurchase(ctx context.Context, id string) (models.Purchase, error) {
	return getPurchase(ctx, s.pool, id)
}

func (s *Store) ListPurchases(ctx context.Context, filter store.PurchaseFilter) ([]models.PurchaseDetail, error) {
	query := `
		SELECT p.id, p.user_id, p.bottle_id, p.venue_id, p.payment_status, p.remaining_volume_ml,
		       p.created_at, p.paid_at, p.updated_at,
		       b.brand, b.type, b.total_volume_ml, v.name
		FROM purchases p
		JOIN bottles b ON p.bottle_id = b.id
		JOIN venues v ON p.venue_id = v.id
		WHERE 1=1
	`
	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND p.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND p.payment_status = $%d", len(args))
	}
	if filter.OldestFirst {
		query += " ORDER BY p.created_at ASC"
	} else {
		query += " ORDER BY p.created_at DESC"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := []models.PurchaseDetail{}
	for rows.Next() {
		var d models.PurchaseDetail
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.BottleID,
			&d.VenueID,
			&d.PaymentStatus,
			&d.RemainingVolumeML,
			&d.CreatedAt,
			&d.PaidAt,
			&d.UpdatedAt,
			&d.BottleBrand,
			&d.BottleType,
			&d.TotalVolumeML,
			&d.VenueName,
		); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *Store) MarkPurchasePaid(ctx context.Context, id string, at time.Time) (models.Purchase, error) {
	query := `
		UPDATE purchases
		SET payment_status = 'paid',
			remaining_volume_ml = (SELECT b.total_volume_ml FROM bottles b WHERE b.id = purchases.bottle_id),
			paid_at = $2,
			updated_at = $2
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING ` + purchaseColumns
	purchase, err := scanPurchase(s.pool.QueryRow(ctx, query, id, at))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := getPurchase(ctx, s.pool, id); err != nil {
			return models.Purchase{}, err
		}
		return models.Purchase{}, store.ErrInvalidState
	}
	return purchase, err
}

func (s *Store) DecrementVolume(ctx context.Context, id string, amount int, at time.Time) (models.Purchase, error) {
	return decrementVolume(ctx, s.pool, id, amount, at)
}

func (s *Store) CreateRedemption(ctx context.Context, redemption models.Redemption) (models.Redemption, error) {
	query := `
		INSERT INTO redemptions (id, purchase_id, user_id, peg_volume_ml, token, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + redemptionColumns
	return scanRedemption(s.pool.QueryRow(ctx, query,
		redemption.ID,
		redemption.PurchaseID,
		redemption.UserID,
		redemption.PegVolumeML,
		redemption.Token,
		redemption.Status,
		redemption.CreatedAt,
		redemption.ExpiresAt,
	))
}

func (s *Store) GetRedemptionByToken(ctx context.Context, token string) (models.Redemption, error) {
	return getRedemptionByToken(ctx, s.pool, token)
}

func (s *Store) ListRedemptions(ctx context.Context, userID string) ([]models.Redemption, error) {
	query := "SELECT " + redemptionColumns + " FROM redemptions"
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	redemptions := []models.Redemption{}
	for rows.Next() {
		redemption, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		redemptions = append(redemptions, redemption)
	}
	return redemptions, rows.Err()
}

func (s *Store) ServeRedemption(ctx context.Context, token, staffID string, at time.Time) (models.Redemption, models.Purchase, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Redemption{}, models.Purchase{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `
		UPDATE redemptions
		SET status = 'served',
			served_at = $3,
			served_by = $2
		WHERE token = $1 AND status = 'pending' AND expires_at > $3
		RETURNING ` + redemptionColumns
	redemption, err := scanRedemption(tx.QueryRow(ctx, query, token, staffID, at))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return models.Redemption{}, models.Purchase{}, err
		}
		current, err := getRedemptionByToken(ctx, tx, token)
		if err != nil {
			return models.Redemption{}, models.Purchase{}, err
		}
		if current.Status != models.RedemptionPending {
			return models.Redemption{}, models.Purchase{}, store.ErrAlreadyResolved
		}
		return models.Redemption{}, models.Purchase{}, store.ErrExpired
	}

	purchase, err := decrementVolume(ctx, tx, redemption.PurchaseID, redemption.PegVolumeML, at)
	if err != nil {
		return models.Redemption{}, models.Purchase{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Redemption{}, models.Purchase{}, err
	}
	return redemption, purchase, nil
}

func (s *Store) ExpireRedemptions(ctx context.Context, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE redemptions
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM venues),
			(SELECT COUNT(*) FROM bottles),
			(SELECT COUNT(*) FROM purchases),
			(SELECT COUNT(*) FROM purchases WHERE payment_status = 'paid'),
			(SELECT COUNT(*) FROM redemptions),
			(SELECT COUNT(*) FROM redemptions WHERE status = 'served')
	`).Scan(
		&stats.Users,
		&stats.Venues,
		&stats.Bottles,
		&stats.Purchases,
		&stats.Paid,
		&stats.Redemptions,
		&stats.Served,
	)
	return stats, err
}

func decrementVolume(ctx context.Context, q querier, id string, amount int, at time.Time) (models.Purchase, error) {
	query := `
		UPDATE purchases
		SET remaining_volume_ml = remaining_volume_ml - $2,
			updated_at = $3
		WHERE id = $1 AND payment_status = 'paid' AND remaining_volume_ml >= $2
		RETURNING ` + purchaseColumns
	purchase, err := scanPurchase(q.QueryRow(ctx, query, id, amount, at))
	if errors.Is(err, pgx.ErrNoRows) {
		current, err := getPurchase(ctx, q, id)
		if err != nil {
			return models.Purchase{}, err
		}
		if current.PaymentStatus != models.PaymentPaid {
			return models.Purchase{}, store.ErrInvalidState
		}
		return models.Purchase{}, store.ErrInsufficientVolume
	}
	return purchase, err
}

func getPurchase(ctx context.Context, q querier, id string) (models.Purchase, error) {
	purchase, err := scanPurchase(q.QueryRow(ctx, "SELECT "+purchaseColumns+" FROM purchases WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Purchase{}, store.ErrPurchaseNotFound
	}
	return purchase, err
}

func getRedemptionByToken(ctx context.Context, q querier, token string) (models.Redemption, error) {
	redemption, err := scanRedemption(q.QueryRow(ctx, "SELECT "+redemptionColumns+" FROM redemptions WHERE token = $1", token))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Redemption{}, store.ErrRedemptionNotFound
	}
	return redemption, err
}

func scanVenue(row pgx.Row) (models.Venue, error) {
	var v models.Venue
	err := row.Scan(&v.ID, &v.Name, &v.Address, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func scanBottle(row pgx.Row) (models.Bottle, error) {
	var b models.Bottle
	err := row.Scan(
		&b.ID,
		&b.VenueID,
		&b.Brand,
		&b.Type,
		&b.Size,
		&b.Price,
		&b.TotalVolumeML,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func scanPurchase(row pgx.Row) (models.Purchase, error) {
	var p models.Purchase
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.BottleID,
		&p.VenueID,
		&p.PaymentStatus,
		&p.RemainingVolumeML,
		&p.CreatedAt,
		&p.PaidAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanRedemption(row pgx.Row) (models.Redemption, error) {
	var r models.Redemption
	err := row.Scan(
		&r.ID,
		&r.PurchaseID,
		&r.UserID,
		&r.PegVolumeML,
		&r.Token,
		&r.Status,
		&r.CreatedAt,
		&r.ServedAt,
		&r.ServedBy,
		&r.ExpiresAt,
	)
	return r, err
}

var _ store.Store = (*Store)(nil)
