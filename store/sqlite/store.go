package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storemybottle-backend/models"
	"storemybottle-backend/store"

	_ "github.com/mattn/go-sqlite3"
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

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the embedded SQLite ledger used for local runs and tests.
type Store struct {
	db *sql.DB
}

// Open creates or opens a database at path and applies the schema.
// SQLite allows one writer at a time, so the pool is limited to a single
// connection; guarded updates are still evaluated by the engine.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() {
	_ = s.db.Close()
}

func (s *Store) ListVenues(ctx context.Context) ([]models.Venue, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+venueColumns+" FROM venues ORDER BY name ASC")
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
	venue, err := scanVenue(s.db.QueryRowContext(ctx, "SELECT "+venueColumns+" FROM venues WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Venue{}, store.ErrVenueNotFound
	}
	return venue, err
}

func (s *Store) CreateVenue(ctx context.Context, venue models.Venue) (models.Venue, error) {
	query := `
		INSERT INTO venues (id, name, address, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + venueColumns
	return scanVenue(s.db.QueryRowContext(ctx, query,
		venue.ID, venue.Name, venue.Address, toUnix(venue.CreatedAt), toUnix(venue.UpdatedAt)))
}

func (s *Store) UpdateVenue(ctx context.Context, id string, input store.VenueUpdate) (models.Venue, error) {
	query := `
		UPDATE venues
		SET name = COALESCE(?, name),
			address = COALESCE(?, address),
			updated_at = ?
		WHERE id = ?
		RETURNING ` + venueColumns
	venue, err := scanVenue(s.db.QueryRowContext(ctx, query, input.Name, input.Address, toUnix(input.UpdatedAt), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Venue{}, store.ErrVenueNotFound
	}
	return venue, err
}

func (s *Store) DeleteVenue(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM venues
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM bottles WHERE venue_id = ?)
	`, id, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
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
		query += " AND venue_id = ?"
		args = append(args, venueID)
	}
	if activeOnly {
		query += " AND active = 1"
	}
	query += " ORDER BY brand, type ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	bottle, err := scanBottle(s.db.QueryRowContext(ctx, "SELECT "+bottleColumns+" FROM bottles WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + bottleColumns
	return scanBottle(s.db.QueryRowContext(ctx, query,
		bottle.ID,
		bottle.VenueID,
		bottle.Brand,
		bottle.Type,
		bottle.Size,
		bottle.Price,
		bottle.TotalVolumeML,
		bottle.Active,
		toUnix(bottle.CreatedAt),
		toUnix(bottle.UpdatedAt),
	))
}

func (s *Store) UpdateBottle(ctx context.Context, id string, input store.BottleUpdate) (models.Bottle, error) {
	query := `
		UPDATE bottles
		SET brand = COALESCE(?, brand),
			type = COALESCE(?, type),
			size = COALESCE(?, size),
			price = COALESCE(?, price),
			total_volume_ml = COALESCE(?, total_volume_ml),
			active = COALESCE(?, active),
			updated_at = ?
		WHERE id = ?
		  AND NOT EXISTS (
			SELECT 1 FROM purchases p
			WHERE p.bottle_id = bottles.id
			  AND p.payment_status <> 'pending'
			  AND p.remaining_volume_ml > COALESCE(?, bottles.total_volume_ml)
		  )
		RETURNING ` + bottleColumns
	bottle, err := scanBottle(s.db.QueryRowContext(ctx, query,
		input.Brand,
		input.Type,
		input.Size,
		input.Price,
		input.TotalVolumeML,
		input.Active,
		toUnix(input.UpdatedAt),
		id,
		input.TotalVolumeML,
	))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetBottle(ctx, id); err != nil {
			return models.Bottle{}, err
		}
		return models.Bottle{}, store.ErrVolumeInUse
	}
	return bottle, err
}

func (s *Store) GetUser(ctx context.Context, id string) (models.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrUserNotFound
	}
	return user, err
}

func (s *Store) UpsertUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
		INSERT INTO users (id, email, phone, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(excluded.email, users.email),
			phone = COALESCE(excluded.phone, users.phone),
			role = excluded.role,
			updated_at = excluded.updated_at
		RETURNING ` + userColumns
	now := user.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return scanUser(s.db.QueryRowContext(ctx, query, user.ID, user.Email, user.Phone, user.Role, toUnix(now), toUnix(now)))
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + purchaseColumns
	return scanPurchase(s.db.QueryRowContext(ctx, query,
		purchase.ID,
		purchase.UserID,
		purchase.BottleID,
		purchase.VenueID,
		purchase.PaymentStatus,
		purchase.RemainingVolumeML,
		toUnix(purchase.CreatedAt),
		toUnix(purchase.UpdatedAt),
	))
}

func (s *Store) GetPurchase(ctx context.Context, id string) (models.Purchase, error) {
	return getPurchase(ctx, s.db, id)
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
		query += " AND p.user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND p.payment_status = ?"
		args = append(args, filter.Status)
	}
	if filter.OldestFirst {
		query += " ORDER BY p.created_at ASC"
	} else {
		query += " ORDER BY p.created_at DESC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	details := []models.PurchaseDetail{}
	for rows.Next() {
		var d models.PurchaseDetail
		var createdAt, updatedAt int64
		var paidAt sql.NullInt64
		if err := rows.Scan(
			&d.ID,
			&d.UserID,
			&d.BottleID,
			&d.VenueID,
			&d.PaymentStatus,
			&d.RemainingVolumeML,
			&createdAt,
			&paidAt,
			&updatedAt,
			&d.BottleBrand,
			&d.BottleType,
			&d.TotalVolumeML,
			&d.VenueName,
		); err != nil {
			return nil, err
		}
		d.CreatedAt = fromUnix(createdAt)
		d.PaidAt = nullTimePtr(paidAt)
		d.UpdatedAt = fromUnix(updatedAt)
		details = append(details, d)
	}
	return details, rows.Err()
}

func (s *Store) MarkPurchasePaid(ctx context.Context, id string, at time.Time) (models.Purchase, error) {
	query := `
		UPDATE purchases
		SET payment_status = 'paid',
			remaining_volume_ml = (SELECT b.total_volume_ml FROM bottles b WHERE b.id = purchases.bottle_id),
			paid_at = ?,
			updated_at = ?
		WHERE id = ? AND payment_status = 'pending'
		RETURNING ` + purchaseColumns
	purchase, err := scanPurchase(s.db.QueryRowContext(ctx, query, toUnix(at), toUnix(at), id))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := getPurchase(ctx, s.db, id); err != nil {
			return models.Purchase{}, err
		}
		return models.Purchase{}, store.ErrInvalidState
	}
	return purchase, err
}

func (s *Store) DecrementVolume(ctx context.Context, id string, amount int, at time.Time) (models.Purchase, error) {
	return decrementVolume(ctx, s.db, id, amount, at)
}

func (s *Store) CreateRedemption(ctx context.Context, redemption models.Redemption) (models.Redemption, error) {
	query := `
		INSERT INTO redemptions (id, purchase_id, user_id, peg_volume_ml, token, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + redemptionColumns
	return scanRedemption(s.db.QueryRowContext(ctx, query,
		redemption.ID,
		redemption.PurchaseID,
		redemption.UserID,
		redemption.PegVolumeML,
		redemption.Token,
		redemption.Status,
		toUnix(redemption.CreatedAt),
		toUnix(redemption.ExpiresAt),
	))
}

func (s *Store) GetRedemptionByToken(ctx context.Context, token string) (models.Redemption, error) {
	return getRedemptionByToken(ctx, s.db, token)
}

func (s *Store) ListRedemptions(ctx context.Context, userID string) ([]models.Redemption, error) {
	query := "SELECT " + redemptionColumns + " FROM redemptions"
	args := []interface{}{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Redemption{}, models.Purchase{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		UPDATE redemptions
		SET status = 'served',
			served_at = ?,
			served_by = ?
		WHERE token = ? AND status = 'pending' AND expires_at > ?
		RETURNING ` + redemptionColumns
	redemption, err := scanRedemption(tx.QueryRowContext(ctx, query, toUnix(at), staffID, token, toUnix(at)))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
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

	if err := tx.Commit(); err != nil {
		return models.Redemption{}, models.Purchase{}, err
	}
	return redemption, purchase, nil
}

func (s *Store) ExpireRedemptions(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE redemptions
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= ?
	`, toUnix(at))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Stats(ctx context.Context) (models.DashboardStats, error) {
	var stats models.DashboardStats
	err := s.db.QueryRowContext(ctx, `
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
		SET remaining_volume_ml = remaining_volume_ml - ?,
			updated_at = ?
		WHERE id = ? AND payment_status = 'paid' AND remaining_volume_ml >= ?
		RETURNING ` + purchaseColumns
	purchase, err := scanPurchase(q.QueryRowContext(ctx, query, amount, toUnix(at), id, amount))
	if errors.Is(err, sql.ErrNoRows) {
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
	purchase, err := scanPurchase(q.QueryRowContext(ctx, "SELECT "+purchaseColumns+" FROM purchases WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Purchase{}, store.ErrPurchaseNotFound
	}
	return purchase, err
}

func getRedemptionByToken(ctx context.Context, q querier, token string) (models.Redemption, error) {
	redemption, err := scanRedemption(q.QueryRowContext(ctx, "SELECT "+redemptionColumns+" FROM redemptions WHERE token = ?", token))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Redemption{}, store.ErrRedemptionNotFound
	}
	return redemption, err
}

func scanVenue(row scanner) (models.Venue, error) {
	var v models.Venue
	var createdAt, updatedAt int64
	if err := row.Scan(&v.ID, &v.Name, &v.Address, &createdAt, &updatedAt); err != nil {
		return models.Venue{}, err
	}
	v.CreatedAt = fromUnix(createdAt)
	v.UpdatedAt = fromUnix(updatedAt)
	return v, nil
}

func scanBottle(row scanner) (models.Bottle, error) {
	var b models.Bottle
	var createdAt, updatedAt int64
	if err := row.Scan(
		&b.ID,
		&b.VenueID,
		&b.Brand,
		&b.Type,
		&b.Size,
		&b.Price,
		&b.TotalVolumeML,
		&b.Active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.Bottle{}, err
	}
	b.CreatedAt = fromUnix(createdAt)
	b.UpdatedAt = fromUnix(updatedAt)
	return b, nil
}

func scanUser(row scanner) (models.User, error) {
	var u models.User
	var email, phone sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&u.ID, &email, &phone, &u.Role, &createdAt, &updatedAt); err != nil {
		return models.User{}, err
	}
	u.Email = nullStringPtr(email)
	u.Phone = nullStringPtr(phone)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	return u, nil
}

func scanPurchase(row scanner) (models.Purchase, error) {
	var p models.Purchase
	var createdAt, updatedAt int64
	var paidAt sql.NullInt64
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.BottleID,
		&p.VenueID,
		&p.PaymentStatus,
		&p.RemainingVolumeML,
		&createdAt,
		&paidAt,
		&updatedAt,
	); err != nil {
		return models.Purchase{}, err
	}
	p.CreatedAt = fromUnix(createdAt)
	p.PaidAt = nullTimePtr(paidAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return p, nil
}

func scanRedemption(row scanner) (models.Redemption, error) {
	var r models.Redemption
	var createdAt, expiresAt int64
	var servedAt sql.NullInt64
	var servedBy sql.NullString
	if err := row.Scan(
		&r.ID,
		&r.PurchaseID,
		&r.UserID,
		&r.PegVolumeML,
		&r.Token,
		&r.Status,
		&createdAt,
		&servedAt,
		&servedBy,
		&expiresAt,
	); err != nil {
		return models.Redemption{}, err
	}
	r.CreatedAt = fromUnix(createdAt)
	r.ServedAt = nullTimePtr(servedAt)
	r.ServedBy = nullStringPtr(servedBy)
	r.ExpiresAt = fromUnix(expiresAt)
	return r, nil
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTimePtr(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromUnix(value.Int64)
	return &t
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}

var _ store.Store = (*Store)(nil)
