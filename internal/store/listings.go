package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/motorscan/motorscan/internal/normalize"
)

// Outcome classifies what an upsert did to the stored listing.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
)

// StoredListing is one row of the listings table.
type StoredListing struct {
	ID            int64     `json:"id"`
	Source        string    `json:"source"`
	SourceID      string    `json:"source_id"`
	BrandID       int64     `json:"brand_id"`
	ModelID       int64     `json:"model_id"`
	Title         string    `json:"title"`
	Price         int64     `json:"price"`
	OriginalPrice int64     `json:"original_price"`
	Year          int       `json:"year"`
	Mileage       int       `json:"mileage"`
	Hand          int       `json:"hand"`
	Status        string    `json:"status"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

// HistoryEntry is one row of the listing_history table.
type HistoryEntry struct {
	ID                 int64     `json:"id"`
	ListingID          int64     `json:"listing_id"`
	Price              int64     `json:"price"`
	Mileage            int       `json:"mileage"`
	Status             string    `json:"status"`
	PriceChange        int64     `json:"price_change"`
	PriceChangePercent float64   `json:"price_change_percent"`
	DaysOnMarket       int       `json:"days_on_market"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// UpsertListing writes one normalized listing, keyed by (source, source_id).
//
// A listing absent from the table is inserted. A present listing whose
// content hash matches only has last_seen_at advanced. A changed listing is
// updated in place; created_at and the surrogate id are never touched, and
// a price or status change appends a history row.
func (s *Store) UpsertListing(ctx context.Context, l *normalize.Listing, brandID, modelID int64) (Outcome, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		id          int64
		storedHash  string
		storedPrice int64
		storedState string
		createdAt   time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, content_hash, price, status, created_at
		FROM listings WHERE source = ? AND source_id = ?;`,
		l.Source, l.SourceID,
	).Scan(&id, &storedHash, &storedPrice, &storedState, &createdAt)

	switch {
	case err == sql.ErrNoRows:
		if err := s.insertListing(ctx, tx, l, brandID, modelID, now); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit insert: %w", err)
		}
		return OutcomeCreated, nil

	case err != nil:
		return "", fmt.Errorf("failed to look up listing: %w", err)
	}

	if storedHash == l.ContentHash {
		if _, err := tx.ExecContext(ctx,
			`UPDATE listings SET last_seen_at = ? WHERE id = ?;`, now, id,
		); err != nil {
			return "", fmt.Errorf("failed to touch listing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("failed to commit touch: %w", err)
		}
		return OutcomeUnchanged, nil
	}

	// A disallowed status transition keeps the stored status; the rest of
	// the update still applies.
	newStatus := l.Status
	if !transitionAllowed(storedState, l.Status) {
		newStatus = storedState
	}

	attrs, err := marshalAttributes(l.Attributes)
	if err != nil {
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE listings SET
			brand_id = ?, model_id = ?, title = ?, description = ?,
			price = ?, is_negotiable = ?, year = ?, mileage = ?, hand = ?,
			engine_volume = ?, horsepower = ?, doors = ?, seats = ?,
			fuel_type = ?, transmission = ?, body_type = ?, color = ?,
			city = ?, neighborhood = ?, is_imported = ?, is_accident_free = ?,
			status = ?, source_url = ?, thumbnail_url = ?, attributes = ?,
			content_hash = ?, updated_at = ?, last_seen_at = ?
		WHERE id = ?;`,
		brandID, modelID, l.Title, l.Description,
		l.Price, l.IsNegotiable, l.Year, l.Mileage, l.Hand,
		l.EngineVolume, l.Horsepower, l.Doors, l.Seats,
		l.FuelType, l.Transmission, l.BodyType, l.Color,
		l.City, l.Neighborhood, l.IsImported, l.IsAccidentFree,
		newStatus, l.SourceURL, l.ThumbnailURL, attrs,
		l.ContentHash, now, now,
		id,
	); err != nil {
		return "", fmt.Errorf("failed to update listing: %w", err)
	}

	if l.Price != storedPrice || newStatus != storedState {
		if err := appendHistory(ctx, tx, historyRow{
			listingID:   id,
			price:       l.Price,
			mileage:     l.Mileage,
			status:      newStatus,
			priceChange: l.Price - storedPrice,
			priceOld:    storedPrice,
			createdAt:   createdAt,
			recordedAt:  now,
		}); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit update: %w", err)
	}
	return OutcomeUpdated, nil
}

func (s *Store) insertListing(ctx context.Context, tx *sql.Tx, l *normalize.Listing, brandID, modelID int64, now time.Time) error {
	attrs, err := marshalAttributes(l.Attributes)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO listings (
			source, source_id, brand_id, model_id, title, description,
			price, original_price, is_negotiable, year, mileage, hand,
			engine_volume, horsepower, doors, seats,
			fuel_type, transmission, body_type, color, city, neighborhood,
			is_imported, is_accident_free, status, source_url, thumbnail_url,
			attributes, content_hash, created_at, updated_at, last_seen_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		l.Source, l.SourceID, brandID, modelID, l.Title, l.Description,
		l.Price, l.Price, l.IsNegotiable, l.Year, l.Mileage, l.Hand,
		l.EngineVolume, l.Horsepower, l.Doors, l.Seats,
		l.FuelType, l.Transmission, l.BodyType, l.Color, l.City, l.Neighborhood,
		l.IsImported, l.IsAccidentFree, l.Status, l.SourceURL, l.ThumbnailURL,
		attrs, l.ContentHash, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	return nil
}

// transitionAllowed is the status transition table. Sold is final: a scrape
// never resurrects a sold listing. Inactive and expired listings may be
// re-sighted as active or move on to sold/expired.
func transitionAllowed(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case normalize.StatusSold:
		return false
	case normalize.StatusActive, normalize.StatusPending:
		return true
	case normalize.StatusInactive, normalize.StatusExpired:
		return to == normalize.StatusActive || to == normalize.StatusSold || to == normalize.StatusExpired
	default:
		return true
	}
}

type historyRow struct {
	listingID   int64
	price       int64
	mileage     int
	status      string
	priceChange int64
	priceOld    int64
	createdAt   time.Time
	recordedAt  time.Time
}

func appendHistory(ctx context.Context, tx *sql.Tx, row historyRow) error {
	var percent float64
	if row.priceOld > 0 {
		percent = float64(row.priceChange) / float64(row.priceOld) * 100
	}
	days := int(row.recordedAt.Sub(row.createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO listing_history (
			listing_id, price, mileage, status,
			price_change, price_change_percent, days_on_market, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		row.listingID, row.price, row.mileage, row.status,
		row.priceChange, percent, days, row.recordedAt,
	); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func marshalAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return string(b), nil
}

// GetListing fetches one listing by its source key. Returns nil when the
// listing does not exist.
func (s *Store) GetListing(ctx context.Context, source, sourceID string) (*StoredListing, error) {
	var (
		l       StoredListing
		brandID sql.NullInt64
		modelID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, source_id, brand_id, model_id, title,
		       price, original_price, year, mileage, hand, status,
		       content_hash, created_at, updated_at, last_seen_at
		FROM listings WHERE source = ? AND source_id = ?;`,
		source, sourceID,
	).Scan(
		&l.ID, &l.Source, &l.SourceID, &brandID, &modelID, &l.Title,
		&l.Price, &l.OriginalPrice, &l.Year, &l.Mileage, &l.Hand, &l.Status,
		&l.ContentHash, &l.CreatedAt, &l.UpdatedAt, &l.LastSeenAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select listing: %w", err)
	}

	l.BrandID = brandID.Int64
	l.ModelID = modelID.Int64
	return &l, nil
}

// History returns a listing's history rows, oldest first.
func (s *Store) History(ctx context.Context, listingID int64) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, price, mileage, status,
		       price_change, price_change_percent, days_on_market, recorded_at
		FROM listing_history WHERE listing_id = ? ORDER BY id;`,
		listingID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(
			&e.ID, &e.ListingID, &e.Price, &e.Mileage, &e.Status,
			&e.PriceChange, &e.PriceChangePercent, &e.DaysOnMarket, &e.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkInactiveOlderThan marks active listings unseen since the cutoff as
// inactive and appends a history row for each. Returns how many listings
// were marked.
func (s *Store) MarkInactiveOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	now := s.now()
	cutoff := now.Add(-age)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, price, mileage, created_at
		FROM listings WHERE status = 'active' AND last_seen_at < ?;`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to select stale listings: %w", err)
	}

	type stale struct {
		id        int64
		price     int64
		mileage   int
		createdAt time.Time
	}
	var victims []stale
	for rows.Next() {
		var v stale
		if err := rows.Scan(&v.id, &v.price, &v.mileage, &v.createdAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale listing: %w", err)
		}
		victims = append(victims, v)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, v := range victims {
		if _, err := tx.ExecContext(ctx,
			`UPDATE listings SET status = ?, updated_at = ? WHERE id = ?;`,
			normalize.StatusInactive, now, v.id,
		); err != nil {
			return 0, fmt.Errorf("failed to mark listing inactive: %w", err)
		}
		if err := appendHistory(ctx, tx, historyRow{
			listingID:  v.id,
			price:      v.price,
			mileage:    v.mileage,
			status:     normalize.StatusInactive,
			priceOld:   v.price,
			createdAt:  v.createdAt,
			recordedAt: now,
		}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return int64(len(victims)), nil
}
