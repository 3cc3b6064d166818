package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/motorscan/motorscan/internal/normalize"
)

// GetOrCreateBrand returns the id for a brand, inserting it when absent.
// The insert-then-select runs in one transaction against the unique
// normalized_name constraint, so concurrent callers converge on one row.
func (s *Store) GetOrCreateBrand(ctx context.Context, name string) (int64, error) {
	normalized := normalize.NormalizeName(name)
	if normalized == "" {
		return 0, fmt.Errorf("empty brand name")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO brands (name, normalized_name) VALUES (?, ?)
		ON CONFLICT (normalized_name) DO NOTHING;`,
		name, normalized,
	); err != nil {
		return 0, fmt.Errorf("failed to insert brand: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM brands WHERE normalized_name = ?;`, normalized,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to select brand: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit brand: %w", err)
	}
	return id, nil
}

// GetOrCreateModel returns the id for a model under a brand, inserting it
// when absent. Uniqueness is scoped to (brand_id, normalized_name): two
// brands may both have a model "3".
func (s *Store) GetOrCreateModel(ctx context.Context, brandID int64, name string) (int64, error) {
	normalized := normalize.NormalizeName(name)
	if normalized == "" {
		return 0, fmt.Errorf("empty model name")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO models (brand_id, name, normalized_name) VALUES (?, ?, ?)
		ON CONFLICT (brand_id, normalized_name) DO NOTHING;`,
		brandID, name, normalized,
	); err != nil {
		return 0, fmt.Errorf("failed to insert model: %w", err)
	}

	var id int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM models WHERE brand_id = ? AND normalized_name = ?;`,
		brandID, normalized,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to select model: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit model: %w", err)
	}
	return id, nil
}

// BrandName returns the stored display name for a brand id.
func (s *Store) BrandName(ctx context.Context, id int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM brands WHERE id = ?;`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("brand %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to select brand name: %w", err)
	}
	return name, nil
}

// seedBrands is the initial brand/model dictionary. Resolution during a
// scrape creates anything missing, so the seed only warms up lookups and
// gives a fresh database recognizable content.
var seedBrands = map[string][]string{
	"Toyota":     {"Corolla", "Camry", "RAV4", "Prius", "Yaris", "C-HR", "Land Cruiser"},
	"Mazda":      {"2", "3", "6", "CX-5", "CX-30", "CX-3"},
	"Hyundai":    {"i10", "i20", "i30", "Tucson", "Kona", "IONIQ 5"},
	"Kia":        {"Picanto", "Rio", "Sportage", "Niro", "Ceed", "Stonic"},
	"Honda":      {"Civic", "CR-V", "Jazz", "HR-V", "Accord"},
	"Nissan":     {"Qashqai", "Juke", "Micra", "X-Trail", "Leaf"},
	"Suzuki":     {"Swift", "Vitara", "Ignis", "S-Cross", "Baleno"},
	"Volkswagen": {"Golf", "Polo", "Tiguan", "Passat", "T-Roc"},
	"Skoda":      {"Octavia", "Fabia", "Superb", "Kodiaq", "Karoq"},
	"Seat":       {"Ibiza", "Leon", "Arona", "Ateca"},
	"Renault":    {"Clio", "Megane", "Captur", "Zoe"},
	"Peugeot":    {"208", "2008", "308", "3008"},
	"Mitsubishi": {"Outlander", "ASX", "Eclipse Cross"},
	"Subaru":     {"Impreza", "Forester", "XV", "Outback"},
}

// Seed idempotently inserts the initial brand/model dictionary.
func (s *Store) Seed(ctx context.Context) error {
	for brand, models := range seedBrands {
		brandID, err := s.GetOrCreateBrand(ctx, brand)
		if err != nil {
			return fmt.Errorf("failed to seed brand %s: %w", brand, err)
		}
		for _, model := range models {
			if _, err := s.GetOrCreateModel(ctx, brandID, model); err != nil {
				return fmt.Errorf("failed to seed model %s %s: %w", brand, model, err)
			}
		}
	}
	return nil
}
