package store

// Schema version 1. Applied inside one transaction guarded by
// PRAGMA user_version so reopening an existing database is a no-op.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS brands (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  name            TEXT NOT NULL,
  normalized_name TEXT NOT NULL UNIQUE,
  created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS models (
  id              INTEGER PRIMARY KEY AUTOINCREMENT,
  brand_id        INTEGER NOT NULL REFERENCES brands(id),
  name            TEXT NOT NULL,
  normalized_name TEXT NOT NULL,
  created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (brand_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS listings (
  id               INTEGER PRIMARY KEY AUTOINCREMENT,
  source           TEXT NOT NULL,
  source_id        TEXT NOT NULL,
  brand_id         INTEGER REFERENCES brands(id),
  model_id         INTEGER REFERENCES models(id),
  title            TEXT NOT NULL,
  description      TEXT NOT NULL DEFAULT '',
  price            INTEGER NOT NULL,
  original_price   INTEGER NOT NULL,
  is_negotiable    INTEGER NOT NULL DEFAULT 0,
  year             INTEGER NOT NULL,
  mileage          INTEGER NOT NULL DEFAULT 0,
  hand             INTEGER NOT NULL DEFAULT 0,
  engine_volume    INTEGER NOT NULL DEFAULT 0,
  horsepower       INTEGER NOT NULL DEFAULT 0,
  doors            INTEGER NOT NULL DEFAULT 0,
  seats            INTEGER NOT NULL DEFAULT 0,
  fuel_type        TEXT NOT NULL DEFAULT '',
  transmission     TEXT NOT NULL DEFAULT '',
  body_type        TEXT NOT NULL DEFAULT '',
  color            TEXT NOT NULL DEFAULT '',
  city             TEXT NOT NULL DEFAULT '',
  neighborhood     TEXT NOT NULL DEFAULT '',
  is_imported      INTEGER NOT NULL DEFAULT 0,
  is_accident_free INTEGER NOT NULL DEFAULT 1,
  status           TEXT NOT NULL DEFAULT 'active',
  source_url       TEXT NOT NULL DEFAULT '',
  thumbnail_url    TEXT NOT NULL DEFAULT '',
  attributes       TEXT NOT NULL DEFAULT '{}',
  content_hash     TEXT NOT NULL,
  created_at       TIMESTAMP NOT NULL,
  updated_at       TIMESTAMP NOT NULL,
  last_seen_at     TIMESTAMP NOT NULL,
  UNIQUE (source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_listings_brand    ON listings(brand_id);
CREATE INDEX IF NOT EXISTS idx_listings_status   ON listings(status);
CREATE INDEX IF NOT EXISTS idx_listings_price    ON listings(price);
CREATE INDEX IF NOT EXISTS idx_listings_year     ON listings(year);
CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen_at);

CREATE TABLE IF NOT EXISTS listing_history (
  id                   INTEGER PRIMARY KEY AUTOINCREMENT,
  listing_id           INTEGER NOT NULL REFERENCES listings(id),
  price                INTEGER NOT NULL,
  mileage              INTEGER NOT NULL DEFAULT 0,
  status               TEXT NOT NULL,
  price_change         INTEGER NOT NULL DEFAULT 0,
  price_change_percent REAL NOT NULL DEFAULT 0,
  days_on_market       INTEGER NOT NULL DEFAULT 0,
  recorded_at          TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_listing ON listing_history(listing_id);
`

// migrate applies the schema, bumping user_version so future versions can
// layer migrations on top.
func (s *Store) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&version); err != nil {
		return err
	}
	if version >= 1 {
		return tx.Commit()
	}

	if _, err := tx.Exec(schemaV1); err != nil {
		return err
	}
	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}
