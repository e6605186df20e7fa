package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Catalog is the SQLite metadata store: one row per stored image, the
// rendered-variant index, and the feed page table used for Peapix date
// inference.
type Catalog struct {
	db   *sql.DB
	path string
}

// OpenCatalog opens (creating if needed) the catalogue database and brings
// its schema up to date.
func OpenCatalog(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping catalogue: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run catalogue migrations: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Page is one feed page entry, keyed by the service's numeric page id.
type Page struct {
	ID      int64
	Country string
	Date    string
	PageURL string
}

// ExistingPages returns all known feed pages keyed by id.
func (c *Catalog) ExistingPages() (map[int64]Page, error) {
	rows, err := c.db.Query("SELECT pageId, country, date, pageUrl FROM pages")
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := make(map[int64]Page)
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Country, &p.Date, &p.PageURL); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		pages[p.ID] = p
	}
	return pages, rows.Err()
}

// UpsertPages inserts or replaces feed pages. When keep is positive, only
// the newest keep rows (by page id) survive.
func (c *Catalog) UpsertPages(pages []Page, keep int) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin page upsert: %w", err)
	}
	for _, p := range pages {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO pages (pageId, country, date, pageUrl) VALUES (?, ?, ?, ?)",
			p.ID, p.Country, p.Date, p.PageURL,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert page %d: %w", p.ID, err)
		}
	}
	if keep > 0 {
		if _, err := tx.Exec(
			"DELETE FROM pages WHERE pageId NOT IN (SELECT pageId FROM pages ORDER BY pageId DESC LIMIT ?)",
			keep,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to trim pages: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit page upsert: %w", err)
	}
	return nil
}

// SaveImage upserts the catalogue row for a stored image.
func (c *Catalog) SaveImage(rec ImageRecord) error {
	_, err := c.db.Exec(`
		INSERT INTO images (date, region, title, copyright, page_url, source_url, local_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, region) DO UPDATE SET
			title = excluded.title,
			copyright = excluded.copyright,
			page_url = excluded.page_url,
			source_url = excluded.source_url,
			local_path = excluded.local_path`,
		rec.Date, rec.Region, rec.Title, rec.Copyright, rec.PageURL, rec.SourceURL, rec.LocalPath,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert image row: %w", err)
	}
	return nil
}

// GetImage looks up the catalogue row for (date, region).
func (c *Catalog) GetImage(date, region string) (ImageRecord, bool, error) {
	var rec ImageRecord
	err := c.db.QueryRow(
		"SELECT date, region, title, copyright, page_url, source_url, local_path FROM images WHERE date = ? AND region = ?",
		date, region,
	).Scan(&rec.Date, &rec.Region, &rec.Title, &rec.Copyright, &rec.PageURL, &rec.SourceURL, &rec.LocalPath)
	if err == sql.ErrNoRows {
		return ImageRecord{}, false, nil
	}
	if err != nil {
		return ImageRecord{}, false, fmt.Errorf("failed to query image row: %w", err)
	}
	return rec, true, nil
}

// imageSeq maps (date, region) keys to catalogue insertion order, used as
// the eviction tie-break.
func (c *Catalog) imageSeq() (map[string]int64, error) {
	rows, err := c.db.Query("SELECT date, region, rowid FROM images")
	if err != nil {
		return nil, fmt.Errorf("failed to query image order: %w", err)
	}
	defer rows.Close()

	seq := make(map[string]int64)
	for rows.Next() {
		var date, region string
		var rowid int64
		if err := rows.Scan(&date, &region, &rowid); err != nil {
			return nil, fmt.Errorf("failed to scan image order row: %w", err)
		}
		seq[date+"_"+region] = rowid
	}
	return seq, rows.Err()
}

// DeleteImage removes the catalogue row and its variant rows, returning the
// recorded variant paths so the caller can remove the files.
func (c *Catalog) DeleteImage(date, region string) ([]string, error) {
	paths, err := c.VariantPaths(date, region)
	if err != nil {
		return nil, err
	}
	tx, err := c.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin image delete: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM variants WHERE date = ? AND region = ?", date, region); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete variant rows: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM images WHERE date = ? AND region = ?", date, region); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("failed to delete image row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit image delete: %w", err)
	}
	return paths, nil
}

// VariantPaths lists the rendered variant files recorded for an image.
func (c *Catalog) VariantPaths(date, region string) ([]string, error) {
	rows, err := c.db.Query("SELECT path FROM variants WHERE date = ? AND region = ?", date, region)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan variant row: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Variant returns the recorded path and spec fingerprint for a purpose.
func (c *Catalog) Variant(date, region, purpose string) (path, specHash string, ok bool, err error) {
	err = c.db.QueryRow(
		"SELECT path, spec_hash FROM variants WHERE date = ? AND region = ? AND purpose = ?",
		date, region, purpose,
	).Scan(&path, &specHash)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to query variant: %w", err)
	}
	return path, specHash, true, nil
}

// SetVariant records a rendered variant and its spec fingerprint.
func (c *Catalog) SetVariant(date, region, purpose, path, specHash string) error {
	_, err := c.db.Exec(`
		INSERT INTO variants (date, region, purpose, path, spec_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, region, purpose) DO UPDATE SET
			path = excluded.path,
			spec_hash = excluded.spec_hash`,
		date, region, purpose, path, specHash,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert variant: %w", err)
	}
	return nil
}
