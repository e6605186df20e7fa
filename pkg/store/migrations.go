package store

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	up      string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create_pages_table",
		up: `
			CREATE TABLE IF NOT EXISTS pages (
				pageId INTEGER PRIMARY KEY,
				country TEXT NOT NULL,
				date TEXT NOT NULL,
				pageUrl TEXT NOT NULL
			);
		`,
	},
	{
		version: 2,
		name:    "create_images_and_variants_tables",
		up: `
			CREATE TABLE IF NOT EXISTS images (
				date TEXT NOT NULL,
				region TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				copyright TEXT NOT NULL DEFAULT '',
				page_url TEXT NOT NULL DEFAULT '',
				source_url TEXT NOT NULL DEFAULT '',
				local_path TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (date, region)
			);

			CREATE TABLE IF NOT EXISTS variants (
				date TEXT NOT NULL,
				region TEXT NOT NULL,
				purpose TEXT NOT NULL,
				path TEXT NOT NULL,
				spec_hash TEXT NOT NULL,
				PRIMARY KEY (date, region, purpose)
			);
		`,
	},
}

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	currentVersion := 0
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.version, m.name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
