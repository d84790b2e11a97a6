// Package store persists ingested mail records to PostgreSQL.
package store

import (
	"database/sql"
	"fmt"

	// PostgreSQL driver
	_ "github.com/lib/pq"
)

// Open connects to PostgreSQL using the given connection URL and verifies
// the connection with a ping. The caller owns the returned pool's lifecycle.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
