package db

import (
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the gateway to the episode, podcast and config tables. Writes are
// plain last-write-wins updates.
type Store struct {
	DB *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{DB: db}
}

// Connect opens the Postgres connection and verifies it.
func Connect(dbURL string) (*sqlx.DB, error) {
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	conn, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err = conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("Database connection established")
	return conn, nil
}
