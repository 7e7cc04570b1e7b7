package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store represents the SQLite storage implementation
type Store struct {
	db *sql.DB
}

// StoredTicket is the persisted form of one webhook ticket.
type StoredTicket struct {
	UserID     string    `json:"user_id"`
	TicketID   string    `json:"ticket_id"`
	Body       []byte    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStore creates a new SQLite store instance
func NewStore(dbPath string) (*Store, error) {
	// Ensure target directory exists (e.g., ./data)
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		dsn += sqliteParams
	}

	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate performs database migrations
func (s *Store) migrate() error {
	migrations := []string{
		// Client-side settings (client identifier lives here)
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// Latest version of every ticket, isolated per user
		`CREATE TABLE IF NOT EXISTS tickets (
			user_id TEXT NOT NULL,
			ticket_id TEXT NOT NULL,
			body TEXT NOT NULL,
			received_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, ticket_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tickets_user_id ON tickets(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tickets_received_at ON tickets(received_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// GetSetting reads a setting. The bool reports whether the key exists.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting writes a setting, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// Settings adapts the settings table to a plain key/value interface.
type Settings struct {
	store *Store
}

// Settings returns the key/value view of the settings table.
func (s *Store) Settings() Settings {
	return Settings{store: s}
}

func (st Settings) Get(ctx context.Context, key string) (string, bool, error) {
	return st.store.GetSetting(ctx, key)
}

func (st Settings) Set(ctx context.Context, key, value string) error {
	return st.store.SetSetting(ctx, key, value)
}

// UpsertTicket stores the latest version of a ticket for a user.
func (s *Store) UpsertTicket(ctx context.Context, userID, ticketID string, body []byte, receivedAt time.Time) error {
	now := time.Now().UnixNano()
	query := `INSERT INTO tickets (user_id, ticket_id, body, received_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, ticket_id) DO UPDATE SET
			body = excluded.body,
			received_at = excluded.received_at,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, userID, ticketID, string(body), receivedAt.UnixNano(), now, now)
	if err != nil {
		return fmt.Errorf("failed to save ticket %s: %w", ticketID, err)
	}
	return nil
}

// GetTicket returns one ticket, or ErrNotFound.
func (s *Store) GetTicket(ctx context.Context, userID, ticketID string) (StoredTicket, error) {
	query := `SELECT user_id, ticket_id, body, received_at, created_at, updated_at
		FROM tickets WHERE user_id = ? AND ticket_id = ?`

	rows, err := s.db.QueryContext(ctx, query, userID, ticketID)
	if err != nil {
		return StoredTicket{}, fmt.Errorf("failed to query ticket %s: %w", ticketID, err)
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return StoredTicket{}, err
	}
	if len(tickets) == 0 {
		return StoredTicket{}, ErrNotFound
	}
	return tickets[0], nil
}

// ListTickets returns every ticket of a user, most recently received first.
func (s *Store) ListTickets(ctx context.Context, userID string) ([]StoredTicket, error) {
	query := `SELECT user_id, ticket_id, body, received_at, created_at, updated_at
		FROM tickets WHERE user_id = ? ORDER BY received_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	return scanTickets(rows)
}

// CountTickets counts tickets of a user, or of every user when userID is empty.
func (s *Store) CountTickets(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(1) FROM tickets`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return n, nil
}

// ClearTickets deletes every ticket of a user and reports how many were removed.
func (s *Store) ClearTickets(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear tickets for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared tickets: %w", err)
	}
	return n, nil
}

func scanTickets(rows *sql.Rows) ([]StoredTicket, error) {
	var tickets []StoredTicket
	for rows.Next() {
		var t StoredTicket
		var body string
		var receivedAt, createdAt, updatedAt int64

		if err := rows.Scan(&t.UserID, &t.TicketID, &body, &receivedAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}

		t.Body = []byte(body)
		t.ReceivedAt = time.Unix(0, receivedAt)
		t.CreatedAt = time.Unix(0, createdAt)
		t.UpdatedAt = time.Unix(0, updatedAt)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tickets: %w", err)
	}
	return tickets, nil
}
