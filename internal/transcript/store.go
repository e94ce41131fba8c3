// Package transcript archives the reconciled log of chat sessions in
// PostgreSQL. Each entry is one appended message or one membership change.
package transcript

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/roomchat/roomchat/internal/chat"
	"github.com/roomchat/roomchat/internal/media"
)

//go:embed migrations/*.sql
var migrations embed.FS

// KindMembership marks an entry recording a member list replacement.
const KindMembership = "membership"

// Entry is one archived row.
type Entry struct {
	ID         int64
	SessionID  string
	Room       string
	Kind       string // text | media | membership
	Author     string
	Body       string
	MediaURL   string
	Category   string
	Members    []chat.Member
	ReceivedAt time.Time
}

// Message rebuilds the chat message of a text or media entry.
func (e Entry) Message() chat.Message {
	return chat.Message{
		Kind:     chat.Kind(e.Kind),
		Author:   e.Author,
		Body:     e.Body,
		MediaURL: e.MediaURL,
		Category: media.Category(e.Category),
	}
}

// Store manages transcript entries in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with lib/pq and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: postgres connection failed: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// Migrate applies the embedded schema migrations. An up-to-date schema is
// not an error.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("transcript: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("transcript: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("transcript: migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("transcript: migrate up: %w", err)
	}
	return nil
}

// NewStore creates a transcript store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry.
func (s *Store) Append(ctx context.Context, e Entry) error {
	var members []byte
	if e.Kind == KindMembership {
		var err error
		members, err = json.Marshal(e.Members)
		if err != nil {
			return fmt.Errorf("transcript: marshal members: %w", err)
		}
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}

	const query = `
		INSERT INTO transcript_entries (session_id, room, kind, author, body, media_url, category, members, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		e.SessionID, e.Room, e.Kind, e.Author, e.Body, e.MediaURL, e.Category, members, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("transcript: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit entries of room, oldest first.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]Entry, error) {
	const query = `
		SELECT id, session_id, room, kind, author, body, media_url, category, members, received_at
		FROM (
			SELECT * FROM transcript_entries
			WHERE room = $1
			ORDER BY received_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY received_at, id`

	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var members []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Room, &e.Kind, &e.Author, &e.Body, &e.MediaURL, &e.Category, &members, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("transcript: scan: %w", err)
		}
		if len(members) > 0 {
			if err := json.Unmarshal(members, &e.Members); err != nil {
				return nil, fmt.Errorf("transcript: unmarshal members: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: rows: %w", err)
	}
	return out, nil
}
