package reminder

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the reminders table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS reminders (
    id         TEXT PRIMARY KEY,
    topic      TEXT NOT NULL,
    fire_at    TEXT NOT NULL,
    done       BOOLEAN NOT NULL DEFAULT false,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reminders_topic ON reminders(lower(topic));
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("reminder: migrate: %w", err)
	}
	return nil
}

// Create inserts a reminder.
func (s *PostgresStore) Create(ctx context.Context, r *Reminder) error {
	const query = `
		INSERT INTO reminders (id, topic, fire_at, done)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query, r.ID, r.Topic, r.When, r.Done).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("reminder: create: %w", err)
	}
	return nil
}

// List returns all pending reminders in creation order.
func (s *PostgresStore) List(ctx context.Context) ([]Reminder, error) {
	const query = `
		SELECT id, topic, fire_at, done, created_at
		FROM reminders
		WHERE NOT done
		ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reminder: list: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		var r Reminder
		if err := rows.Scan(&r.ID, &r.Topic, &r.When, &r.Done, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("reminder: list scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminder: list: %w", err)
	}
	return out, nil
}

// DeleteByTopic removes the oldest reminder whose topic contains topic.
func (s *PostgresStore) DeleteByTopic(ctx context.Context, topic string) (Reminder, error) {
	const query = `
		DELETE FROM reminders
		WHERE id = (
			SELECT id FROM reminders
			WHERE lower(topic) LIKE '%' || lower($1) || '%'
			ORDER BY created_at
			LIMIT 1
		)
		RETURNING id, topic, fire_at, done, created_at`

	var r Reminder
	err := s.db.QueryRow(ctx, query, topic).Scan(&r.ID, &r.Topic, &r.When, &r.Done, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reminder{}, ErrNotFound
	}
	if err != nil {
		return Reminder{}, fmt.Errorf("reminder: delete by topic: %w", err)
	}
	return r, nil
}
