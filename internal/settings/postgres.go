package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the voice_settings table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment. A single
// row per profile keeps reads trivial; "default" is the only profile today.
const Schema = `
CREATE TABLE IF NOT EXISTS voice_settings (
    profile           TEXT PRIMARY KEY,
    language          TEXT NOT NULL,
    rate              DOUBLE PRECISION NOT NULL,
    pitch             DOUBLE PRECISION NOT NULL,
    volume            DOUBLE PRECISION NOT NULL,
    auto_speak        BOOLEAN NOT NULL,
    wake_word_enabled BOOLEAN NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db      DB
	profile string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithProfile selects the settings row to read and write. Default "default".
func WithProfile(profile string) PostgresOption {
	return func(s *PostgresStore) {
		if profile != "" {
			s.profile = profile
		}
	}
}

// NewPostgresStore creates a PostgresStore for the "default" profile. The
// caller is responsible for calling [PostgresStore.Migrate] before issuing
// queries.
func NewPostgresStore(db DB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, profile: "default"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("settings: migrate: %w", err)
	}
	return nil
}

// Load returns the stored settings, or Defaults() when no row exists.
func (s *PostgresStore) Load(ctx context.Context) (VoiceSettings, error) {
	const query = `
		SELECT language, rate, pitch, volume, auto_speak, wake_word_enabled
		FROM voice_settings
		WHERE profile = $1`

	var v VoiceSettings
	err := s.db.QueryRow(ctx, query, s.profile).Scan(
		&v.Language, &v.Rate, &v.Pitch, &v.Volume, &v.AutoSpeak, &v.WakeWordEnabled,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Defaults(), nil
	}
	if err != nil {
		return VoiceSettings{}, fmt.Errorf("settings: load: %w", err)
	}
	return v, nil
}

// Save upserts the settings row.
func (s *PostgresStore) Save(ctx context.Context, v VoiceSettings) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("settings: refusing to save invalid settings: %w", err)
	}

	const query = `
		INSERT INTO voice_settings (
			profile, language, rate, pitch, volume, auto_speak, wake_word_enabled
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (profile) DO UPDATE SET
			language = EXCLUDED.language,
			rate = EXCLUDED.rate,
			pitch = EXCLUDED.pitch,
			volume = EXCLUDED.volume,
			auto_speak = EXCLUDED.auto_speak,
			wake_word_enabled = EXCLUDED.wake_word_enabled,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query,
		s.profile, v.Language, v.Rate, v.Pitch, v.Volume, v.AutoSpeak, v.WakeWordEnabled,
	); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}
