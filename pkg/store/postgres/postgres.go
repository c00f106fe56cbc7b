package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campuspay/pkg/store"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresStore is a remote table store on PostgreSQL. All collections share
// one `records` table keyed by (collection, id); payloads are JSONB.
type PostgresStore struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Name     string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DefaultConfig returns default PostgreSQL configuration.
func DefaultConfig() Config {
	return Config{
		Name:     "postgres",
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "campuspay",
		SSLMode:  "disable",
	}
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// New opens a connection pool, pings it, and creates the schema if needed.
func New(cfg Config) (*PostgresStore, error) {
	if cfg.Name == "" {
		cfg.Name = "postgres"
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, name: cfg.Name, now: time.Now}
	if err := s.initTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init tables: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			data JSONB NOT NULL DEFAULT 'null'::jsonb,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_account ON records(collection, account_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the backend name.
func (s *PostgresStore) Name() string {
	return s.name
}

// Read returns matching records ordered by creation time.
func (s *PostgresStore) Read(ctx context.Context, collection store.Collection, filter store.Filter) ([]store.Record, error) {
	if !collection.Valid() {
		return nil, store.ErrUnknownCollection
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT id, account_id, data, created_at
		FROM records
		WHERE collection = $1 AND account_id = $2 AND ($3 = '' OR id = $3)
		ORDER BY created_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, string(collection), filter.AccountID, filter.ID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []store.Record{}
	for rows.Next() {
		var r store.Record
		var data []byte
		if err := rows.Scan(&r.ID, &r.AccountID, &data, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Data = json.RawMessage(data)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Write upserts record, assigning a UUID when it has none.
func (s *PostgresStore) Write(ctx context.Context, collection store.Collection, record store.Record) (store.Record, error) {
	if !collection.Valid() {
		return store.Record{}, store.ErrUnknownCollection
	}
	if err := record.Validate(); err != nil {
		return store.Record{}, err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now().UTC()
	}
	data := []byte(record.Data)
	if len(data) == 0 {
		data = []byte("null")
	}

	query := `
		INSERT INTO records (collection, id, account_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, account_id = EXCLUDED.account_id,
			created_at = GREATEST(records.created_at, EXCLUDED.created_at)
		RETURNING created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		string(collection), record.ID, record.AccountID, data, record.CreatedAt,
	).Scan(&record.CreatedAt)
	if err != nil {
		return store.Record{}, fmt.Errorf("upsert record: %w", err)
	}
	return record, nil
}

// Remove deletes the matching records.
func (s *PostgresStore) Remove(ctx context.Context, collection store.Collection, filter store.Filter) error {
	if !collection.Valid() {
		return store.ErrUnknownCollection
	}
	if err := filter.Validate(); err != nil {
		return err
	}

	query := `DELETE FROM records WHERE collection = $1 AND account_id = $2 AND ($3 = '' OR id = $3)`
	if _, err := s.db.ExecContext(ctx, query, string(collection), filter.AccountID, filter.ID); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
