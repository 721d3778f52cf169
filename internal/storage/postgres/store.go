package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/storage"
)

const uniqueViolation = "23505"

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Timeout  time.Duration
}

func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslMode)
}

type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  *logrus.Logger
}

func Open(cfg Config, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db, cfg.Timeout, logger), nil
}

func New(db *sql.DB, timeout time.Duration, logger *logrus.Logger) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout, logger: logger}
}

// WaitReady pings the database until it answers or attempts run out.
func (s *Store) WaitReady(ctx context.Context, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = s.Ping(ctx); err == nil {
			s.logger.Info("Database connection established")
			return nil
		}
		s.logger.WithField("attempt", i+1).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, err)
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			email VARCHAR(320) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			category VARCHAR(32) NOT NULL,
			base_price NUMERIC(14,2) NOT NULL CHECK (base_price >= 0),
			order_fee NUMERIC(14,2) NOT NULL DEFAULT 0,
			images TEXT[] NOT NULL DEFAULT '{}',
			specifications JSONB NOT NULL DEFAULT '{}',
			option_groups JSONB NOT NULL DEFAULT '[]',
			add_ons JSONB NOT NULL DEFAULT '[]',
			incentives JSONB NOT NULL DEFAULT '[]',
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id),
			product_id VARCHAR(64) NOT NULL REFERENCES products(id),
			selection JSONB NOT NULL,
			shipping_address JSONB NOT NULL,
			line_items JSONB NOT NULL DEFAULT '[]',
			total_price NUMERIC(14,2) NOT NULL CHECK (total_price >= 0),
			status VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category) WHERE NOT is_deleted`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id)`,
	}

	for _, query := range queries {
		if err := s.exec(ctx, query); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, query, args...)
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// jsonb marshals v for a JSONB column.
func jsonb(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

var _ storage.Store = (*Store)(nil)
