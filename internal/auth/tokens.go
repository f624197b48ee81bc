// Package auth validates the caller tokens carried in callback requests.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/digitalservices/queue-service/config"
)

// ErrUnsupportedDriver is returned for token databases other than postgres and mysql
var ErrUnsupportedDriver = errors.New("unsupported token database driver")

// Validator reports whether a token may call the callback surface
type Validator interface {
	IsValid(ctx context.Context, token string) (bool, error)
}

// TokenStore validates tokens against the user_token table of the token database
type TokenStore struct {
	db    *sql.DB
	query string
}

// Open connects to the token database described by cfg
func Open(ctx context.Context, cfg config.AuthConfig) (*TokenStore, error) {
	dsn := cfg.URL
	switch cfg.Driver {
	case "postgres":
	case "mysql":
		mc, err := mysql.ParseDSN(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.ParseTime = true
		if mc.Timeout == 0 {
			mc.Timeout = 5 * time.Second
		}
		dsn = mc.FormatDSN()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open token database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping token database: %w", err)
	}

	return NewTokenStore(db, cfg.Driver), nil
}

// NewTokenStore wraps an open database handle
func NewTokenStore(db *sql.DB, driver string) *TokenStore {
	query := `SELECT COUNT(*) FROM user_token WHERE token = $1`
	if driver == "mysql" {
		query = `SELECT COUNT(*) FROM user_token WHERE token = ?`
	}
	return &TokenStore{db: db, query: query}
}

// IsValid reports whether token exists in the token table
func (s *TokenStore) IsValid(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, s.query, token).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to validate token: %w", err)
	}
	return n > 0, nil
}

// Close closes the database handle
func (s *TokenStore) Close() error {
	return s.db.Close()
}

// Static accepts a fixed set of tokens
type Static map[string]bool

// NewStatic builds a Static validator from tokens
func NewStatic(tokens ...string) Static {
	s := make(Static, len(tokens))
	for _, t := range tokens {
		s[t] = true
	}
	return s
}

// IsValid implements Validator
func (s Static) IsValid(_ context.Context, token string) (bool, error) {
	return s[token], nil
}

// AllowAll accepts every token. Used when auth.disabled is set.
type AllowAll struct{}

// IsValid implements Validator
func (AllowAll) IsValid(context.Context, string) (bool, error) {
	return true, nil
}
