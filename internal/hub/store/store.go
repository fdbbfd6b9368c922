// Package store implements the development hub's API key store backed by a
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding hashed API keys.
type Store struct {
	db     *sql.DB
	pepper string
}

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	key_hash   TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash);
`

// Open creates or opens the SQLite database at path, runs migrations, and
// enables WAL mode.  The pepper participates in key hashing and must stay
// stable for the lifetime of the database.
func Open(path, pepper string) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &Store{db: db, pepper: pepper}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// APIKey is one stored key record.  The plaintext key is only ever returned
// once, at creation time.
type APIKey struct {
	ID        int64
	Name      string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

// CreateKey records a new key under the given label.  The caller hashes the
// plaintext before handing it over; plaintext never reaches the store.
func (s *Store) CreateKey(ctx context.Context, name, keyHash string) (APIKey, error) {
	rec := APIKey{
		Name:      strings.TrimSpace(name),
		KeyHash:   keyHash,
		CreatedAt: time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO api_keys(name, key_hash, created_at, revoked_at)
VALUES(?, ?, ?, NULL)`, rec.Name, rec.KeyHash, rec.CreatedAt)
	if err != nil {
		return APIKey{}, err
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return APIKey{}, err
	}
	return rec, nil
}

// ListKeys returns all key records, newest first.
func (s *Store) ListKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, key_hash, created_at, revoked_at
FROM api_keys
ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []APIKey
	for rows.Next() {
		var k APIKey
		var revoked sql.NullTime
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.CreatedAt, &revoked); err != nil {
			return nil, err
		}
		if revoked.Valid {
			t := revoked.Time
			k.RevokedAt = &t
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RevokeKey marks a key as revoked.  Revoking an unknown or already revoked
// key returns [sql.ErrNoRows].
func (s *Store) RevokeKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ValidateHash reports whether an unrevoked key with the given hash exists.
func (s *Store) ValidateHash(ctx context.Context, keyHash string) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL`, keyHash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Pepper returns the pepper this store hashes with.
func (s *Store) Pepper() string {
	return s.pepper
}

func ensureParentDir(path string) error {
	base, _, _ := strings.Cut(path, "?")
	dir := filepath.Dir(base)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
