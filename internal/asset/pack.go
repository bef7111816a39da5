package asset

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
	_ "modernc.org/sqlite"
)

// Digest is the integrity hash stored next to every packed asset.
func Digest(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// VerifyDigest checks data against a stored digest.
func VerifyDigest(path string, data, digest []byte) error {
	if !bytes.Equal(Digest(data), digest) {
		return fmt.Errorf("%s: %w", path, ErrDigestMismatch)
	}
	return nil
}

// Pack is a single-file sqlite asset archive.
type Pack struct {
	db *sql.DB
}

func OpenPack(path string) (*Pack, error) {
	if path == "" {
		return nil, fmt.Errorf("empty pack path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pack %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("pack pragma: %w", err)
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS assets (
		path   TEXT PRIMARY KEY,
		data   BLOB NOT NULL,
		digest BLOB NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pack schema: %w", err)
	}
	return &Pack{db: db}, nil
}

func (p *Pack) Close() error {
	return p.db.Close()
}

func (p *Pack) Fetch(ctx context.Context, path string) ([]byte, error) {
	var data, digest []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data, digest FROM assets WHERE path = ?`, path,
	).Scan(&data, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", path, err)
	}
	if err := VerifyDigest(path, data, digest); err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Pack) Put(ctx context.Context, path string, data []byte) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO assets (path, data, digest) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, digest = excluded.digest`,
		path, data, Digest(data),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

// Count returns the number of packed assets.
func (p *Pack) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}
