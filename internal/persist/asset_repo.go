package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/terrastream/terrastream/internal/asset"
)

// AssetRepo stores encoded asset payloads keyed by path. It satisfies
// asset.Store.
type AssetRepo struct {
	db *DB
}

func NewAssetRepo(db *DB) *AssetRepo {
	return &AssetRepo{db: db}
}

// Fetch returns the stored payload for path after checking its digest.
func (r *AssetRepo) Fetch(ctx context.Context, path string) ([]byte, error) {
	var data, digest []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data, digest FROM assets WHERE path = $1`, path,
	).Scan(&data, &digest)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", path, asset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query asset %s: %w", path, err)
	}
	if err := asset.VerifyDigest(path, data, digest); err != nil {
		return nil, err
	}
	return data, nil
}

// Put inserts or replaces one asset.
func (r *AssetRepo) Put(ctx context.Context, path string, data []byte) error {
	if _, err := r.db.Pool.Exec(ctx, upsertAsset, path, data, asset.Digest(data), len(data)); err != nil {
		return fmt.Errorf("put asset %s: %w", path, err)
	}
	return nil
}

// Entry is one asset of a batch import.
type Entry struct {
	Path string
	Data []byte
}

// PutBatch writes every entry in a single transaction. Either all entries
// land or none do.
func (r *AssetRepo) PutBatch(ctx context.Context, entries []Entry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("asset batch begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertAsset, e.Path, e.Data, asset.Digest(e.Data), len(e.Data))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("asset batch insert: %w", err)
	}
	return tx.Commit(ctx)
}

// Count returns the number of stored assets under prefix.
func (r *AssetRepo) Count(ctx context.Context, prefix string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM assets WHERE path LIKE $1 || '%'`, prefix,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}

const upsertAsset = `INSERT INTO assets (path, data, digest, size)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (path) DO UPDATE SET
		data = EXCLUDED.data, digest = EXCLUDED.digest,
		size = EXCLUDED.size, updated_at = now()`
