// Package pgbackend stores scan results in PostgreSQL. Results are kept as
// jsonb payloads keyed by package identifier or provenance digest, so the
// schema survives additions to the result model without migrations.
package pgbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourorg/scanstore/internal/model"
	"github.com/yourorg/scanstore/internal/storage"
)

type Backend struct{ Pool *pgxpool.Pool }

// Open connects a pool to the given database URL. Pool sizing (expected
// concurrent scanners plus headroom) is configured through the URL's
// pool_max_conns parameter.
func Open(ctx context.Context, url string) (*Backend, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Backend{Pool: p}, nil
}

func (b *Backend) Close() { b.Pool.Close() }

func (b *Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.Pool.Ping(ctx)
}

func (b *Backend) EnsureSchema(ctx context.Context) error {
	_, err := b.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS scan_results (
  id UUID PRIMARY KEY,
  identifier TEXT NOT NULL,
  scan_result JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_results_identifier ON scan_results (identifier, created_at);

CREATE TABLE IF NOT EXISTS provenance_scan_results (
  id UUID PRIMARY KEY,
  provenance_digest TEXT NOT NULL,
  scan_result JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_provenance_scan_results_digest ON provenance_scan_results (provenance_digest, created_at);
`)
	return err
}

func scanResultRows(rows pgx.Rows) ([]model.ScanResult, error) {
	defer rows.Close()

	var results []model.ScanResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r model.ScanResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode stored scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (b *Backend) ReadPackage(ctx context.Context, id model.Identifier) ([]model.ScanResult, error) {
	rows, err := b.Pool.Query(ctx, `
		SELECT scan_result
		FROM scan_results
		WHERE identifier=$1
		ORDER BY created_at, id
	`, id.String())
	if err != nil {
		return nil, err
	}
	return scanResultRows(rows)
}

// ReadPackages answers a batched read in a single query; the cache engine
// prefers this over issuing one query per package.
func (b *Backend) ReadPackages(ctx context.Context, ids []model.Identifier) (map[model.Identifier][]model.ScanResult, error) {
	byString := make(map[string]model.Identifier, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		s := id.String()
		if _, exists := byString[s]; exists {
			continue
		}
		byString[s] = id
		keys = append(keys, s)
	}

	rows, err := b.Pool.Query(ctx, `
		SELECT identifier, scan_result
		FROM scan_results
		WHERE identifier = ANY($1)
		ORDER BY identifier, created_at, id
	`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[model.Identifier][]model.ScanResult)
	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, err
		}
		var r model.ScanResult
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, fmt.Errorf("decode stored scan result for %s: %w", key, err)
		}
		id, ok := byString[key]
		if !ok {
			continue
		}
		out[id] = append(out[id], r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) WritePackage(ctx context.Context, id model.Identifier, result model.ScanResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = b.Pool.Exec(ctx, `
		INSERT INTO scan_results (id, identifier, scan_result)
		VALUES ($1::uuid, $2, $3::jsonb)
	`, uuid.NewString(), id.String(), string(payload))
	return err
}

func (b *Backend) ReadProvenance(ctx context.Context, p model.KnownProvenance) ([]model.ScanResult, error) {
	rows, err := b.Pool.Query(ctx, `
		SELECT scan_result
		FROM provenance_scan_results
		WHERE provenance_digest=$1
		ORDER BY created_at, id
	`, model.ProvenanceDigest(p))
	if err != nil {
		return nil, err
	}
	return scanResultRows(rows)
}

func (b *Backend) WriteProvenance(ctx context.Context, p model.KnownProvenance, result model.ScanResult) error {
	if err := storage.ValidateProvenanceWrite(p); err != nil {
		return err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = b.Pool.Exec(ctx, `
		INSERT INTO provenance_scan_results (id, provenance_digest, scan_result)
		VALUES ($1::uuid, $2, $3::jsonb)
	`, uuid.NewString(), model.ProvenanceDigest(p), string(payload))
	return err
}

// DeduplicateStored removes redundant rows sharing the same (provenance,
// scanner) identity within a package, keeping the oldest row of each group.
// At most batchSize packages are processed per call; the number of deleted
// rows is returned so callers can loop until the sweep is done.
func (b *Backend) DeduplicateStored(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 50
	}
	rows, err := b.Pool.Query(ctx, `
		SELECT identifier
		FROM scan_results
		GROUP BY identifier
		HAVING count(*) > 1
		LIMIT $1
	`, batchSize)
	if err != nil {
		return 0, err
	}
	var identifiers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		identifiers = append(identifiers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	for _, identifier := range identifiers {
		n, err := b.deduplicateIdentifier(ctx, identifier)
		if err != nil {
			return deleted, fmt.Errorf("deduplicate %s: %w", identifier, err)
		}
		deleted += n
	}
	return deleted, nil
}

func (b *Backend) deduplicateIdentifier(ctx context.Context, identifier string) (int, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id::text, scan_result
		FROM scan_results
		WHERE identifier=$1
		ORDER BY created_at, id
		FOR UPDATE
	`, identifier)
	if err != nil {
		return 0, err
	}

	seen := map[string]struct{}{}
	var redundant []string
	for rows.Next() {
		var rowID string
		var payload []byte
		if err := rows.Scan(&rowID, &payload); err != nil {
			rows.Close()
			return 0, err
		}
		var r model.ScanResult
		if err := json.Unmarshal(payload, &r); err != nil {
			rows.Close()
			return 0, err
		}
		key := strings.Join([]string{model.ProvenanceKey(r.Provenance), r.Scanner.Key()}, "|")
		if _, exists := seen[key]; exists {
			redundant = append(redundant, rowID)
			continue
		}
		seen[key] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(redundant) == 0 {
		return 0, tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scan_results WHERE id = ANY($1::uuid[])`, redundant); err != nil {
		return 0, err
	}
	return len(redundant), tx.Commit(ctx)
}
