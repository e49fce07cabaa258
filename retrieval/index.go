package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// vec0 virtual tables and vec_distance_cosine are available.
	vec.Auto()
}

// Match is one raw nearest-neighbor hit from the index, before
// normalization into a VendorRecord.
type Match struct {
	ID           string
	Score        float64
	MetadataJSON string
}

// VectorIndex answers nearest-neighbor queries over vendor embeddings.
type VectorIndex interface {
	Query(ctx context.Context, embedding []float32, topK int) ([]Match, error)
}

// VendorIndex is a sqlite-vec backed vendor embedding index. Vendor
// metadata lives in a plain table; embeddings live in a vec0 virtual table
// joined by vendor id.
type VendorIndex struct {
	db   *sql.DB
	dims int
}

// OpenVendorIndex opens (creating if needed) the vendor index at path.
func OpenVendorIndex(path string, dims int) (*VendorIndex, error) {
	if dims <= 0 {
		dims = 768
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vendor index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify vendor index: %w", err)
	}

	idx := &VendorIndex{db: db, dims: dims}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (x *VendorIndex) migrate() error {
	if _, err := x.db.Exec(`
		CREATE TABLE IF NOT EXISTS vendors (
			id       TEXT PRIMARY KEY,
			metadata TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create vendors table: %w", err)
	}

	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_vendors USING vec0(embedding float[%d], vendor_id TEXT)",
		x.dims,
	)
	if _, err := x.db.Exec(stmt); err != nil {
		return fmt.Errorf("failed to create vec_vendors table: %w", err)
	}
	return nil
}

// Upsert stores or replaces one vendor's metadata and embedding.
func (x *VendorIndex) Upsert(ctx context.Context, id, metadataJSON string, embedding []float32) error {
	if len(embedding) != x.dims {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(embedding), x.dims)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO vendors (id, metadata) VALUES (?, ?)",
		id, metadataJSON,
	); err != nil {
		return fmt.Errorf("failed to upsert vendor metadata: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_vendors WHERE vendor_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear old embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO vec_vendors (embedding, vendor_id) VALUES (?, ?)",
		encodeFloat32Blob(embedding), id,
	); err != nil {
		return fmt.Errorf("failed to insert embedding: %w", err)
	}
	return tx.Commit()
}

// Query returns the topK nearest vendors by cosine distance, closest first.
// The index ranking is authoritative; callers must not re-sort.
func (x *VendorIndex) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT
			v.id,
			v.metadata,
			vec_distance_cosine(vv.embedding, ?) AS distance
		FROM vec_vendors vv
		JOIN vendors v ON vv.vendor_id = v.id
		ORDER BY distance ASC
		LIMIT ?`,
		encodeFloat32Blob(embedding), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("vendor index query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var distance float64
		if err := rows.Scan(&m.ID, &m.MetadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vendor row: %w", err)
		}
		// Cosine distance is 1 - similarity.
		m.Score = 1.0 - distance
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vendor rows: %w", err)
	}
	return matches, nil
}

// Count returns the number of indexed vendors.
func (x *VendorIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vendors").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vendors: %w", err)
	}
	return n, nil
}

// Ping checks the underlying database connection.
func (x *VendorIndex) Ping() error {
	return x.db.Ping()
}

// Close closes the index.
func (x *VendorIndex) Close() error {
	return x.db.Close()
}

// encodeFloat32Blob packs a vector into the little-endian float32 blob
// format sqlite-vec expects.
func encodeFloat32Blob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
