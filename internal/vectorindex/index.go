package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/phrazzld/visor/internal/domain"
)

// defaultSearchLimit caps result sets when the caller does not specify one.
const defaultSearchLimit = 5

// maxSearchDistance is the cosine distance cutoff beyond which a result is
// considered unrelated to the query and dropped.
const maxSearchDistance = 0.9

// SearchResult is one ranked search hit.
type SearchResult struct {
	ImagePath string  `json:"image_path"`
	Distance  float64 `json:"distance"`
}

// Index stores image metadata embeddings in an embedded SQLite database
// and answers similarity searches over them. Safe for concurrent use; the
// database serializes writers.
type Index struct {
	db       *sql.DB
	embedder Embedder
	logger   *slog.Logger
}

// Open opens (or creates) the index database at the given path, runs
// schema migrations and returns a ready Index.
func Open(path string, embedder Embedder, logger *slog.Logger) (*Index, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open index database %s: %w", path, err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{
		db:       db,
		embedder: embedder,
		logger:   logger.With("component", "vector_index"),
	}, nil
}

// Close releases the underlying database.
func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert embeds the image's combined metadata text and writes the entry,
// replacing any previous one for the same path.
func (i *Index) Upsert(ctx context.Context, imagePath string, meta domain.ImageMetadata) error {
	document := documentText(meta)
	embedding, err := i.embedder.Embed(ctx, document)
	if err != nil {
		return fmt.Errorf("failed to embed metadata for %s: %w", imagePath, err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", imagePath, err)
	}

	_, err = i.db.ExecContext(ctx, `
		INSERT INTO images (image_path, document, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(image_path) DO UPDATE SET
			document   = excluded.document,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			updated_at = excluded.updated_at`,
		imagePath, document, string(metaJSON), encodeVector(embedding), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert index entry for %s: %w", imagePath, err)
	}

	i.logger.Debug("index entry upserted", "image_path", imagePath, "dimensions", len(embedding))
	return nil
}

// Delete removes the entry for the image. Deleting an absent entry is not
// an error.
func (i *Index) Delete(ctx context.Context, imagePath string) error {
	_, err := i.db.ExecContext(ctx, `DELETE FROM images WHERE image_path = ?`, imagePath)
	if err != nil {
		return fmt.Errorf("failed to delete index entry for %s: %w", imagePath, err)
	}
	return nil
}

// Get returns the metadata stored alongside the image's embedding. Used by
// the synchronizer's read-back verification.
func (i *Index) Get(ctx context.Context, imagePath string) (domain.ImageMetadata, error) {
	var metaJSON string
	err := i.db.QueryRowContext(ctx,
		`SELECT metadata FROM images WHERE image_path = ?`, imagePath).Scan(&metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ImageMetadata{}, fmt.Errorf("%w: %s", ErrNotIndexed, imagePath)
	}
	if err != nil {
		return domain.ImageMetadata{}, fmt.Errorf("failed to read index entry for %s: %w", imagePath, err)
	}

	var meta domain.ImageMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return domain.ImageMetadata{}, fmt.Errorf("failed to decode index metadata for %s: %w", imagePath, err)
	}
	return meta, nil
}

// Search embeds the query and returns up to limit image paths ranked by
// ascending cosine distance, dropping anything beyond the relevance
// cutoff. An empty query yields no results.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	queryVec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := i.db.QueryContext(ctx, `SELECT image_path, embedding FROM images`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			imagePath string
			blob      []byte
		)
		if err := rows.Scan(&imagePath, &blob); err != nil {
			return nil, fmt.Errorf("failed to read index row: %w", err)
		}
		embedding, err := decodeVector(blob)
		if err != nil {
			i.logger.Warn("skipping undecodable index entry", "image_path", imagePath, "error", err)
			continue
		}
		distance, err := cosineDistance(queryVec, embedding)
		if err != nil {
			// Entries embedded with a different model dimension cannot be
			// ranked against this query.
			i.logger.Warn("skipping incomparable index entry", "image_path", imagePath, "error", err)
			continue
		}
		if distance < maxSearchDistance {
			results = append(results, SearchResult{ImagePath: imagePath, Distance: distance})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan index: %w", err)
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Distance < results[b].Distance })
	if len(results) > limit {
		results = results[:limit]
	}

	i.logger.Debug("search completed", "query_len", len(query), "results", len(results))
	return results, nil
}

// documentText combines the metadata fields into the text that gets
// embedded, mirroring what search queries are matched against.
func documentText(meta domain.ImageMetadata) string {
	parts := []string{meta.Description, strings.Join(meta.Tags, " "), meta.TextContent}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// encodeVector packs an embedding as little-endian float32 bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks an embedding written by encodeVector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

// cosineDistance returns 1 minus the cosine similarity of two vectors.
// Zero vectors are maximally distant rather than undefined.
func cosineDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1, nil
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB)), nil
}
