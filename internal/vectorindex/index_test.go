package vectorindex

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/visor/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEmbedder maps a fixed vocabulary onto axes of a bag-of-words vector,
// so similarity between test documents is fully predictable.
type fakeEmbedder struct {
	err error
}

var fakeVocabulary = map[string]int{
	"dog": 0, "beach": 1, "city": 2, "skyline": 3, "night": 4, "ball": 5,
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, len(fakeVocabulary))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if axis, ok := fakeVocabulary[word]; ok {
			vec[axis]++
		}
	}
	return vec, nil
}

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), &fakeEmbedder{}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func tagMeta(tags ...string) domain.ImageMetadata {
	return domain.ImageMetadata{Tags: tags, IsProcessed: true}
}

func TestUpsertAndGet(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	meta := domain.ImageMetadata{
		Description: "a dog on a beach",
		Tags:        []string{"dog", "beach"},
		TextContent: "BEACH RULES",
		HasText:     true,
		IsProcessed: true,
	}
	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", meta))

	got, err := idx.Get(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.True(t, got.Equal(meta))
}

func TestGetMissingEntry(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Get(context.Background(), "/photos/missing.jpg")
	assert.ErrorIs(t, err, ErrNotIndexed)
}

func TestUpsertReplacesExistingEntry(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", tagMeta("city", "skyline")))
	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", tagMeta("dog", "beach")))

	got, err := idx.Get(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []string{"dog", "beach"}, got.Tags)

	// The old embedding no longer matches.
	results, err := idx.Search(ctx, "city skyline", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", tagMeta("dog")))
	require.NoError(t, idx.Delete(ctx, "/photos/a.jpg"))

	_, err := idx.Get(ctx, "/photos/a.jpg")
	assert.ErrorIs(t, err, ErrNotIndexed)

	// Deleting an absent entry is a no-op.
	assert.NoError(t, idx.Delete(ctx, "/photos/a.jpg"))
}

func TestSearchRanksByDistance(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "/photos/dog-ball.jpg", tagMeta("dog", "ball")))
	require.NoError(t, idx.Upsert(ctx, "/photos/dog-beach.jpg", tagMeta("dog", "beach")))
	require.NoError(t, idx.Upsert(ctx, "/photos/city.jpg", tagMeta("city", "skyline", "night")))

	results, err := idx.Search(ctx, "dog beach", 5)
	require.NoError(t, err)

	// The exact match comes first, the partial match second; the unrelated
	// image falls outside the distance cutoff.
	require.Len(t, results, 2)
	assert.Equal(t, "/photos/dog-beach.jpg", results[0].ImagePath)
	assert.Equal(t, "/photos/dog-ball.jpg", results[1].ImagePath)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestSearchHonorsLimit(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", tagMeta("dog")))
	require.NoError(t, idx.Upsert(ctx, "/photos/b.jpg", tagMeta("dog", "ball")))
	require.NoError(t, idx.Upsert(ctx, "/photos/c.jpg", tagMeta("dog", "beach")))

	results, err := idx.Search(ctx, "dog", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/photos/a.jpg", results[0].ImagePath)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search(context.Background(), "   ", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := Open(path, &fakeEmbedder{}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "/photos/a.jpg", tagMeta("dog", "beach")))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, &fakeEmbedder{}, discardLogger())
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "dog", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/photos/a.jpg", results[0].ImagePath)
}

func TestUpsertEmbedderFailure(t *testing.T) {
	embedErr := errors.New("embedding quota exhausted")
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"), &fakeEmbedder{err: embedErr}, discardLogger())
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Upsert(context.Background(), "/photos/a.jpg", tagMeta("dog"))
	assert.ErrorIs(t, err, embedErr)
}

func TestCosineDistance(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		d, err := cosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3})
		require.NoError(t, err)
		assert.InDelta(t, 0, d, 1e-9)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		d, err := cosineDistance([]float32{1, 0}, []float32{0, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1, d, 1e-9)
	})

	t.Run("zero vector", func(t *testing.T) {
		d, err := cosineDistance([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.InDelta(t, 1, d, 1e-9)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := cosineDistance([]float32{1}, []float32{1, 2})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
