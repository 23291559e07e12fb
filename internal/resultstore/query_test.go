package resultstore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdcam-go/internal/detection"
)

// seedResults saves a small fixed corpus used by the query tests.
func seedResults(t *testing.T, store *Store) []*DetectionResult {
	t.Helper()

	fixtures := []struct {
		name       string
		detections []detection.Detection
		source     string
	}{
		{"none.jpg", nil, "directory_monitor"},
		{"robin-low.jpg", []detection.Detection{{ClassName: "American Robin", Confidence: 0.6}}, "directory_monitor"},
		{"robin-high.jpg", []detection.Detection{{ClassName: "American Robin", Confidence: 0.93}}, "upload"},
		{"sparrow.jpg", []detection.Detection{{ClassName: "House Sparrow", Confidence: 0.85}}, "directory_monitor"},
		{"generic.jpg", []detection.Detection{{ClassName: "bird", Confidence: 0.7}}, "upload"},
	}

	var saved []*DetectionResult
	for _, f := range fixtures {
		result, err := store.Save(&SaveRequest{
			ImagePath:  writeTestImage(t, f.name),
			Detections: f.detections,
			Metadata:   map[string]any{"source": f.source},
		})
		require.NoError(t, err)
		saved = append(saved, result)
		time.Sleep(2 * time.Millisecond)
	}
	return saved
}

func TestGetRecentOrderingAndFilters(t *testing.T) {
	t.Parallel()

	store := createTestStore(t, 100, false)
	saved := seedResults(t, store)

	recent, err := store.GetRecent(10, 0, false, false)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, saved[4].ID, recent[0].ID, "newest first")
	assert.Equal(t, saved[0].ID, recent[4].ID)

	birdOnly, err := store.GetRecent(10, 0, true, false)
	require.NoError(t, err)
	assert.Len(t, birdOnly, 4)

	withSpecies, err := store.GetRecent(10, 0, false, true)
	require.NoError(t, err)
	assert.Len(t, withSpecies, 3, "generic-only detections carry no species")

	offset, err := store.GetRecent(2, 2, false, false)
	require.NoError(t, err)
	require.Len(t, offset, 2)
	assert.Equal(t, saved[2].ID, offset[0].ID)
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, defaultLimit, clampLimit(0))
	assert.Equal(t, defaultLimit, clampLimit(-3))
	assert.Equal(t, 1, clampLimit(1))
	assert.Equal(t, maxLimit, clampLimit(maxLimit))
	assert.Equal(t, maxLimit, clampLimit(100000))
}

func TestSearchIsConjunctive(t *testing.T) {
	t.Parallel()

	store := createTestStore(t, 100, false)
	seedResults(t, store)

	// Species and confidence must both hold.
	results, err := store.Search(&SearchFilters{
		Species:       "robin",
		MinConfidence: 0.8,
		HasMinConf:    true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "American Robin", results[0].Species)
	assert.GreaterOrEqual(t, results[0].Confidence, 0.8)

	// Free-text query matches species or source.
	bySource, err := store.Search(&SearchFilters{Query: "upload"})
	require.NoError(t, err)
	assert.Len(t, bySource, 2)

	bySpecies, err := store.Search(&SearchFilters{Query: "sparrow"})
	require.NoError(t, err)
	require.Len(t, bySpecies, 1)
	assert.Equal(t, "House Sparrow", bySpecies[0].Species)

	// Date window bounds the timestamp column.
	now := time.Now().Format(timestampLayout)
	none, err := store.Search(&SearchFilters{StartDate: now})
	require.NoError(t, err)
	assert.Empty(t, none)

	all, err := store.Search(&SearchFilters{EndDate: now})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestGetByIDToleratesMissingDocument(t *testing.T) {
	t.Parallel()

	store := createTestStore(t, 100, false)
	saved, err := store.Save(&SaveRequest{
		ImagePath:  writeTestImage(t, "doc.jpg"),
		Detections: robinDetections(),
	})
	require.NoError(t, err)
	require.NoError(t, os.Remove(saved.ResultPath))

	loaded, err := store.GetByID(saved.ID)
	require.NoError(t, err, "a missing document must not fail the lookup")
	assert.True(t, loaded.BirdDetected, "index-only fields are still served")
	assert.Empty(t, loaded.Detections)
}

func TestStats(t *testing.T) {
	t.Parallel()

	store := createTestStore(t, 100, false)
	seedResults(t, store)

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalDetections)
	assert.Equal(t, 4, stats.BirdDetections)
	assert.Equal(t, 3, stats.SpeciesIdentified)
	// Mean over the four bird-positive results.
	assert.InDelta(t, (0.6+0.93+0.85+0.7)/4, stats.AverageConfidence, 1e-9)

	require.NotEmpty(t, stats.TopSpecies)
	assert.Equal(t, "American Robin", stats.TopSpecies[0].Species)
	assert.Equal(t, 2, stats.TopSpecies[0].Count)

	require.NotEmpty(t, stats.RecentCounts)
	assert.Equal(t, 5, stats.RecentCounts[0].Count, "all fixtures saved today")
}

func TestStatsEmptyStore(t *testing.T) {
	t.Parallel()

	store := createTestStore(t, 100, false)
	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalDetections)
	assert.Zero(t, stats.AverageConfidence)
	assert.Empty(t, stats.TopSpecies)
}
