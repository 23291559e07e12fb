package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdcam-go/internal/errors"
	"github.com/tphakala/birdcam-go/internal/resultstore"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	// statsCacheKey names the single cached aggregate entry.
	statsCacheKey = "stats"
)

// ResultSummary is the trimmed list-view shape. Absolute filesystem
// paths are rewritten to gateway-relative image URLs before anything
// leaves the process.
type ResultSummary struct {
	ID            uint    `json:"id"`
	Timestamp     string  `json:"timestamp"`
	BirdDetected  bool    `json:"bird_detected"`
	BirdCount     int     `json:"bird_count"`
	Species       string  `json:"species"`
	Confidence    float64 `json:"confidence"`
	ImagePath     string  `json:"image_path"`
	AnnotatedPath *string `json:"annotated_path"`
}

// ResultsResponse is the paginated list body.
type ResultsResponse struct {
	Success    bool            `json:"success"`
	Results    []ResultSummary `json:"results"`
	Count      int             `json:"count"`
	TotalCount int             `json:"total_count"`
}

// SearchResponse is the filtered list body.
type SearchResponse struct {
	Success bool            `json:"success"`
	Results []ResultSummary `json:"results"`
	Count   int             `json:"count"`
}

// ResultDetail is the full single-result shape, the index row enriched
// from the result document plus rewritten public URLs.
type ResultDetail struct {
	resultstore.DetectionResult
	ImageURL     string `json:"image_url,omitempty"`
	AnnotatedURL string `json:"annotated_url,omitempty"`
}

// DetailResponse wraps one full result.
type DetailResponse struct {
	Success bool          `json:"success"`
	Result  *ResultDetail `json:"result"`
}

// StatsResponse wraps the store aggregate.
type StatsResponse struct {
	Success bool                    `json:"success"`
	Stats   *resultstore.StoreStats `json:"stats"`
}

// imageURL maps a stored absolute path to its public serving URL.
func imageURL(storedPath string) string {
	return "/images/" + filepath.Base(storedPath)
}

func summarize(results []resultstore.DetectionResult) []ResultSummary {
	summaries := make([]ResultSummary, 0, len(results))
	for i := range results {
		r := &results[i]
		s := ResultSummary{
			ID:           r.ID,
			Timestamp:    r.Timestamp,
			BirdDetected: r.BirdDetected,
			BirdCount:    r.BirdCount,
			Species:      r.Species,
			Confidence:   r.Confidence,
			ImagePath:    imageURL(r.ImagePath),
		}
		if r.AnnotatedPath != "" {
			url := imageURL(r.AnnotatedPath)
			s.AnnotatedPath = &url
		}
		summaries = append(summaries, s)
	}
	return summaries
}

// clampListParams corrects pagination input to safe defaults instead of
// rejecting it.
func clampListParams(ctx echo.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(ctx.QueryParam("limit"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset, _ = strconv.Atoi(ctx.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// cachedStats returns the store aggregate, reusing a recent value.
func (c *Controller) cachedStats() (*resultstore.StoreStats, error) {
	if cached, found := c.statsCache.Get(statsCacheKey); found {
		if stats, ok := cached.(*resultstore.StoreStats); ok {
			return stats, nil
		}
	}

	stats, err := c.Store.Stats()
	if err != nil {
		return nil, err
	}
	c.statsCache.SetDefault(statsCacheKey, stats)
	return stats, nil
}

// GetResults handles GET /api/results.
func (c *Controller) GetResults(ctx echo.Context) error {
	limit, offset := clampListParams(ctx)
	birdOnly := ctx.QueryParam("bird_only") == "true"
	withSpecies := ctx.QueryParam("with_species") == "true"

	results, err := c.Store.GetRecent(limit, offset, birdOnly, withSpecies)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to get results", http.StatusInternalServerError)
	}

	totalCount := 0
	if stats, err := c.cachedStats(); err == nil {
		totalCount = stats.TotalDetections
	}

	summaries := summarize(results)
	return ctx.JSON(http.StatusOK, &ResultsResponse{
		Success:    true,
		Results:    summaries,
		Count:      len(summaries),
		TotalCount: totalCount,
	})
}

// GetResult handles GET /api/results/:id.
func (c *Controller) GetResult(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid result id", http.StatusBadRequest)
	}

	result, err := c.Store.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, resultstore.ErrNotFound) {
			return c.HandleError(ctx, nil, "Result not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "Failed to get result", http.StatusInternalServerError)
	}

	// Storage paths are rewritten to public URLs before the result
	// leaves the process, same as the list views.
	detail := &ResultDetail{DetectionResult: *result}
	if result.ImagePath != "" {
		detail.ImageURL = imageURL(result.ImagePath)
		detail.ImagePath = detail.ImageURL
	}
	if result.AnnotatedPath != "" {
		detail.AnnotatedURL = imageURL(result.AnnotatedPath)
		detail.AnnotatedPath = detail.AnnotatedURL
	}
	detail.ResultPath = ""
	delete(detail.Metadata, "original_path")

	return ctx.JSON(http.StatusOK, &DetailResponse{Success: true, Result: detail})
}

// Search handles GET /api/search.
func (c *Controller) Search(ctx echo.Context) error {
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	filters := &resultstore.SearchFilters{
		Query:     ctx.QueryParam("q"),
		StartDate: ctx.QueryParam("start_date"),
		EndDate:   ctx.QueryParam("end_date"),
		Species:   ctx.QueryParam("species"),
		Limit:     limit,
	}
	if raw := ctx.QueryParam("min_confidence"); raw != "" {
		if minConf, err := strconv.ParseFloat(raw, 64); err == nil {
			filters.MinConfidence = minConf
			filters.HasMinConf = true
		}
	}

	results, err := c.Store.Search(filters)
	if err != nil {
		return c.HandleError(ctx, err, "Search failed", http.StatusInternalServerError)
	}

	summaries := summarize(results)
	return ctx.JSON(http.StatusOK, &SearchResponse{
		Success: true,
		Results: summaries,
		Count:   len(summaries),
	})
}

// GetStats handles GET /api/stats.
func (c *Controller) GetStats(ctx echo.Context) error {
	stats, err := c.cachedStats()
	if err != nil {
		return c.HandleError(ctx, err, "Failed to compute stats", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, &StatsResponse{Success: true, Stats: stats})
}

// HealthCheck handles GET /api/health. Public and cheap: it reports
// liveness, not storage health.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        c.Settings.Version,
		"build_date":     c.Settings.BuildDate,
		"uptime_seconds": int(time.Since(c.startTime).Seconds()),
	})
}
