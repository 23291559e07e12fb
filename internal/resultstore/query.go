// query.go: read-side operations over the result index.
package resultstore

import (
	"gorm.io/gorm"

	"github.com/tphakala/birdcam-go/internal/errors"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// clampLimit bounds a caller-supplied limit to (0, maxLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// GetRecent returns the most recent results by timestamp descending.
func (s *Store) GetRecent(limit, offset int, birdOnly, withSpecies bool) ([]DetectionResult, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	query := s.db.Order("timestamp DESC, id DESC").Limit(limit).Offset(offset)
	if birdOnly {
		query = query.Where("bird_detected = ?", true)
	}
	if withSpecies {
		query = query.Where("has_species = ?", true)
	}

	var results []DetectionResult
	if err := query.Find(&results).Error; err != nil {
		return nil, errors.Newf("querying recent results: %w", err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return results, nil
}

// GetByID returns one result by id, enriched from its JSON document
// when the document is readable. A missing or corrupt document is
// tolerated: the index-only fields are returned instead.
func (s *Store) GetByID(id uint) (*DetectionResult, error) {
	var result DetectionResult
	if err := s.db.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Newf("getting result %d: %w", id, err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}

	if result.ResultPath != "" {
		if doc, err := readDocument(result.ResultPath); err != nil {
			s.log.Warn("could not load result document", "id", id, "path", result.ResultPath, "error", err)
		} else {
			mergeDocument(&result, doc)
		}
	}

	return &result, nil
}

// Search applies the conjunctive filters: every supplied predicate must
// hold. Results are ordered by timestamp descending.
func (s *Store) Search(filters *SearchFilters) ([]DetectionResult, error) {
	query := s.db.Order("timestamp DESC, id DESC").Limit(clampLimit(filters.Limit))

	if filters.Query != "" {
		pattern := "%" + filters.Query + "%"
		query = query.Where("species LIKE ? OR source LIKE ?", pattern, pattern)
	}
	if filters.StartDate != "" {
		query = query.Where("timestamp >= ?", filters.StartDate)
	}
	if filters.EndDate != "" {
		query = query.Where("timestamp <= ?", filters.EndDate)
	}
	if filters.HasMinConf {
		query = query.Where("confidence >= ?", filters.MinConfidence)
	}
	if filters.Species != "" {
		query = query.Where("species LIKE ?", "%"+filters.Species+"%")
	}

	var results []DetectionResult
	if err := query.Find(&results).Error; err != nil {
		return nil, errors.Newf("searching results: %w", err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return results, nil
}
