// stats.go: derived aggregates over the result index.
package resultstore

import (
	"github.com/tphakala/birdcam-go/internal/errors"
)

// Stats recomputes the store aggregate on demand.
func (s *Store) Stats() (*StoreStats, error) {
	stats := &StoreStats{
		TopSpecies:   []SpeciesCount{},
		RecentCounts: []DailyCount{},
	}

	dbErr := func(err error, op string) error {
		return errors.Newf("%s: %w", op, err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}

	var total int64
	if err := s.db.Model(&DetectionResult{}).Count(&total).Error; err != nil {
		return nil, dbErr(err, "counting results")
	}
	stats.TotalDetections = int(total)

	var birds int64
	if err := s.db.Model(&DetectionResult{}).Where("bird_detected = ?", true).Count(&birds).Error; err != nil {
		return nil, dbErr(err, "counting bird detections")
	}
	stats.BirdDetections = int(birds)

	var withSpecies int64
	if err := s.db.Model(&DetectionResult{}).Where("has_species = ?", true).Count(&withSpecies).Error; err != nil {
		return nil, dbErr(err, "counting species identifications")
	}
	stats.SpeciesIdentified = int(withSpecies)

	// Mean confidence over bird-positive results only; zero when none.
	var avg *float64
	if err := s.db.Model(&DetectionResult{}).
		Select("AVG(confidence)").
		Where("bird_detected = ?", true).
		Scan(&avg).Error; err != nil {
		return nil, dbErr(err, "averaging confidence")
	}
	if avg != nil {
		stats.AverageConfidence = *avg
	}

	if err := s.db.Model(&DetectionResult{}).
		Select("species, COUNT(*) as count").
		Where("has_species = ?", true).
		Group("species").
		Order("count DESC").
		Limit(5).
		Scan(&stats.TopSpecies).Error; err != nil {
		return nil, dbErr(err, "ranking species")
	}

	if err := s.db.Model(&DetectionResult{}).
		Select("substr(timestamp, 1, 10) as date, COUNT(*) as count").
		Group("date").
		Order("date DESC").
		Limit(7).
		Scan(&stats.RecentCounts).Error; err != nil {
		return nil, dbErr(err, "counting per-day results")
	}

	return stats, nil
}
