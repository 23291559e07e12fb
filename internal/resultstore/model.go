// model.go: data model for persisted detection results.
package resultstore

import (
	"github.com/tphakala/birdcam-go/internal/detection"
)

// DetectionResult represents one persisted outcome of running the
// detection engine on one image. The indexed columns are the queryable
// subset; the JSON document on disk is authoritative for Detections and
// Metadata, which are loaded on demand.
type DetectionResult struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Timestamp      string `gorm:"index:idx_results_timestamp" json:"timestamp"`
	ImagePath      string `gorm:"not null" json:"image_path"`
	AnnotatedPath  string `json:"annotated_path,omitempty"`
	ResultPath     string `json:"result_path,omitempty"`
	BirdDetected   bool   `json:"bird_detected"`
	BirdCount      int    `json:"bird_count"`
	HasSpecies     bool   `gorm:"index:idx_results_species" json:"has_species"`
	Species        string `json:"species"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time,omitempty"` // seconds
	Source         string  `gorm:"index:idx_results_source" json:"source,omitempty"`

	// Virtual fields populated from the result document, never stored
	// in the index.
	Detections []detection.Detection `gorm:"-" json:"detections,omitempty"`
	Metadata   map[string]any        `gorm:"-" json:"metadata,omitempty"`
}

// Document is the durable on-disk record written next to each stored
// image. It duplicates the indexed fields and is authoritative for
// detections and metadata.
type Document struct {
	Timestamp      string                `json:"timestamp"`
	ImagePath      string                `json:"image_path"`
	AnnotatedPath  string                `json:"annotated_path"`
	ResultPath     string                `json:"result_path"`
	BirdDetected   bool                  `json:"bird_detected"`
	BirdCount      int                   `json:"bird_count"`
	HasSpecies     bool                  `json:"has_species"`
	Species        string                `json:"species"`
	Confidence     float64               `json:"confidence"`
	Detections     []detection.Detection `json:"detections"`
	ProcessingTime float64               `json:"processing_time"`
	Metadata       map[string]any        `json:"metadata"`
}

// SpeciesCount is one entry of the top-species ranking.
type SpeciesCount struct {
	Species string `json:"species"`
	Count   int    `json:"count"`
}

// DailyCount is the number of results recorded on one date.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// StoreStats is the derived aggregate over all stored results. It is
// recomputed on demand and never persisted.
type StoreStats struct {
	TotalDetections   int            `json:"total_detections"`
	BirdDetections    int            `json:"bird_detections"`
	SpeciesIdentified int            `json:"species_identified"`
	AverageConfidence float64        `json:"average_confidence"`
	TopSpecies        []SpeciesCount `json:"top_species"`
	RecentCounts      []DailyCount   `json:"recent_counts"`
}

// SearchFilters defines the conjunctive predicates of a search. Zero
// values mean "not filtered".
type SearchFilters struct {
	Query         string  // substring match on species or source, case-insensitive
	StartDate     string  // inclusive ISO-8601 lower bound on timestamp
	EndDate       string  // inclusive ISO-8601 upper bound on timestamp
	MinConfidence float64 // minimum confidence, 0 disables
	HasMinConf    bool    // true when MinConfidence was supplied
	Species       string  // substring match on species, case-insensitive
	Limit         int     // maximum results, clamped like GetRecent
}
