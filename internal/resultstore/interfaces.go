// interfaces.go: the store contract consumed by the ingest pipeline and
// the API gateway.
package resultstore

import (
	"github.com/tphakala/birdcam-go/internal/detection"
)

// SaveRequest carries the inputs of one Save call.
type SaveRequest struct {
	ImagePath        string                // source image, absolute or relative to CWD
	Detections       []detection.Detection // may be empty: processed, nothing found
	AnnotatedPath    string                // empty when no annotated image was produced
	Metadata         map[string]any        // opaque caller-supplied bag
	ProcessingTime   float64               // inference wall-clock seconds, 0 when unknown
	SkipCopyOriginal bool                  // leave the source file in place instead of copying it in
}

// Interface abstracts the result store for its consumers.
type Interface interface {
	// Save records one detection result: copies the original image in
	// (best effort), writes the JSON document, inserts the index row
	// and applies the retention policy. On a bookkeeping failure it
	// returns a minimal result together with the error so the ingest
	// pipeline can log and continue.
	Save(req *SaveRequest) (*DetectionResult, error)

	// GetRecent returns up to limit results ordered by timestamp
	// descending, skipping offset rows, optionally filtered. The limit
	// is clamped to a sane maximum regardless of caller input.
	GetRecent(limit, offset int, birdOnly, withSpecies bool) ([]DetectionResult, error)

	// GetByID returns one result enriched from its JSON document when
	// readable; index fields win on conflict. ErrNotFound for unknown ids.
	GetByID(id uint) (*DetectionResult, error)

	// Search applies the conjunctive filters, ordered by timestamp
	// descending.
	Search(filters *SearchFilters) ([]DetectionResult, error)

	// Stats recomputes the derived aggregate over all stored results.
	Stats() (*StoreStats, error)

	// Delete removes one result's index row and its files.
	Delete(id uint) error

	Close() error
}
