package detection

import (
	"context"

	"github.com/tphakala/birdcam-go/internal/conf"
	"github.com/tphakala/birdcam-go/internal/errors"
)

// Engine is the contract to the external detection model. Detect must
// return an empty slice, not an error, when nothing is found. Annotate
// renders detections onto a copy of the image and returns its path.
type Engine interface {
	Detect(ctx context.Context, imagePath string) ([]Detection, error)
	Annotate(ctx context.Context, imagePath string, detections []Detection) (string, error)
}

// NewEngine selects an engine implementation from configuration. An
// empty type means no engine is configured: the watcher pipeline and
// the upload route are then disabled, and nil is returned without
// error. Unknown types are a configuration error.
func NewEngine(settings *conf.Settings) (Engine, error) {
	switch settings.Detection.Type {
	case "":
		return nil, nil
	case "mock":
		// Scripted engine for integration testing and development.
		return &MockEngine{}, nil
	default:
		return nil, errors.Newf("unknown detection engine type: %q", settings.Detection.Type).
			Component("detection").
			Category(errors.CategoryConfiguration).
			Context("setting", "detection.type").
			Build()
	}
}
