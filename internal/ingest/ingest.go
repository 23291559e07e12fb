// Package ingest ties the detection engine and the result store into
// the processing pipeline driven by the directory watcher.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/errors"
	"github.com/tphakala/birdcam-go/internal/logging"
	"github.com/tphakala/birdcam-go/internal/resultstore"
)

// Processor runs one image through detection, optional annotation and
// persistence. It is the callback handed to the directory watcher.
type Processor struct {
	engine detection.Engine
	store  resultstore.Interface
	log    *slog.Logger
}

// New creates a processor. The engine may be nil when no detection
// backend is configured; images are then recorded without detections.
func New(engine detection.Engine, store resultstore.Interface) *Processor {
	return &Processor{
		engine: engine,
		store:  store,
		log:    logging.ForService("ingest"),
	}
}

// Process runs the full pipeline for one image file. A detection
// failure drops the image without saving anything; annotation and
// persistence failures are logged and tolerated so one bad frame never
// stalls the watcher queue.
func (p *Processor) Process(ctx context.Context, imagePath string) error {
	start := time.Now()

	var detections []detection.Detection
	if p.engine != nil {
		var err error
		detections, err = p.engine.Detect(ctx, imagePath)
		if err != nil {
			return errors.New(err).
				Component("ingest").
				Category(errors.CategoryImageProcess).
				Context("image_path", imagePath).
				Build()
		}
	}

	annotatedPath := ""
	if p.engine != nil && len(detections) > 0 {
		var err error
		annotatedPath, err = p.engine.Annotate(ctx, imagePath, detections)
		if err != nil {
			// Annotation is a nicety; the detections themselves are
			// still worth keeping.
			p.log.Warn("annotation failed", "image_path", imagePath, "error", err)
			annotatedPath = ""
		}
	}

	result, err := p.store.Save(&resultstore.SaveRequest{
		ImagePath:     imagePath,
		Detections:    detections,
		AnnotatedPath: annotatedPath,
		Metadata: map[string]any{
			"source":        "directory_monitor",
			"original_path": imagePath,
		},
		ProcessingTime: time.Since(start).Seconds(),
	})
	if err != nil {
		p.log.Error("saving result failed", "image_path", imagePath, "error", err)
		return err
	}

	p.log.Info("image processed",
		"image_path", imagePath,
		"result_id", result.ID,
		"bird_count", result.BirdCount,
		"species", result.Species,
		"processing_time", result.ProcessingTime)
	return nil
}

// WatcherCallback adapts Process to the watcher's callback signature
// with a background context.
func (p *Processor) WatcherCallback(path string) error {
	return p.Process(context.Background(), path)
}
