// document.go: reading and writing the JSON side-car documents.
package resultstore

import (
	"encoding/json"
	"os"

	"github.com/tphakala/birdcam-go/internal/detection"
)

// writeDocument persists the durable on-disk record for a result.
func writeDocument(path string, result *DetectionResult) error {
	doc := Document{
		Timestamp:      result.Timestamp,
		ImagePath:      result.ImagePath,
		AnnotatedPath:  result.AnnotatedPath,
		ResultPath:     path,
		BirdDetected:   result.BirdDetected,
		BirdCount:      result.BirdCount,
		HasSpecies:     result.HasSpecies,
		Species:        result.Species,
		Confidence:     result.Confidence,
		Detections:     result.Detections,
		ProcessingTime: result.ProcessingTime,
		Metadata:       result.Metadata,
	}
	if doc.Detections == nil {
		doc.Detections = []detection.Detection{}
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// readDocument loads a result document from disk.
func readDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// mergeDocument enriches an index row with the document's authoritative
// fields. Index values win on conflict for the fields the index owns,
// so only the document-only fields are taken.
func mergeDocument(result *DetectionResult, doc *Document) {
	result.Detections = doc.Detections
	result.Metadata = doc.Metadata
	if result.AnnotatedPath == "" {
		result.AnnotatedPath = doc.AnnotatedPath
	}
	if result.ProcessingTime == 0 {
		result.ProcessingTime = doc.ProcessingTime
	}
}
