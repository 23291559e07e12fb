// Package detection defines the detection data model and the engine
// contract the ingest pipeline and upload route consume.
package detection

import (
	"sort"
	"strings"
)

// GenericClassName is the placeholder class produced by single-stage
// detectors when no species identification is available. It is excluded
// from species summaries.
const GenericClassName = "bird"

// Box is a bounding box in pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one bounding box with class and confidence within a
// processed image. Species and SpeciesConfidence are populated when a
// two-stage detect-then-classify model is used.
type Detection struct {
	ClassID           int     `json:"class_id"`
	ClassName         string  `json:"class_name"`
	Confidence        float64 `json:"confidence"`
	Box               Box     `json:"bbox"`
	Species           string  `json:"species,omitempty"`
	SpeciesConfidence float64 `json:"species_confidence,omitempty"`
}

// SpeciesSummary returns the de-duplicated, comma-joined set of
// non-generic class names across detections, sorted for determinism.
func SpeciesSummary(detections []Detection) string {
	seen := make(map[string]struct{})
	for i := range detections {
		name := detections[i].ClassName
		if name == "" || strings.EqualFold(name, GenericClassName) {
			continue
		}
		seen[name] = struct{}{}
	}
	if len(seen) == 0 {
		return ""
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// MaxConfidence returns the highest confidence across detections, or
// 0.0 when there are none.
func MaxConfidence(detections []Detection) float64 {
	maxConf := 0.0
	for i := range detections {
		if detections[i].Confidence > maxConf {
			maxConf = detections[i].Confidence
		}
	}
	return maxConf
}
