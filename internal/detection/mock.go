package detection

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// MockEngine is a scripted Engine for tests and development runs. Its
// responses are set per instance; the zero value reports no detections
// and annotates by copying the input file.
type MockEngine struct {
	Detections  []Detection // returned by Detect
	DetectErr   error       // returned by Detect when set
	AnnotateErr error       // returned by Annotate when set
	AnnotateTo  string      // annotated path override; empty derives one

	detectCalls atomic.Int64
}

// DetectCalls reports how many times Detect has been invoked.
func (m *MockEngine) DetectCalls() int64 {
	return m.detectCalls.Load()
}

func (m *MockEngine) Detect(_ context.Context, _ string) ([]Detection, error) {
	m.detectCalls.Add(1)
	if m.DetectErr != nil {
		return nil, m.DetectErr
	}
	if m.Detections == nil {
		return []Detection{}, nil
	}
	return m.Detections, nil
}

func (m *MockEngine) Annotate(_ context.Context, imagePath string, _ []Detection) (string, error) {
	if m.AnnotateErr != nil {
		return "", m.AnnotateErr
	}
	target := m.AnnotateTo
	if target == "" {
		ext := filepath.Ext(imagePath)
		target = strings.TrimSuffix(imagePath, ext) + "_annotated" + ext
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return target, nil
}
