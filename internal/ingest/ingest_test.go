package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/resultstore"
)

// recordingStore captures Save calls without touching disk.
type recordingStore struct {
	resultstore.Interface
	saves   []*resultstore.SaveRequest
	saveErr error
}

func (s *recordingStore) Save(req *resultstore.SaveRequest) (*resultstore.DetectionResult, error) {
	s.saves = append(s.saves, req)
	if s.saveErr != nil {
		return &resultstore.DetectionResult{}, s.saveErr
	}
	return &resultstore.DetectionResult{
		ID:             uint(len(s.saves)),
		BirdDetected:   len(req.Detections) > 0,
		BirdCount:      len(req.Detections),
		Species:        detection.SpeciesSummary(req.Detections),
		ProcessingTime: req.ProcessingTime,
	}, nil
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg-bytes"), 0o644))
	return path
}

func TestProcessSavesDetectionsWithMonitorMetadata(t *testing.T) {
	imagePath := writeImage(t)
	engine := &detection.MockEngine{
		Detections: []detection.Detection{
			{ClassName: "European Robin", Confidence: 0.91, Species: "European Robin", SpeciesConfidence: 0.88},
		},
	}
	store := &recordingStore{}

	err := New(engine, store).Process(context.Background(), imagePath)
	require.NoError(t, err)
	require.Len(t, store.saves, 1)

	req := store.saves[0]
	assert.Equal(t, imagePath, req.ImagePath)
	assert.Len(t, req.Detections, 1)
	assert.NotEmpty(t, req.AnnotatedPath, "detections should trigger annotation")
	assert.Equal(t, "directory_monitor", req.Metadata["source"])
	assert.Equal(t, imagePath, req.Metadata["original_path"])
	assert.False(t, req.SkipCopyOriginal)
	assert.Greater(t, req.ProcessingTime, 0.0)
}

func TestProcessDetectFailureSavesNothing(t *testing.T) {
	engine := &detection.MockEngine{DetectErr: errors.New("inference backend down")}
	store := &recordingStore{}

	err := New(engine, store).Process(context.Background(), writeImage(t))
	require.Error(t, err)
	assert.Empty(t, store.saves, "a failed detection must not be persisted")
}

func TestProcessAnnotationFailureIsNonFatal(t *testing.T) {
	engine := &detection.MockEngine{
		Detections:  []detection.Detection{{ClassName: "bird", Confidence: 0.8}},
		AnnotateErr: errors.New("cannot write annotated image"),
	}
	store := &recordingStore{}

	err := New(engine, store).Process(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Len(t, store.saves, 1)
	assert.Empty(t, store.saves[0].AnnotatedPath)
}

func TestProcessNoEngineRecordsEmptyResult(t *testing.T) {
	store := &recordingStore{}

	err := New(nil, store).Process(context.Background(), writeImage(t))
	require.NoError(t, err)
	require.Len(t, store.saves, 1)
	assert.Empty(t, store.saves[0].Detections)
	assert.Empty(t, store.saves[0].AnnotatedPath)
}

func TestProcessSaveErrorIsReturned(t *testing.T) {
	store := &recordingStore{saveErr: errors.New("disk full")}

	err := New(&detection.MockEngine{}, store).Process(context.Background(), writeImage(t))
	assert.Error(t, err)
}
