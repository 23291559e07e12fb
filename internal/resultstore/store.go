// Package resultstore gives each detection event a durable, evictable,
// queryable home: a SQLite index plus side-car files (original image,
// annotated image, JSON result document) under a set of managed roots.
package resultstore

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/birdcam-go/internal/conf"
	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/errors"
	"github.com/tphakala/birdcam-go/internal/logging"
)

// ErrNotFound is returned when a result id is not in the index.
var ErrNotFound = errors.NewStd("result not found")

// timestampLayout is fixed-width so lexicographic order on the indexed
// timestamp column equals chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000"

// resultIDLayout prefixes generated result identifiers.
const resultIDLayout = "20060102_150405"

// Store owns the structured index and the on-disk layout. One Store
// instance per process owns its roots exclusively; concurrent writers
// go through Save, which serializes id generation, insertion and
// eviction behind a single writer lock.
type Store struct {
	baseDir      string
	imagesDir    string
	annotatedDir string
	resultsDir   string
	uploadsDir   string

	maxResults     int
	organizeByDate bool

	db  *gorm.DB
	log *slog.Logger

	writeMu sync.Mutex // serializes Save and eviction
	seq     uint64     // per-process sequence for result identifiers
}

// New opens (or creates) a result store rooted at the configured base
// path and migrates the index schema.
func New(settings *conf.Settings) (*Store, error) {
	baseDir, err := filepath.Abs(settings.Storage.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolving base path: %w", err)
	}

	s := &Store{
		baseDir:        baseDir,
		imagesDir:      filepath.Join(baseDir, "images"),
		annotatedDir:   filepath.Join(baseDir, "annotated"),
		resultsDir:     filepath.Join(baseDir, "results"),
		uploadsDir:     filepath.Join(baseDir, "uploads"),
		maxResults:     settings.Storage.MaxResults,
		organizeByDate: settings.Storage.OrganizeByDate,
		log:            logging.ForService("resultstore"),
	}

	for _, dir := range []string{s.baseDir, s.imagesDir, s.annotatedDir, s.resultsDir, s.uploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating storage directory %q: %w", dir, err)
		}
	}

	dbPath := settings.Storage.SQLitePath
	if dbPath == "" {
		dbPath = "results.db"
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(baseDir, dbPath)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: createGormLogger()})
	if err != nil {
		return nil, errors.Newf("failed to open result index: %w", err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Context("path", dbPath).
			Build()
	}
	s.db = db

	if err := db.AutoMigrate(&DetectionResult{}); err != nil {
		return nil, errors.Newf("failed to migrate result index: %w", err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}

	s.log.Info("result store initialized", "base", baseDir, "index", dbPath, "max_results", s.maxResults)
	return s, nil
}

// BaseDir returns the store's base directory.
func (s *Store) BaseDir() string { return s.baseDir }

// ImagesDir returns the managed root for stored original images.
func (s *Store) ImagesDir() string { return s.imagesDir }

// AnnotatedDir returns the managed root for annotated images.
func (s *Store) AnnotatedDir() string { return s.annotatedDir }

// ResultsDir returns the managed root for JSON result documents.
func (s *Store) ResultsDir() string { return s.resultsDir }

// UploadsDir returns the managed root for uploaded images.
func (s *Store) UploadsDir() string { return s.uploadsDir }

// OrganizeByDate reports whether stored files are nested under date
// subdirectories.
func (s *Store) OrganizeByDate() bool { return s.organizeByDate }

// Save records one detection result. It never panics and never blocks
// the ingest pipeline on its own bookkeeping: internal failures yield a
// minimal result plus the error, and the caller logs and moves on.
func (s *Store) Save(req *SaveRequest) (*DetectionResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now()
	timestamp := now.Format(timestampLayout)
	resultID := s.nextResultIDLocked(now)

	minimal := func(err error) (*DetectionResult, error) {
		return &DetectionResult{Timestamp: timestamp, ImagePath: req.ImagePath}, err
	}

	paths, err := s.storagePaths(req.ImagePath, resultID, now)
	if err != nil {
		return minimal(errors.New(err).
			Component("resultstore").
			Category(errors.CategoryFileIO).
			Context("image", req.ImagePath).
			Build())
	}

	imagePath := req.ImagePath
	if abs, absErr := filepath.Abs(imagePath); absErr == nil {
		imagePath = abs
	}

	// Copy of the original is best effort: the result is still recorded
	// with the source path when the copy fails.
	if !req.SkipCopyOriginal {
		if err := copyFile(req.ImagePath, paths.image); err != nil {
			s.log.Warn("failed to copy original image, keeping source path",
				"source", req.ImagePath, "error", err)
		} else {
			imagePath = paths.image
		}
	}

	species := detection.SpeciesSummary(req.Detections)
	result := &DetectionResult{
		Timestamp:      timestamp,
		ImagePath:      imagePath,
		AnnotatedPath:  req.AnnotatedPath,
		ResultPath:     paths.document,
		BirdDetected:   len(req.Detections) > 0,
		BirdCount:      len(req.Detections),
		HasSpecies:     species != "",
		Species:        species,
		Confidence:     detection.MaxConfidence(req.Detections),
		ProcessingTime: req.ProcessingTime,
		Source:         metadataSource(req.Metadata),
		Detections:     req.Detections,
		Metadata:       req.Metadata,
	}

	if err := writeDocument(paths.document, result); err != nil {
		return minimal(errors.New(err).
			Component("resultstore").
			Category(errors.CategoryFileIO).
			Context("document", paths.document).
			Build())
	}

	if err := s.db.Create(result).Error; err != nil {
		return minimal(errors.Newf("inserting result row: %w", err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build())
	}

	s.evictLocked()

	return result, nil
}

// Delete removes one result's index row and its three files. File
// removal failures are logged, not fatal: an orphan file leak is
// preferred over an inconsistent index.
func (s *Store) Delete(id uint) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var result DetectionResult
	if err := s.db.First(&result, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return errors.Newf("loading result %d: %w", id, err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}

	s.removeResultFiles(&result)

	if err := s.db.Delete(&DetectionResult{}, id).Error; err != nil {
		return errors.Newf("deleting result %d: %w", id, err).
			Component("resultstore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// Close releases the index database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// evictLocked applies the retention policy: when the indexed count
// exceeds the maximum, the oldest entries by timestamp are removed,
// files first, index rows last. Callers must hold writeMu so the count
// re-check and the delete happen under the same lock.
func (s *Store) evictLocked() {
	var count int64
	if err := s.db.Model(&DetectionResult{}).Count(&count).Error; err != nil {
		s.log.Error("eviction count query failed", "error", err)
		return
	}
	if count <= int64(s.maxResults) {
		return
	}

	toDelete := count - int64(s.maxResults)
	var victims []DetectionResult
	if err := s.db.Order("timestamp ASC, id ASC").Limit(int(toDelete)).Find(&victims).Error; err != nil {
		s.log.Error("eviction select failed", "error", err)
		return
	}

	ids := make([]uint, 0, len(victims))
	for i := range victims {
		s.removeResultFiles(&victims[i])
		ids = append(ids, victims[i].ID)
	}

	if err := s.db.Delete(&DetectionResult{}, ids).Error; err != nil {
		s.log.Error("eviction row delete failed", "error", err)
		return
	}
	s.log.Info("evicted old results", "count", len(ids))
}

// removeResultFiles deletes a result's image, annotated image and
// document. Each deletion is attempted independently; failures are
// warnings.
func (s *Store) removeResultFiles(result *DetectionResult) {
	for _, path := range []string{result.ImagePath, result.AnnotatedPath, result.ResultPath} {
		if path == "" {
			continue
		}
		if !s.ownsPath(path) {
			// Never delete outside the managed roots: results saved
			// with SkipCopyOriginal keep pointing at the source file.
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not delete result file", "path", path, "error", err)
		}
	}
}

// ownsPath reports whether path lies under one of the managed roots.
func (s *Store) ownsPath(path string) bool {
	for _, root := range []string{s.imagesDir, s.annotatedDir, s.resultsDir, s.uploadsDir} {
		if rel, err := filepath.Rel(root, path); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// nextResultIDLocked generates a result identifier from a
// timestamp-plus-sequence scheme. Callers must hold writeMu.
func (s *Store) nextResultIDLocked(now time.Time) string {
	s.seq++
	return fmt.Sprintf("%s_%06d", now.Format(resultIDLayout), s.seq)
}

// storagePaths holds the computed target locations of one result.
type storagePaths struct {
	image     string
	annotated string
	document  string
}

// storagePaths computes the image/annotated/document paths for a new
// result, creating date subdirectories when configured.
func (s *Store) storagePaths(imagePath, resultID string, now time.Time) (*storagePaths, error) {
	imgDir, annDir, resDir := s.imagesDir, s.annotatedDir, s.resultsDir
	if s.organizeByDate {
		date := now.Format("2006-01-02")
		imgDir = filepath.Join(imgDir, date)
		annDir = filepath.Join(annDir, date)
		resDir = filepath.Join(resDir, date)
		for _, dir := range []string{imgDir, annDir, resDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating date directory %q: %w", dir, err)
			}
		}
	}

	filename := filepath.Base(imagePath)
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)

	return &storagePaths{
		image:     filepath.Join(imgDir, fmt.Sprintf("%s_%s%s", baseName, resultID, ext)),
		annotated: filepath.Join(annDir, fmt.Sprintf("%s_%s_annotated%s", baseName, resultID, ext)),
		document:  filepath.Join(resDir, fmt.Sprintf("%s_%s.json", baseName, resultID)),
	}, nil
}

// metadataSource extracts the conventional "source" metadata key.
func metadataSource(metadata map[string]any) string {
	if metadata == nil {
		return "unknown"
	}
	if src, ok := metadata["source"].(string); ok && src != "" {
		return src
	}
	return "unknown"
}

// copyFile copies src to dst, preserving content only.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// createGormLogger configures the GORM logger to only surface slow
// queries and errors.
func createGormLogger() gormlogger.Interface {
	return gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      gormlogger.Warn,
		},
	)
}
