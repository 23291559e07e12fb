package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdcam-go/internal/detection"
	"github.com/tphakala/birdcam-go/internal/resultstore"
	"github.com/tphakala/birdcam-go/internal/securefs"
)

// inferenceTimeout bounds the synchronous on-demand detection call; the
// engine's latency is otherwise unbounded.
const inferenceTimeout = 30 * time.Second

// allowedUploadExts are the accepted upload file extensions.
var allowedUploadExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
}

// UploadResponse is the body returned for a processed upload.
type UploadResponse struct {
	Success        bool                  `json:"success"`
	ResultID       uint                  `json:"result_id"`
	Detections     []detection.Detection `json:"detections"`
	ProcessingTime float64               `json:"processing_time"`
	ImageURL       string                `json:"image_url"`
	AnnotatedURL   string                `json:"annotated_url,omitempty"`
}

// Upload handles POST /api/upload: persist the file under the uploads
// root, run detection synchronously, annotate when something was found
// and save the result. Disabled entirely when no engine is configured.
func (c *Controller) Upload(ctx echo.Context) error {
	if c.Engine == nil {
		return c.HandleError(ctx, nil, "On-demand inference not available", http.StatusBadRequest)
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return c.HandleError(ctx, err, "No file provided", http.StatusBadRequest)
	}
	if fileHeader.Filename == "" {
		return c.HandleError(ctx, nil, "No file selected", http.StatusBadRequest)
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExts[ext] {
		return c.HandleError(ctx, nil, "File type not allowed", http.StatusBadRequest)
	}

	uploadPath, err := c.saveUpload(fileHeader)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to store upload", http.StatusInternalServerError)
	}

	detectCtx, cancel := context.WithTimeout(ctx.Request().Context(), inferenceTimeout)
	defer cancel()

	start := time.Now()
	detections, err := c.Engine.Detect(detectCtx, uploadPath)
	if err != nil {
		return c.HandleError(ctx, err, "Inference failed", http.StatusInternalServerError)
	}
	processingTime := time.Since(start).Seconds()

	annotatedPath := ""
	if len(detections) > 0 {
		annotatedPath, err = c.Engine.Annotate(detectCtx, uploadPath, detections)
		if err != nil {
			c.apiLogger.Warn("annotation failed for upload", "path", uploadPath, "error", err)
			annotatedPath = ""
		}
	}

	result, err := c.Store.Save(&resultstore.SaveRequest{
		ImagePath:     uploadPath,
		Detections:    detections,
		AnnotatedPath: annotatedPath,
		Metadata: map[string]any{
			"source":            "upload",
			"original_filename": fileHeader.Filename,
			"user_agent":        ctx.Request().UserAgent(),
			"remote_addr":       ctx.RealIP(),
		},
		ProcessingTime:   processingTime,
		SkipCopyOriginal: true, // already inside the uploads root
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to save result", http.StatusInternalServerError)
	}

	// The store just grew; total_count must not lag behind this upload.
	c.statsCache.Delete(statsCacheKey)

	resp := &UploadResponse{
		Success:        true,
		ResultID:       result.ID,
		Detections:     detections,
		ProcessingTime: processingTime,
		ImageURL:       imageURL(result.ImagePath),
	}
	if result.AnnotatedPath != "" {
		resp.AnnotatedURL = imageURL(result.AnnotatedPath)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// saveUpload writes the multipart file under the uploads root with a
// collision-resistant name: timestamp, short random suffix, sanitized
// original name.
func (c *Controller) saveUpload(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	safeName := securefs.SanitizeRelativePath(filepath.Base(fileHeader.Filename))
	if safeName == "" {
		safeName = "upload" + strings.ToLower(filepath.Ext(fileHeader.Filename))
	}
	name := fmt.Sprintf("%s_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
		safeName)

	target := filepath.Join(c.uploadsFS.BaseDir(), name)
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating upload target: %w", err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return target, nil
}
