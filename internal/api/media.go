package api

import (
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdcam-go/internal/securefs"
)

// ServeImage handles GET /images/*. The requested path is sanitized,
// then looked up across the managed roots in a fixed order: images,
// annotated, uploads, and finally the date subdirectories of the images
// and annotated roots. The first existing, readable match is served.
// Nothing outside the sandboxed roots is ever reachable.
func (c *Controller) ServeImage(ctx echo.Context) error {
	requested := ctx.Param("*")
	safePath := securefs.SanitizeRelativePath(requested)
	if safePath == "" {
		return echo.NewHTTPError(http.StatusNotFound, "File not found")
	}

	type candidate struct {
		sfs *securefs.SecureFS
		rel string
	}
	candidates := []candidate{
		{c.imagesFS, safePath},
		{c.annotatedFS, safePath},
		{c.uploadsFS, safePath},
	}

	// Results stored under date subdirectories are addressed by bare
	// filename, so scan one level down too.
	for _, sfs := range []*securefs.SecureFS{c.imagesFS, c.annotatedFS} {
		subdirs, err := sfs.ListSubdirs()
		if err != nil {
			c.apiLogger.Warn("failed to list date subdirectories", "base", sfs.BaseDir(), "error", err)
			continue
		}
		for _, sub := range subdirs {
			candidates = append(candidates, candidate{sfs, path.Join(sub, safePath)})
		}
	}

	for _, cand := range candidates {
		if cand.sfs.FileExists(cand.rel) {
			return cand.sfs.ServeRelativeFile(ctx, cand.rel)
		}
	}

	return echo.NewHTTPError(http.StatusNotFound, "File not found")
}
