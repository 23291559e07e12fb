// Package securefs provides filesystem operations restricted to a base
// directory, using os.Root for OS-level filesystem sandboxing.
//
// Every managed root of the result store (images, annotated, uploads)
// gets its own SecureFS. Together with SanitizeRelativePath this
// guarantees the gateway never serves a file outside a managed root,
// including via "../" traversal or symlinks pointing elsewhere.
package securefs

import (
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"
)

// SecureFS provides filesystem operations with path validation.
type SecureFS struct {
	baseDir string   // the base directory all operations are restricted to
	root    *os.Root // the sandboxed filesystem root
}

// New creates a new secure filesystem rooted at baseDir. The directory
// is created if it does not exist.
func New(baseDir string) (*SecureFS, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem sandbox: %w", err)
	}

	return &SecureFS{
		baseDir: absPath,
		root:    root,
	}, nil
}

// BaseDir returns the absolute base directory of the sandbox.
func (sfs *SecureFS) BaseDir() string {
	return sfs.baseDir
}

// StatRel returns file info for a path relative to the base directory.
func (sfs *SecureFS) StatRel(relPath string) (fs.FileInfo, error) {
	return sfs.root.Stat(relPath)
}

// FileExists reports whether relPath names an existing regular file
// inside the sandbox.
func (sfs *SecureFS) FileExists(relPath string) bool {
	info, err := sfs.root.Stat(relPath)
	return err == nil && info.Mode().IsRegular()
}

// ListSubdirs returns the names of the direct subdirectories of the
// base directory. Used to search date-organized storage layouts.
func (sfs *SecureFS) ListSubdirs() ([]string, error) {
	entries, err := os.ReadDir(sfs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read base directory: %w", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// ServeRelativeFile serves a sandboxed file through an HTTP response.
// This is a secure alternative to echo.Context.File: the open goes
// through os.Root, so symlinks cannot escape the base directory.
func (sfs *SecureFS) ServeRelativeFile(c echo.Context, relPath string) error {
	f, err := sfs.root.Open(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return echo.NewHTTPError(http.StatusNotFound, "File not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to open file").SetInternal(err)
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get file info").SetInternal(err)
	}
	if !stat.Mode().IsRegular() {
		return echo.NewHTTPError(http.StatusForbidden, "Not a regular file")
	}

	if c.Response().Header().Get(echo.HeaderContentType) == "" {
		c.Response().Header().Set(echo.HeaderContentType, contentTypeFor(relPath))
	}

	http.ServeContent(c.Response(), c.Request(), filepath.Base(relPath), stat.ModTime(), f)
	return nil
}

// Close releases the sandboxed root.
func (sfs *SecureFS) Close() error {
	return sfs.root.Close()
}

// contentTypeFor guesses a content type from the file extension,
// defaulting to octet-stream.
func contentTypeFor(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
