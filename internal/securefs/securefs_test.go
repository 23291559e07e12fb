package securefs

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) (*SecureFS, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "media")
	sfs, err := New(base)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sfs.Close() })
	return sfs, base
}

func TestNewCreatesBaseDirectory(t *testing.T) {
	sfs, base := newTestFS(t)
	info, err := os.Stat(base)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, base, sfs.BaseDir())
}

func TestFileExists(t *testing.T) {
	sfs, base := newTestFS(t)

	require.NoError(t, os.WriteFile(filepath.Join(base, "bird.jpg"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "sub"), 0o755))

	assert.True(t, sfs.FileExists("bird.jpg"))
	assert.False(t, sfs.FileExists("missing.jpg"))
	assert.False(t, sfs.FileExists("sub"), "directories are not servable files")
}

func TestListSubdirs(t *testing.T) {
	sfs, base := newTestFS(t)

	require.NoError(t, os.MkdirAll(filepath.Join(base, "2026-08-29"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "2026-08-30"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "loose.jpg"), []byte("x"), 0o644))

	dirs, err := sfs.ListSubdirs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2026-08-29", "2026-08-30"}, dirs)
}

func serveRequest(t *testing.T, sfs *SecureFS, rel string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	err := sfs.ServeRelativeFile(e.NewContext(req, rec), rel)
	if err != nil {
		e.HTTPErrorHandler(err, e.NewContext(req, rec))
	}
	return rec
}

func TestServeRelativeFile(t *testing.T) {
	sfs, base := newTestFS(t)
	require.NoError(t, os.WriteFile(filepath.Join(base, "bird.jpg"), []byte("jpeg-bytes"), 0o644))

	rec := serveRequest(t, sfs, "bird.jpg")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "image/jpeg")
}

func TestServeRelativeFileMissing(t *testing.T) {
	sfs, _ := newTestFS(t)

	err := sfs.ServeRelativeFile(echo.New().NewContext(
		httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()), "nope.jpg")
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestSymlinkCannotEscapeRoot(t *testing.T) {
	sfs, base := newTestFS(t)

	secret := filepath.Join(filepath.Dir(base), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("credentials"), 0o600))
	require.NoError(t, os.Symlink(secret, filepath.Join(base, "link.txt")))

	assert.False(t, sfs.FileExists("link.txt"))

	err := sfs.ServeRelativeFile(echo.New().NewContext(
		httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder()), "link.txt")
	assert.Error(t, err, "symlinks out of the sandbox must not be followed")
}
