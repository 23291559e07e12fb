package securefs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRelativePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain filename", "bird.jpg", "bird.jpg"},
		{"nested path", "2026-08-30/bird.jpg", "2026-08-30/bird.jpg"},
		{"parent traversal", "../etc/passwd", "etc/passwd"},
		{"deep traversal", "../../../../etc/passwd", "etc/passwd"},
		{"embedded traversal", "a/../../b/file.png", "b/file.png"},
		{"absolute path", "/etc/passwd", "etc/passwd"},
		{"windows separators", `..\..\secret.txt`, "secret.txt"},
		{"dot segments", "./a/./b.jpg", "a/b.jpg"},
		{"unsafe characters", "a b*c?.jpg", "a_b_c_.jpg"},
		{"empty", "", ""},
		{"only traversal", "../..", ""},
		{"only dots", "...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeRelativePath(tt.input))
		})
	}
}

func TestSanitizeRelativePathNeverEscapes(t *testing.T) {
	hostile := []string{
		"../../../../../../etc/shadow",
		"..%2F..%2Fetc/shadow",
		"/../../root/.ssh/id_rsa",
		`C:\Windows\system32\config`,
		"a/b/../../../../x",
		strings.Repeat("../", 50) + "etc/passwd",
	}
	for _, input := range hostile {
		got := SanitizeRelativePath(input)
		assert.False(t, strings.HasPrefix(got, "/"), "input %q produced absolute path %q", input, got)
		for _, segment := range strings.Split(got, "/") {
			assert.NotEqual(t, "..", segment, "input %q produced traversal segment in %q", input, got)
		}
	}
}
