package securefs

import (
	"path"
	"regexp"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeRelativePath maps a caller-supplied path to a safe relative
// path, or returns an empty string when nothing usable remains. Parent
// directory segments are removed, absolute prefixes are stripped, and
// every remaining segment is reduced to a conservative character set.
// The result is deterministic and always relative, suitable for lookups
// under a sandboxed root.
func SanitizeRelativePath(name string) string {
	if name == "" {
		return ""
	}

	// Normalize separators so Windows-style input cannot smuggle
	// segments past the cleaning below.
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.TrimLeft(path.Clean("/"+name), "/")

	var kept []string
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		kept = append(kept, segment)
	}
	if len(kept) == 0 {
		return ""
	}

	var safe []string
	for _, segment := range kept {
		if cleaned := sanitizeFilename(segment); cleaned != "" {
			safe = append(safe, cleaned)
		}
	}
	if len(safe) == 0 {
		return ""
	}
	return path.Join(safe...)
}

// sanitizeFilename reduces a single path component to a safe filename.
func sanitizeFilename(name string) string {
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	return name
}
