package router

import (
	"fmt"
	"strings"
)

const maxIndexNameLen = 255

// SanitizeIndexName maps an arbitrary document name to a valid index
// identifier: lowercase, `[a-z0-9_-]` only, no consecutive or edge
// dashes, first char a letter or underscore. Idempotent.
func SanitizeIndexName(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	out := b.String()
	for strings.Contains(out, "--") {
		out = strings.ReplaceAll(out, "--", "-")
	}
	out = strings.Trim(out, "-_")

	if out != "" {
		first := out[0]
		if !(first >= 'a' && first <= 'z') && first != '_' {
			out = "doc-" + out
		}
	}

	if len(out) > maxIndexNameLen {
		out = out[:maxIndexNameLen]
		out = strings.Trim(out, "-_")
	}
	if out == "" {
		out = "document"
	}
	return out
}

// maxCollisionAttempts bounds the suffix search.
const maxCollisionAttempts = 1000

// NextAvailable returns base when unused, else base-N with the smallest
// free N >= 1. The exists callback reports whether a name is taken.
func NextAvailable(base string, exists func(string) bool) (string, error) {
	if !exists(base) {
		return base, nil
	}
	for n := 1; n <= maxCollisionAttempts; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no available index name for %q after %d attempts", base, maxCollisionAttempts)
}
