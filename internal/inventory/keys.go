package inventory

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxKeyStem = 64

// blobKey names a new blob after the item it belongs to. The uuid keeps keys
// unique across items with the same name.
func blobKey(itemName, original string) string {
	return sanitize(itemName) + "." + uuid.NewString() + extension(original)
}

// sanitize keeps ASCII letters, digits, '-' and '_'; every other run of
// characters becomes a single '_'.
func sanitize(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
		if b.Len() >= maxKeyStem {
			break
		}
	}
	s := b.String()
	if len(s) > maxKeyStem {
		s = s[:maxKeyStem]
	}
	if s == "" {
		return "image"
	}
	return s
}

// extension returns the lowercased extension of original, or "" when it is
// missing or not short and alphanumeric.
func extension(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if len(ext) < 2 || len(ext) > 9 {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}
