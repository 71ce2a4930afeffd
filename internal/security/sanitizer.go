// Package security normalises user-supplied text before it is stored.
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer is safe for concurrent use.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text prepares free text (messages, appointment fields, notes) for storage.
// Content is kept as sent apart from trimming; escaping belongs to whoever
// renders it. Postgres text cannot hold NUL or invalid UTF-8, so those are
// replaced.
func (s *Sanitizer) Text(raw string) string {
	clean := strings.ToValidUTF8(raw, "�")
	clean = strings.ReplaceAll(clean, "\x00", "")
	return strings.TrimSpace(clean)
}

// Label cleans a single-line profile field such as a name or specialization.
// These are copied into channel metadata and notification titles, so markup
// is removed and runs of whitespace collapse to one space.
func (s *Sanitizer) Label(raw string) string {
	stripped := html.UnescapeString(s.policy.Sanitize(s.Text(raw)))
	return strings.Join(strings.Fields(stripped), " ")
}
