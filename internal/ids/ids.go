// Package ids generates opaque entity identifiers and resolves id prefixes
// against a collection, the way the teacher's internal/ids package resolves
// agent addresses — generalized here from gastown's role/rig/worker identity
// tuple to the plain UUID-shaped strings spec.md calls for.
package ids

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/super-agent-ai/tmux-agents-sub006/internal/apperr"
)

// New generates a fresh opaque identifier.
func New() string {
	return uuid.NewString()
}

// Resolve finds the single id in candidates that has prefix as a prefix.
// It fails with apperr.NotFound if no candidate matches, or apperr.Ambiguous
// if more than one does. Exact matches win outright even when they are also
// a prefix of another id's prefix (e.g. "a1b2c" resolves to itself even if
// "a1b2c3d4" also starts with "a1b2c").
func Resolve(candidates []string, prefix string) (string, error) {
	if prefix == "" {
		return "", apperr.New(apperr.NotFound, "empty id prefix")
	}
	var matches []string
	for _, c := range candidates {
		if c == prefix {
			return c, nil
		}
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", apperr.Newf(apperr.NotFound, "no entity matches id prefix %q", prefix)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", apperr.Newf(apperr.Ambiguous, "id prefix %q matches %d entities", prefix, len(matches)).
			WithData(map[string]any{"matches": matches})
	}
}
