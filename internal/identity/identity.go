// Package identity resolves a configured group's desired membership into
// provider identities and attaches their SSH public keys.
package identity

import (
	"regexp"

	"github.com/automata-ops/glautomata/internal/platform"
)

// KeyedIdentity is a provider identity plus its public keys, in the order
// the provider returned them. Keys are not deduplicated: an identity listed
// by several sources keeps every copy verbatim.
type KeyedIdentity struct {
	platform.User
	Keys []string
}

var illegalChars = regexp.MustCompile(`[^0-9A-Za-z_]`)

// Sanitize maps a provider username onto a usable system account name by
// replacing every character outside [0-9A-Za-z_] with an underscore. All
// comparisons against live OS state go through this mapping first, so the
// name acted on is always the name the OS reports.
func Sanitize(username string) string {
	return illegalChars.ReplaceAllString(username, "_")
}
