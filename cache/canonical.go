// Package cache implements the hypermedia pre-cache: a reference-counted
// store of embedded sub-resources captured from earlier responses, keyed by
// canonical URL.
package cache

import "regexp"

// DefaultShardingPattern matches the CDN shard prefix on photorank hosts,
// e.g. "z3photorankapi-a." or "zzphotorankmedia-a.".
var DefaultShardingPattern = regexp.MustCompile(`z?[z0-9]?(photorankmedia|photorankapi)-a\.`)

// Canonicalizer turns a URL into a store key.
type Canonicalizer struct {
	// Enabled turns on shard stripping. When false Canonical is the identity.
	Enabled bool
	Pattern *regexp.Regexp
}

// DefaultCanonicalizer strips DefaultShardingPattern.
func DefaultCanonicalizer() Canonicalizer {
	return Canonicalizer{Enabled: true, Pattern: DefaultShardingPattern}
}

// Canonical removes every match of the sharding pattern. Removal is repeated
// until the string stops changing, so Canonical(Canonical(u)) == Canonical(u)
// even for patterns whose removal exposes a new match.
func (c Canonicalizer) Canonical(u string) string {
	if !c.Enabled || c.Pattern == nil {
		return u
	}
	for {
		next := c.Pattern.ReplaceAllLiteralString(u, "")
		if next == u {
			return u
		}
		u = next
	}
}
