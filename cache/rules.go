package cache

import (
	"regexp"
	"slices"
)

// Rules decides which embedded children are captured.
type Rules struct {
	// Endpoints gates every capture on the originating request URL. Nil
	// means any URL.
	Endpoints *regexp.Regexp
	// Eligible lists the embedded names that may be captured.
	Eligible []string
	// Gates holds optional per-name patterns the originating URL must also
	// match.
	Gates map[string]*regexp.Regexp
}

// Allows reports whether a child named name, found while scanning the
// response to origin, may be captured.
func (r Rules) Allows(name, origin string) bool {
	if r.Endpoints != nil && !r.Endpoints.MatchString(origin) {
		return false
	}
	if !slices.Contains(r.Eligible, name) {
		return false
	}
	if gate, ok := r.Gates[name]; ok && gate != nil && !gate.MatchString(origin) {
		return false
	}
	return true
}
