package cache

import "github.com/briangreenhill/devkit/hal"

// Entry is one pre-cached sub-resource.
type Entry struct {
	// Key is the canonical URL the entry is stored under.
	Key string
	// OriginalURL is the self link as it appeared in the response.
	OriginalURL string
	// Entity is the embedded name the resource was found under.
	Entity  string
	Payload *hal.Resource
	// Metadata is a copy of the parent response metadata.
	Metadata hal.Metadata
	// Needed counts embedding occurrences, Used counts hits. The entry is
	// evicted on the hit that brings Used up to Needed.
	Needed int
	Used   int
}

// Remaining is the number of hits left before eviction.
func (e Entry) Remaining() int {
	if e.Used >= e.Needed {
		return 0
	}
	return e.Needed - e.Used
}
