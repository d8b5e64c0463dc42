package rest

import (
	"maps"
	"regexp"
	"slices"

	"github.com/briangreenhill/devkit/cache"
)

// Names accepted by SetOption and GetOption.
const (
	OptDebug                 = "debug"
	OptPreCacheEnabled       = "preCacheEnabled"
	OptFilterSharding        = "filterSharding"
	OptShardingPattern       = "shardingPattern"
	OptPreCache              = "preCache"
	OptPreCacheEndpoints     = "preCacheEndpoints"
	OptEmbeddedProperties    = "preCacheEmbeddedProperties"
	OptPropertiesPerEndpoint = "preCacheEmbeddedPropertiesPerEndpoint"
	OptNameReplacements      = "preCacheEntityNamesReplacement"
)

// DefaultEndpoints restricts capture to responses of single media, stream
// and user lookups and their recent listings.
var DefaultEndpoints = regexp.MustCompile(`/(media|stream|users)/([0-9]+|recent)\?`)

// Options controls the pre-cache.
type Options struct {
	// Debug logs the pre-cache lifecycle at debug level.
	Debug bool
	// PreCacheEnabled turns on capturing embedded children.
	PreCacheEnabled bool
	// FilterSharding strips ShardingPattern from store keys.
	FilterSharding  bool
	ShardingPattern *regexp.Regexp
	// Endpoints gates capture on the request URL. Nil means any URL.
	Endpoints *regexp.Regexp
	// EmbeddedProperties lists the embedded names that may be captured.
	EmbeddedProperties []string
	// PropertiesPerEndpoint adds a request URL gate for individual names.
	PropertiesPerEndpoint map[string]*regexp.Regexp
	// NameReplacements renames entities served from the pre-cache.
	NameReplacements map[string]string
}

// DefaultOptions returns the stock configuration. Capturing is off.
func DefaultOptions() Options {
	return Options{
		FilterSharding:  true,
		ShardingPattern: cache.DefaultShardingPattern,
		Endpoints:       DefaultEndpoints,
		EmbeddedProperties: []string{
			"base_image",
			"cover_media",
			"streams:all",
			"categories:all",
			"media",
		},
		PropertiesPerEndpoint: map[string]*regexp.Regexp{},
		NameReplacements: map[string]string{
			"base_image":  "media",
			"cover_media": "media",
		},
	}
}

// Clone returns a deep copy. Compiled patterns are shared.
func (o Options) Clone() Options {
	o.EmbeddedProperties = slices.Clone(o.EmbeddedProperties)
	o.PropertiesPerEndpoint = maps.Clone(o.PropertiesPerEndpoint)
	o.NameReplacements = maps.Clone(o.NameReplacements)
	return o
}

// Rename applies NameReplacements to entity.
func (o Options) Rename(entity string) string {
	if to, ok := o.NameReplacements[entity]; ok && to != "" {
		return to
	}
	return entity
}

func (o Options) canonicalizer() cache.Canonicalizer {
	return cache.Canonicalizer{Enabled: o.FilterSharding, Pattern: o.ShardingPattern}
}

func (o Options) scanner() cache.Scanner {
	return cache.Scanner{Rules: cache.Rules{
		Endpoints: o.Endpoints,
		Eligible:  o.EmbeddedProperties,
		Gates:     o.PropertiesPerEndpoint,
	}}
}
