package rest

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strconv"
)

// SetOption sets an option by name for callers that configure the client
// from loosely typed input. Unknown names and values of the wrong type are
// logged and ignored. With appendMode, map valued options are merged into
// the current value instead of replacing it. OptPreCache is read-only.
func (c *Client) SetOption(name string, value any, appendMode bool) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	o := c.opts.Clone()
	if err := setOption(&o, name, value, appendMode); err != nil {
		log := c.logger(c.opts)
		ev := log.Warn()
		if errors.As(err, new(unknownOptionError)) {
			ev = log.Debug()
		}
		ev.Err(err).Str("option", name).Msg("option ignored")
		return c
	}
	c.apply(o)
	return c
}

// SetOptions calls SetOption for every member of opts, in replace mode.
func (c *Client) SetOptions(opts map[string]any) *Client {
	for name, value := range opts {
		c.SetOption(name, value, false)
	}
	return c
}

// GetOption returns a copy of the named option, or nil for unknown names.
// OptPreCache returns a snapshot of the pre-cache keyed by canonical URL.
func (c *Client) GetOption(name string) any {
	if name == OptPreCache {
		return c.store.Snapshot()
	}

	o := c.Options()
	switch name {
	case OptDebug:
		return o.Debug
	case OptPreCacheEnabled:
		return o.PreCacheEnabled
	case OptFilterSharding:
		return o.FilterSharding
	case OptShardingPattern:
		return o.ShardingPattern
	case OptPreCacheEndpoints:
		return o.Endpoints
	case OptEmbeddedProperties:
		return o.EmbeddedProperties
	case OptPropertiesPerEndpoint:
		return o.PropertiesPerEndpoint
	case OptNameReplacements:
		return o.NameReplacements
	}
	return nil
}

type unknownOptionError string

func (e unknownOptionError) Error() string { return "unknown option " + strconv.Quote(string(e)) }

func setOption(o *Options, name string, value any, appendMode bool) error {
	var err error
	switch name {
	case OptDebug:
		o.Debug, err = toBool(value)
	case OptPreCacheEnabled:
		o.PreCacheEnabled, err = toBool(value)
	case OptFilterSharding:
		o.FilterSharding, err = toBool(value)
	case OptShardingPattern:
		o.ShardingPattern, err = toPattern(value)
	case OptPreCacheEndpoints:
		o.Endpoints, err = toPattern(value)
	case OptEmbeddedProperties:
		o.EmbeddedProperties, err = toStrings(value)
	case OptPropertiesPerEndpoint:
		var gates map[string]*regexp.Regexp
		if gates, err = toPatterns(value); err == nil {
			o.PropertiesPerEndpoint = merge(o.PropertiesPerEndpoint, gates, appendMode)
		}
	case OptNameReplacements:
		var names map[string]string
		if names, err = toStringMap(value); err == nil {
			o.NameReplacements = merge(o.NameReplacements, names, appendMode)
		}
	case OptPreCache:
		err = fmt.Errorf("option %q is read-only", name)
	default:
		err = unknownOptionError(name)
	}
	return err
}

func merge[V any](current, next map[string]V, appendMode bool) map[string]V {
	if !appendMode || len(next) == 0 {
		return next
	}
	out := maps.Clone(current)
	if out == nil {
		out = make(map[string]V, len(next))
	}
	maps.Copy(out, next)
	return out
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return strconv.ParseBool(t)
	}
	return false, fmt.Errorf("want bool, got %T", v)
}

func toPattern(v any) (*regexp.Regexp, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *regexp.Regexp:
		return t, nil
	case string:
		return regexp.Compile(t)
	}
	return nil, fmt.Errorf("want pattern, got %T", v)
}

func toStrings(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("want string list member, got %T", x)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("want string list, got %T", v)
}

func toPatterns(v any) (map[string]*regexp.Regexp, error) {
	switch t := v.(type) {
	case map[string]*regexp.Regexp:
		return maps.Clone(t), nil
	case map[string]string:
		out := make(map[string]*regexp.Regexp, len(t))
		for k, s := range t {
			re, err := regexp.Compile(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = re
		}
		return out, nil
	case map[string]any:
		out := make(map[string]*regexp.Regexp, len(t))
		for k, x := range t {
			re, err := toPattern(x)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = re
		}
		return out, nil
	}
	return nil, fmt.Errorf("want pattern map, got %T", v)
}

func toStringMap(v any) (map[string]string, error) {
	switch t := v.(type) {
	case map[string]string:
		return maps.Clone(t), nil
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("%s: want string, got %T", k, x)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("want string map, got %T", v)
}
