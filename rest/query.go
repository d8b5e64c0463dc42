package rest

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// buildURL appends the merged base and call parameters to raw. Call
// parameters win over base ones, and a key already present in raw's query
// string is left alone.
func buildURL(raw string, base, call map[string]string) string {
	merged := make(map[string]string, len(base)+len(call))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range call {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		if inQuery(raw, k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return raw
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(raw)
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	for _, k := range keys {
		b.WriteString(sep)
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(merged[k]))
		sep = "&"
	}
	return b.String()
}

func inQuery(raw, key string) bool {
	i := strings.IndexByte(raw, '?')
	if i < 0 {
		return false
	}
	q := raw[i:]
	return strings.Contains(q, "?"+key+"=") || strings.Contains(q, "&"+key+"=")
}

// mergeHeaders returns base overlaid with call. Neither input is modified.
func mergeHeaders(base, call http.Header) http.Header {
	out := base.Clone()
	if out == nil {
		out = http.Header{}
	}
	for k, v := range call {
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
	return out
}

func cloneQuery(q map[string]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}
