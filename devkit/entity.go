package devkit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/briangreenhill/devkit/hal"
)

// Kind names an entity type. Kinds match the embedded names the API uses.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindMedia    Kind = "media"
	KindUser     Kind = "user"
	KindStream   Kind = "stream"
	KindCategory Kind = "category"
	KindWidget   Kind = "widget"
)

// Entity is a parsed API resource. Data holds the plain fields plus three
// derived members: "link" (the self href), "resources" (links of the
// embedded children) and, for kinds with forms, "actions".
type Entity struct {
	Kind Kind
	Data map[string]any
}

// Get walks a slash separated path through Data, e.g.
// "resources/media/recent/link". It returns nil when any step is missing.
func (e *Entity) Get(path string) any {
	if e == nil {
		return nil
	}
	var cur any = e.Data
	for _, part := range strings.Split(path, "/") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		if cur, ok = m[part]; !ok {
			return nil
		}
	}
	return cur
}

// Text is Get formatted as a string; "" when missing.
func (e *Entity) Text(path string) string {
	switch v := e.Get(path).(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Link returns the entity's self href.
func (e *Entity) Link() string { return e.Text("link") }

func (e *Entity) String() string {
	return fmt.Sprintf("<%s %s>", e.Kind, e.Text("id"))
}

// reserved members never copied into Data
var stripped = []string{"_embedded", "_fixed", "_forms", "_links", "_analytics", "views"}

func parseEntity(kind Kind, r *hal.Resource, withActions bool) (*Entity, error) {
	if r.Self() == "" {
		return nil, fmt.Errorf("parse %s: %w", kind, ErrNoResource)
	}

	data, err := decodeMap(r.Raw())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	for _, k := range stripped {
		delete(data, k)
	}

	data["link"] = r.Self()
	data["resources"] = resources(r)
	if withActions {
		data["actions"] = actions(r)
	}
	return &Entity{Kind: kind, Data: data}, nil
}

// resources maps embedded children to their links. "group:name" children
// are nested as resources[group][name]. Plain media and customer children
// are skipped.
func resources(r *hal.Resource) map[string]any {
	out := map[string]any{}
	for _, name := range r.Names() {
		c := r.Child(name)
		href := c.Resource.Self()
		if href == "" {
			continue
		}
		link := map[string]any{"link": href}

		if g, sub, ok := strings.Cut(name, ":"); ok {
			group(out, g)[sub] = link
			continue
		}
		if name == "media" || name == "customer" {
			continue
		}
		out[name] = link
	}
	return out
}

// actions maps forms the same way resources maps children. The plain media
// form is skipped.
func actions(r *hal.Resource) map[string]any {
	out := map[string]any{}
	for name, raw := range r.Forms {
		form, err := decode(raw)
		if err != nil {
			continue
		}
		if g, sub, ok := strings.Cut(name, ":"); ok {
			group(out, g)[sub] = form
			continue
		}
		if name != "media" {
			out[name] = form
		}
	}
	return out
}

func group(m map[string]any, name string) map[string]any {
	g, ok := m[name].(map[string]any)
	if !ok {
		g = map[string]any{}
		m[name] = g
	}
	return g
}

func decode(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeMap(raw json.RawMessage) (map[string]any, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("want object, got %T", v)
	}
	return m, nil
}

// childItems returns the members of a list child, or the child itself
// when it is a single object.
func childItems(r *hal.Resource, name string) []*hal.Resource {
	c := r.Child(name)
	switch {
	case c == nil:
		return nil
	case c.Kind == hal.Bare || c.Kind == hal.ArrayWrapped:
		return c.Items
	case c.Resource != nil:
		return []*hal.Resource{c.Resource}
	}
	return nil
}
