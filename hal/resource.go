// Package hal models the hypermedia documents returned by the photorank API.
//
// A resource carries plain fields plus three reserved members: _links,
// _embedded and _forms. Embedded children come in a handful of shapes and
// are classified once at decode time into a Kind so callers can switch on
// the shape instead of probing raw JSON.
package hal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Link is a single hypermedia link.
type Link struct {
	Href string `json:"href"`
}

// Kind classifies an embedded child.
type Kind int

const (
	// Inline is an embedded object without the fixed marker (or null).
	Inline Kind = iota
	// Single is one linked sub-resource carrying the fixed marker.
	Single
	// ArrayWrapped is a fixed wrapper holding a single embedded list.
	ArrayWrapped
	// Bare is a plain JSON array of sub-resources.
	Bare
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case ArrayWrapped:
		return "array-wrapped"
	case Bare:
		return "bare"
	default:
		return "inline"
	}
}

// Child is one named entry of a resource's _embedded container.
type Child struct {
	Kind Kind
	// Resource is the child object for Inline and Single children, and the
	// wrapper object for ArrayWrapped children.
	Resource *Resource
	// Items holds the list members for ArrayWrapped and Bare children.
	Items []*Resource
}

// Resource is a decoded hypermedia object.
type Resource struct {
	Links    map[string]Link
	Forms    map[string]json.RawMessage
	Embedded map[string]*Child
	Fixed    bool
	// Fields holds every top-level member, reserved ones included.
	Fields map[string]json.RawMessage

	hasLinks  bool
	linksList bool
	linksLen  int
	hasSelf   bool
	raw       json.RawMessage
}

// ParseResource decodes a single hypermedia object.
func ParseResource(b []byte) (*Resource, error) {
	r := &Resource{}
	if err := r.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Resource) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return fmt.Errorf("hal: resource: %w", err)
	}
	if fields == nil {
		return errors.New("hal: resource is null")
	}

	*r = Resource{
		Fields: fields,
		raw:    append(json.RawMessage(nil), b...),
	}

	if v, ok := fields["_fixed"]; ok {
		r.Fixed = truthy(v)
	}
	if v, ok := fields["_links"]; ok && !isNull(v) {
		r.decodeLinks(v)
	}
	if v, ok := fields["_forms"]; ok && !isNull(v) {
		_ = json.Unmarshal(v, &r.Forms)
	}
	if v, ok := fields["_embedded"]; ok && !isNull(v) {
		r.decodeEmbedded(v)
	}
	return nil
}

// MarshalJSON re-emits the document exactly as it was received.
func (r *Resource) MarshalJSON() ([]byte, error) {
	if r == nil || r.raw == nil {
		return []byte("null"), nil
	}
	return r.raw, nil
}

func (r *Resource) decodeLinks(v json.RawMessage) {
	r.hasLinks = true

	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err == nil {
		r.linksList = true
		r.linksLen = len(list)
		return
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(v, &members); err != nil {
		return
	}
	r.Links = make(map[string]Link, len(members))
	for name, m := range members {
		if isNull(m) {
			continue
		}
		if name == "self" {
			r.hasSelf = true
		}
		var l Link
		if err := json.Unmarshal(m, &l); err == nil {
			r.Links[name] = l
		}
	}
}

func (r *Resource) decodeEmbedded(v json.RawMessage) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(v, &members); err != nil {
		return
	}
	r.Embedded = make(map[string]*Child, len(members))
	for name, m := range members {
		r.Embedded[name] = decodeChild(m)
	}
}

func decodeChild(v json.RawMessage) *Child {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '[' {
		return &Child{Kind: Bare, Items: decodeItems(v)}
	}

	res, err := ParseResource(v)
	if err != nil {
		return &Child{Kind: Inline}
	}
	if !res.Fixed {
		return &Child{Kind: Inline, Resource: res}
	}
	if res.isArrayWrapper() {
		return &Child{
			Kind:     ArrayWrapped,
			Resource: res,
			Items:    wrappedItems(res.Embedded[res.Names()[0]]),
		}
	}
	return &Child{Kind: Single, Resource: res}
}

// wrappedItems returns the members of the wrapper's only embedded entry. A
// lone object is treated as a one element list.
func wrappedItems(c *Child) []*Resource {
	if c == nil {
		return nil
	}
	if c.Kind == Bare {
		return c.Items
	}
	if c.Resource != nil {
		return []*Resource{c.Resource}
	}
	return nil
}

func decodeItems(v json.RawMessage) []*Resource {
	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err != nil {
		return nil
	}
	items := make([]*Resource, 0, len(list))
	for _, m := range list {
		if res, err := ParseResource(m); err == nil {
			items = append(items, res)
		}
	}
	return items
}

// isArrayWrapper reports the legacy wrapper shape: exactly three members,
// an _embedded container with one key, a _links container and the fixed
// marker. Any extra member on the wrapper turns it back into a Single.
func (r *Resource) isArrayWrapper() bool {
	return len(r.Fields) == 3 &&
		r.Fixed &&
		r.hasLinks &&
		len(r.Embedded) == 1
}

// Self returns the self link, or "" when there is none.
func (r *Resource) Self() string {
	if r == nil {
		return ""
	}
	return r.Links["self"].Href
}

// HasSelf reports whether _links carries a self member.
func (r *Resource) HasSelf() bool {
	return r != nil && r.hasSelf
}

// LinksWithoutSelf reports a _links container that is present but has no
// self member: an object without self, or an empty list.
func (r *Resource) LinksWithoutSelf() bool {
	if r == nil || !r.hasLinks || r.hasSelf {
		return false
	}
	return !r.linksList || r.linksLen == 0
}

// Unlinked reports a _links member encoded as an empty list, the shape
// list endpoints use when the entries are not individually addressable.
func (r *Resource) Unlinked() bool {
	return r != nil && r.linksList && r.linksLen == 0
}

// HasEmbedded reports a non-empty _embedded container.
func (r *Resource) HasEmbedded() bool {
	return r != nil && len(r.Embedded) > 0
}

// Names returns the embedded child names in sorted order.
func (r *Resource) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Embedded))
	for name := range r.Embedded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Child returns the named embedded child, or nil.
func (r *Resource) Child(name string) *Child {
	if r == nil {
		return nil
	}
	return r.Embedded[name]
}

// First returns the named child when it is an object, or the first member
// when it is a list.
func (r *Resource) First(name string) *Resource {
	c := r.Child(name)
	if c == nil {
		return nil
	}
	if c.Resource != nil && c.Kind != ArrayWrapped {
		return c.Resource
	}
	if len(c.Items) > 0 {
		return c.Items[0]
	}
	return nil
}

// Field decodes a single top-level member into v.
func (r *Resource) Field(name string, v any) error {
	m, ok := r.Fields[name]
	if !ok {
		return fmt.Errorf("hal: no field %q", name)
	}
	return json.Unmarshal(m, v)
}

// Decode decodes the whole resource into v.
func (r *Resource) Decode(v any) error {
	if r == nil || r.raw == nil {
		return errors.New("hal: empty resource")
	}
	return json.Unmarshal(r.raw, v)
}

// Raw returns the undecoded JSON.
func (r *Resource) Raw() json.RawMessage {
	if r == nil {
		return nil
	}
	return r.raw
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// truthy follows loose JSON truthiness: false, null, 0 and "" are false.
func truthy(v json.RawMessage) bool {
	var x any
	if err := json.Unmarshal(v, &x); err != nil {
		return false
	}
	switch t := x.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
