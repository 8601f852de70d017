package resource

import (
	"slices"
	"time"
)

// Properties is the field bag captured for a resource. Pending entries and
// committed records both carry one, and the hooks fill it in piecemeal.
// A nil pointer or empty slice means the field has not been observed.
type Properties struct {
	Elements        []Element
	RequestHeaders  Headers
	ResponseHeaders Headers
	RequestMethod   *string
	ResponseCode    *int
	RequestTime     *time.Time
	OnLoadTime      *time.Time
	PageLoadStart   *time.Time
	FromCache       *bool
	ContentLength   *int64
	Body            *Body
}

// Record is a committed resource, redirect hop or document in a table.
type Record struct {
	Type Type
	Properties
}

// NewRecord returns an empty record of the given type
func NewRecord(t Type) *Record {
	return &Record{Type: t}
}

// HasElement reports whether e is already present
func (r *Record) HasElement(e Element) bool {
	return slices.Contains(r.Elements, e)
}

// Destinations returns the URL elements of a redirect record in recorded order
func (r *Record) Destinations() []string {
	var out []string
	for _, e := range r.Elements {
		if e.IsURL() {
			out = append(out, e.URL())
		}
	}
	return out
}

// Clone returns a copy that shares no slices or scalar pointers with r.
// The captured body is shared since it is append-only.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{Type: r.Type}
	c.Properties = r.Properties.Clone()
	return c
}

func (p Properties) Clone() Properties {
	return Properties{
		Elements:        slices.Clone(p.Elements),
		RequestHeaders:  slices.Clone(p.RequestHeaders),
		ResponseHeaders: slices.Clone(p.ResponseHeaders),
		RequestMethod:   clonePtr(p.RequestMethod),
		ResponseCode:    clonePtr(p.ResponseCode),
		RequestTime:     clonePtr(p.RequestTime),
		OnLoadTime:      clonePtr(p.OnLoadTime),
		PageLoadStart:   clonePtr(p.PageLoadStart),
		FromCache:       clonePtr(p.FromCache),
		ContentLength:   clonePtr(p.ContentLength),
		Body:            p.Body,
	}
}

// destination selects which record a field is merged into
type destination int

const (
	toComponent destination = iota
	toHop
)

type field struct {
	name    string
	dest    destination
	keepOld bool
	merge   func(src, dst *Properties, keepOld bool)
}

// fields is the merge dispatch table. Hop fields describe a single HTTP
// exchange and follow the redirect record when a resource moves to its final
// URL. requestTime is the only keep-old field: the earliest request wins.
var fields = []field{
	{name: "elements", dest: toComponent, merge: func(s, d *Properties, _ bool) {
		d.Elements = mergeSlice(s.Elements, d.Elements)
	}},
	{name: "requestHeaders", dest: toHop, merge: func(s, d *Properties, _ bool) {
		d.RequestHeaders = mergeSlice(s.RequestHeaders, d.RequestHeaders)
	}},
	{name: "responseHeaders", dest: toHop, merge: func(s, d *Properties, _ bool) {
		d.ResponseHeaders = mergeSlice(s.ResponseHeaders, d.ResponseHeaders)
	}},
	{name: "requestMethod", dest: toHop, merge: func(s, d *Properties, keep bool) {
		d.RequestMethod = mergeValue(s.RequestMethod, d.RequestMethod, keep, equal[string])
	}},
	{name: "responseCode", dest: toHop, merge: func(s, d *Properties, keep bool) {
		d.ResponseCode = mergeValue(s.ResponseCode, d.ResponseCode, keep, equal[int])
	}},
	{name: "requestTime", dest: toComponent, keepOld: true, merge: func(s, d *Properties, keep bool) {
		d.RequestTime = mergeValue(s.RequestTime, d.RequestTime, keep, time.Time.Equal)
	}},
	{name: "onLoadTime", dest: toComponent, merge: func(s, d *Properties, keep bool) {
		d.OnLoadTime = mergeValue(s.OnLoadTime, d.OnLoadTime, keep, time.Time.Equal)
	}},
	{name: "pageLoadStartTime", dest: toComponent, merge: func(s, d *Properties, keep bool) {
		d.PageLoadStart = mergeValue(s.PageLoadStart, d.PageLoadStart, keep, time.Time.Equal)
	}},
	{name: "fromCache", dest: toComponent, merge: func(s, d *Properties, keep bool) {
		d.FromCache = mergeValue(s.FromCache, d.FromCache, keep, equal[bool])
	}},
	{name: "responseContentLength", dest: toComponent, merge: func(s, d *Properties, keep bool) {
		d.ContentLength = mergeValue(s.ContentLength, d.ContentLength, keep, equal[int64])
	}},
	{name: "responseBody", dest: toComponent, merge: func(s, d *Properties, keep bool) {
		if s.Body == nil || (d.Body != nil && (keep || d.Body == s.Body)) {
			return
		}
		d.Body = s.Body
	}},
}

// IsHopField reports whether the named field is merged into the redirect hop
// record rather than the component record.
func IsHopField(name string) bool {
	for _, f := range fields {
		if f.name == name {
			return f.dest == toHop
		}
	}
	return false
}

// Merge applies every observed field of src. Hop fields go to hop, all other
// fields go to component. Sequences are concatenated, missing fields are
// copied, and differing scalars are replaced unless the field is keep-old.
// Passing the same record as component and hop merges everything into it.
func Merge(src *Properties, component, hop *Properties) {
	if src == nil {
		return
	}
	for _, f := range fields {
		dst := component
		if f.dest == toHop {
			dst = hop
		}
		if dst == nil {
			continue
		}
		f.merge(src, dst, f.keepOld)
	}
}

func mergeSlice[T any](src, dst []T) []T {
	if len(src) == 0 {
		return dst
	}
	return slices.Concat(dst, src)
}

func mergeValue[T any](src, dst *T, keepOld bool, eq func(a, b T) bool) *T {
	if src == nil {
		return dst
	}
	if dst == nil {
		return clonePtr(src)
	}
	if keepOld || eq(*dst, *src) {
		return dst
	}
	return clonePtr(src)
}

func equal[T comparable](a, b T) bool {
	return a == b
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v. Handy for filling Properties literals.
func Ptr[T any](v T) *T {
	return &v
}
