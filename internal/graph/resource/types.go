package resource

import (
	"fmt"
)

// Type is the engine's resource taxonomy. It is finer than the host's
// classification: images are split into favicons, css images and plain
// images, and redirect hops get a type of their own.
type Type int

const (
	TypeOther Type = iota
	TypeXHR
	TypeSubobject
	TypeScript
	TypeImage
	TypeCSSImage
	TypeFavicon
	TypeStylesheet
	TypeObject
	TypeDocument
	TypeSubdocument
	TypeRedirect
)

var typeNames = [...]string{
	TypeOther:       "other",
	TypeXHR:         "xhr",
	TypeSubobject:   "subobject",
	TypeScript:      "js",
	TypeImage:       "image",
	TypeCSSImage:    "cssimage",
	TypeFavicon:     "favicon",
	TypeStylesheet:  "css",
	TypeObject:      "object",
	TypeDocument:    "doc",
	TypeSubdocument: "iframe",
	TypeRedirect:    "redirect",
}

// AllTypes returns every Type in declaration order
func AllTypes() []Type {
	types := make([]Type, len(typeNames))
	for i := range typeNames {
		types[i] = Type(i)
	}
	return types
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType converts a type name back to a Type
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), true
		}
	}
	return TypeOther, false
}

// MarshalText allows Type to be used as a JSON map key
func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown resource type %d", int(t))
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, ok := ParseType(string(text))
	if !ok {
		return fmt.Errorf("unknown resource type %q", string(text))
	}
	*t = parsed
	return nil
}

// HostType is the coarse classification supplied by the host before a load starts.
type HostType int

const (
	HostOther HostType = iota
	HostScript
	HostImage
	HostStylesheet
	HostObject
	HostDocument
	HostSubdocument
	HostRefresh
	HostXBL
	HostPing
	HostXHR
	HostObjectSubrequest
)

var hostTypeNames = [...]string{
	HostOther:            "other",
	HostScript:           "script",
	HostImage:            "image",
	HostStylesheet:       "stylesheet",
	HostObject:           "object",
	HostDocument:         "document",
	HostSubdocument:      "subdocument",
	HostRefresh:          "refresh",
	HostXBL:              "xbl",
	HostPing:             "ping",
	HostXHR:              "xmlhttprequest",
	HostObjectSubrequest: "object_subrequest",
}

func (h HostType) String() string {
	if h < 0 || int(h) >= len(hostTypeNames) {
		return fmt.Sprintf("host(%d)", int(h))
	}
	return hostTypeNames[h]
}

// Type maps the host category onto the engine taxonomy without any DOM
// refinement. Categories the engine does not track separately become TypeOther.
func (h HostType) Type() Type {
	switch h {
	case HostScript:
		return TypeScript
	case HostImage:
		return TypeImage
	case HostStylesheet:
		return TypeStylesheet
	case HostObject:
		return TypeObject
	case HostDocument:
		return TypeDocument
	case HostSubdocument:
		return TypeSubdocument
	case HostXHR:
		return TypeXHR
	case HostObjectSubrequest:
		return TypeSubobject
	default:
		return TypeOther
	}
}
