package resource

import (
	"sort"
	"strings"
)

// Header is a single HTTP header line
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers keeps header lines in the order they were observed. Headers from
// several partial responses accumulate in one list.
type Headers []Header

// Get returns the last value recorded for name, compared case-insensitively
func (h Headers) Get(name string) string {
	for i := len(h) - 1; i >= 0; i-- {
		if strings.EqualFold(h[i].Name, name) {
			return h[i].Value
		}
	}
	return ""
}

// Values returns every value recorded for name in observation order
func (h Headers) Values(name string) []string {
	var values []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// HeadersFromMap converts a header map, sorted by name for stable output
func HeadersFromMap(m map[string]string) Headers {
	if len(m) == 0 {
		return nil
	}

	headers := make(Headers, 0, len(m))
	for name, value := range m {
		headers = append(headers, Header{Name: name, Value: value})
	}

	sort.Slice(headers, func(i, j int) bool {
		return headers[i].Name < headers[j].Name
	})

	return headers
}
