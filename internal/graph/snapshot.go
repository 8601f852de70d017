package graph

import (
	"sort"
	"time"

	"github.com/edgecomet/pagegraph/internal/graph/redirect"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Snapshot is the serializable form of one context's resource graph
type Snapshot struct {
	DocumentURL    string              `json:"document_url"`
	EarliestSource string              `json:"earliest_source"`
	PageLoadStart  *time.Time          `json:"page_load_start,omitempty"`
	OnLoad         *time.Time          `json:"on_load,omitempty"`
	CapturedAt     time.Time           `json:"captured_at"`
	Redirects      map[string][]string `json:"redirects,omitempty"`
	Resources      []ResourceView      `json:"resources"`
}

// ResourceView is one record of a Snapshot
type ResourceView struct {
	Type            resource.Type    `json:"type"`
	URL             string           `json:"url"`
	Destinations    []string         `json:"destinations,omitempty"`
	LiveElements    int              `json:"live_elements"`
	RequestMethod   string           `json:"request_method,omitempty"`
	RequestHeaders  resource.Headers `json:"request_headers,omitempty"`
	ResponseHeaders resource.Headers `json:"response_headers,omitempty"`
	ResponseCode    int              `json:"response_code,omitempty"`
	FromCache       *bool            `json:"from_cache,omitempty"`
	ContentLength   int64            `json:"content_length,omitempty"`
	BodySize        int              `json:"body_size,omitempty"`
	BodyTruncated   bool             `json:"body_truncated,omitempty"`
	RequestTime     *time.Time       `json:"request_time,omitempty"`
	OnLoadTime      *time.Time       `json:"on_load_time,omitempty"`
	PageLoadStart   *time.Time       `json:"page_load_start,omitempty"`
}

// Snapshot captures ctx's current table. It returns nil if nothing has been
// recorded for the current document.
func (c *Collector) Snapshot(ctx Context) *Snapshot {
	c.lock()
	defer c.unlock()

	tbl := c.tableFor(ctx, false)
	if tbl == nil {
		return nil
	}

	snap := &Snapshot{
		DocumentURL: tbl.DocumentURL(),
		CapturedAt:  c.now(),
		Redirects:   tbl.Redirects(),
	}
	snap.EarliestSource = redirect.ResolveEarliestSource(snap.Redirects, snap.DocumentURL)
	if doc := tbl.Document(); doc != nil {
		snap.PageLoadStart = doc.PageLoadStart
		snap.OnLoad = doc.OnLoadTime
	}

	for _, typ := range resource.AllTypes() {
		for _, url := range tbl.URLs(typ) {
			snap.Resources = append(snap.Resources, viewOf(url, tbl.Get(typ, url).Clone()))
		}
	}
	return snap
}

func viewOf(url string, rec *resource.Record) ResourceView {
	v := ResourceView{
		Type:            rec.Type,
		URL:             url,
		RequestHeaders:  rec.RequestHeaders,
		ResponseHeaders: rec.ResponseHeaders,
		FromCache:       rec.FromCache,
		RequestTime:     rec.RequestTime,
		OnLoadTime:      rec.OnLoadTime,
		PageLoadStart:   rec.PageLoadStart,
	}
	if rec.Type == resource.TypeRedirect {
		v.Destinations = rec.Destinations()
	}
	for _, e := range rec.Elements {
		if e.Node() != nil {
			v.LiveElements++
		}
	}
	if rec.RequestMethod != nil {
		v.RequestMethod = *rec.RequestMethod
	}
	if rec.ResponseCode != nil {
		v.ResponseCode = *rec.ResponseCode
	}
	if rec.ContentLength != nil {
		v.ContentLength = *rec.ContentLength
	}
	if rec.Body != nil {
		v.BodySize = rec.Body.Len()
		v.BodyTruncated = rec.Body.Truncated()
	}
	return v
}

// OfType returns the views of one type, sorted by URL
func (s *Snapshot) OfType(typ resource.Type) []ResourceView {
	var out []ResourceView
	for _, r := range s.Resources {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Find returns the first view for url, in type order
func (s *Snapshot) Find(url string) (ResourceView, bool) {
	for _, r := range s.Resources {
		if r.URL == url {
			return r, true
		}
	}
	return ResourceView{}, false
}
