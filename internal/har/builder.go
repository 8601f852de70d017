package har

import (
	"encoding/json"
	"net/url"
	"sort"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

const defaultHTTPVersion = "HTTP/1.1"

// Builder assembles a HAR log for one traced page
type Builder struct {
	har       *HAR
	metadata  *Metadata
	startTime time.Time
	pageID    string
	pageHost  string
}

// NewBuilder creates a builder for pageURL whose load started at startTime.
// browserVersion may be empty.
func NewBuilder(pageURL, traceID, browserVersion string, startTime time.Time) *Builder {
	pageID := "page_" + traceID

	var browser *Browser
	if browserVersion != "" {
		browser = &Browser{Name: "Chrome", Version: browserVersion}
	}

	return &Builder{
		har: &HAR{
			Log: Log{
				Version: harVersion,
				Creator: Creator{Name: creatorName, Version: creatorVersion},
				Browser: browser,
				Pages: []Page{{
					StartedDateTime: formatDateTime(startTime),
					ID:              pageID,
					Title:           pageURL,
				}},
				Entries: []Entry{},
			},
		},
		metadata: &Metadata{
			TraceID:     traceID,
			DocumentURL: pageURL,
			Resources:   []ResourceMeta{},
			TypeCounts:  map[string]int{},
		},
		startTime: startTime,
		pageID:    pageID,
		pageHost:  urlutil.Hostname(pageURL),
	}
}

// FromSnapshot converts a resource graph snapshot into a HAR log
func FromSnapshot(snap *graph.Snapshot, traceID, browserVersion string) *HAR {
	start := snap.CapturedAt
	if snap.PageLoadStart != nil {
		start = *snap.PageLoadStart
	} else if doc, ok := snap.Find(snap.DocumentURL); ok && doc.RequestTime != nil {
		start = *doc.RequestTime
	}

	b := NewBuilder(snap.DocumentURL, traceID, browserVersion, start)
	b.metadata.EarliestSource = snap.EarliestSource
	b.metadata.Redirects = snap.Redirects
	if snap.PageLoadStart != nil {
		b.metadata.PageLoadStart = formatDateTime(*snap.PageLoadStart)
	}
	if snap.OnLoad != nil {
		b.SetOnLoad(*snap.OnLoad)
	}

	for _, v := range snap.Resources {
		if v.Type == resource.TypeRedirect {
			b.AddRedirect(v, start)
		} else {
			b.AddResource(v, start)
		}
	}
	return b.Finalize()
}

// SetOnLoad records the page load event time
func (b *Builder) SetOnLoad(at time.Time) {
	ms := float64(at.Sub(b.startTime).Milliseconds())
	if ms < 0 {
		ms = 0
	}
	b.har.Log.Pages[0].PageTimings.OnLoad = &ms
}

// AddResource adds one entry for a non-redirect record. fallback is used as
// the start time when the record has no request time.
func (b *Builder) AddResource(v graph.ResourceView, fallback time.Time) {
	started := fallback
	if v.RequestTime != nil {
		started = *v.RequestTime
	}

	var elapsed float64
	if v.OnLoadTime != nil && v.OnLoadTime.After(started) {
		elapsed = float64(v.OnLoadTime.Sub(started).Milliseconds())
	}

	size := v.ContentLength
	if size == 0 && v.BodySize > 0 {
		size = int64(v.BodySize)
	}

	entry := b.newEntry(v, started)
	entry.Time = elapsed
	entry.Timings.Wait = elapsed
	entry.Response.Content = Content{
		Size:     size,
		MimeType: v.ResponseHeaders.Get("Content-Type"),
	}
	if v.BodyTruncated {
		entry.Response.Content.Comment = "captured body truncated"
	}
	if size > 0 {
		entry.Response.BodySize = size
	}
	if v.FromCache != nil && *v.FromCache {
		entry.Cache.BeforeRequest = &CacheEntry{
			LastAccess: formatDateTime(started),
			ETag:       v.ResponseHeaders.Get("ETag"),
			HitCount:   1,
		}
	}

	b.har.Log.Entries = append(b.har.Log.Entries, entry)
	b.addMeta(v)
}

// AddRedirect adds one 3xx entry per destination of a redirect record
func (b *Builder) AddRedirect(v graph.ResourceView, fallback time.Time) {
	started := fallback
	if v.RequestTime != nil {
		started = *v.RequestTime
	}

	for _, dest := range v.Destinations {
		entry := b.newEntry(v, started)
		entry.Response.RedirectURL = dest
		if v.ResponseCode == 0 {
			entry.Comment = "redirect without response status"
		}
		b.har.Log.Entries = append(b.har.Log.Entries, entry)
	}
	b.addMeta(v)
}

func (b *Builder) newEntry(v graph.ResourceView, started time.Time) Entry {
	method := v.RequestMethod
	if method == "" {
		method = fasthttp.MethodGet
	}

	var statusText string
	if v.ResponseCode != 0 {
		statusText = fasthttp.StatusMessage(v.ResponseCode)
	}

	return Entry{
		StartedDateTime: formatDateTime(started),
		Request: Request{
			Method:      method,
			URL:         v.URL,
			HTTPVersion: defaultHTTPVersion,
			Cookies:     []Cookie{},
			Headers:     convertHeaders(v.RequestHeaders),
			QueryString: parseQueryString(v.URL),
			HeadersSize: -1,
			BodySize:    0,
		},
		Response: Response{
			Status:      v.ResponseCode,
			StatusText:  statusText,
			HTTPVersion: defaultHTTPVersion,
			Cookies:     []Cookie{},
			Headers:     convertHeaders(v.ResponseHeaders),
			Content:     Content{MimeType: v.ResponseHeaders.Get("Content-Type")},
			HeadersSize: -1,
			BodySize:    -1,
		},
		PageRef:      b.pageID,
		ResourceType: v.Type.String(),
	}
}

func (b *Builder) addMeta(v graph.ResourceView) {
	thirdParty := !urlutil.SameSite(b.pageHost, urlutil.Hostname(v.URL))
	if thirdParty {
		b.metadata.ThirdParty++
	}
	b.metadata.TypeCounts[v.Type.String()]++
	b.metadata.Resources = append(b.metadata.Resources, ResourceMeta{
		URL:           v.URL,
		Type:          v.Type.String(),
		LiveElements:  v.LiveElements,
		ThirdParty:    thirdParty,
		BodyCaptured:  v.BodySize,
		BodyTruncated: v.BodyTruncated,
	})
}

// Finalize returns the completed HAR with entries in chronological order
func (b *Builder) Finalize() *HAR {
	sort.SliceStable(b.har.Log.Entries, func(i, j int) bool {
		return b.har.Log.Entries[i].StartedDateTime < b.har.Log.Entries[j].StartedDateTime
	})
	b.har.Metadata = b.metadata
	return b.har
}

// ToJSON marshals the finalized HAR
func (b *Builder) ToJSON() ([]byte, error) {
	return json.Marshal(b.Finalize())
}

// EntryCount returns the number of entries added so far
func (b *Builder) EntryCount() int {
	return len(b.har.Log.Entries)
}

// formatDateTime formats a time to ISO 8601 with milliseconds
func formatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func convertHeaders(h resource.Headers) []Header {
	out := make([]Header, 0, len(h))
	for _, hdr := range h {
		out = append(out, Header{Name: hdr.Name, Value: hdr.Value})
	}
	return out
}

// parseQueryString extracts query parameters sorted by name
func parseQueryString(rawURL string) []QueryString {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.RawQuery == "" {
		return []QueryString{}
	}

	values := parsed.Query()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]QueryString, 0, len(values))
	for _, key := range keys {
		for _, val := range values[key] {
			result = append(result, QueryString{Name: key, Value: val})
		}
	}
	return result
}
