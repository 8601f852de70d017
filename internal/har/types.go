package har

// HAR 1.2 constants
const (
	harVersion     = "1.2"
	creatorName    = "pagegraph"
	creatorVersion = "1.0"
)

// HAR is the root container for HTTP Archive format
type HAR struct {
	Log      Log       `json:"log"`
	Metadata *Metadata `json:"_metadata,omitempty"`
}

type Log struct {
	Version string   `json:"version"`
	Creator Creator  `json:"creator"`
	Browser *Browser `json:"browser,omitempty"`
	Pages   []Page   `json:"pages,omitempty"`
	Entries []Entry  `json:"entries"`
	Comment string   `json:"comment,omitempty"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Browser struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Page struct {
	StartedDateTime string      `json:"startedDateTime"`
	ID              string      `json:"id"`
	Title           string      `json:"title"`
	PageTimings     PageTimings `json:"pageTimings"`
}

// PageTimings values are milliseconds since the page started loading
type PageTimings struct {
	OnContentLoad *float64 `json:"onContentLoad,omitempty"`
	OnLoad        *float64 `json:"onLoad,omitempty"`
}

// Entry is one request/response pair. Redirect hops get an entry of their
// own with Response.RedirectURL set.
type Entry struct {
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
	Cache           Cache    `json:"cache"`
	Timings         Timings  `json:"timings"`
	PageRef         string   `json:"pageref,omitempty"`
	ResourceType    string   `json:"_resourceType,omitempty"`
	Comment         string   `json:"comment,omitempty"`
}

type Request struct {
	Method      string        `json:"method"`
	URL         string        `json:"url"`
	HTTPVersion string        `json:"httpVersion"`
	Cookies     []Cookie      `json:"cookies"`
	Headers     []Header      `json:"headers"`
	QueryString []QueryString `json:"queryString"`
	HeadersSize int64         `json:"headersSize"`
	BodySize    int64         `json:"bodySize"`
}

type Response struct {
	Status      int      `json:"status"`
	StatusText  string   `json:"statusText"`
	HTTPVersion string   `json:"httpVersion"`
	Cookies     []Cookie `json:"cookies"`
	Headers     []Header `json:"headers"`
	Content     Content  `json:"content"`
	RedirectURL string   `json:"redirectURL"`
	HeadersSize int64    `json:"headersSize"`
	BodySize    int64    `json:"bodySize"`
}

// Cookie is kept for schema completeness; cookies are never recorded
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type QueryString struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Comment  string `json:"comment,omitempty"`
}

type Cache struct {
	BeforeRequest *CacheEntry `json:"beforeRequest,omitempty"`
}

type CacheEntry struct {
	LastAccess string `json:"lastAccess"`
	ETag       string `json:"eTag"`
	HitCount   int    `json:"hitCount"`
}

type Timings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Metadata carries the resource graph view that HAR has no place for
type Metadata struct {
	TraceID        string              `json:"traceId,omitempty"`
	DocumentURL    string              `json:"documentUrl"`
	EarliestSource string              `json:"earliestSource"`
	PageLoadStart  string              `json:"pageLoadStart,omitempty"`
	Redirects      map[string][]string `json:"redirects,omitempty"`
	Resources      []ResourceMeta      `json:"resources"`
	TypeCounts     map[string]int      `json:"typeCounts"`
	ThirdParty     int                 `json:"thirdPartyCount"`
}

// ResourceMeta describes one record of the resource table
type ResourceMeta struct {
	URL           string `json:"url"`
	Type          string `json:"type"`
	LiveElements  int    `json:"liveElements"`
	ThirdParty    bool   `json:"thirdParty,omitempty"`
	BodyCaptured  int    `json:"bodyCaptured,omitempty"`
	BodyTruncated bool   `json:"bodyTruncated,omitempty"`
}
