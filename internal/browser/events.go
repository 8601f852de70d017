package browser

import (
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Engine is the part of *graph.Collector driven by browser events
type Engine interface {
	ClassifyAndRecord(load graph.Load)
	OnRequest(ch graph.Channel)
	OnResponse(ch graph.Channel, fromCache, merged bool)
	OnNavigationCommitted(ctx graph.Context)
	OnLoad(doc *html.Node)
}

var _ Engine = (*graph.Collector)(nil)

// BodyFetcher returns the body of a finished response
type BodyFetcher func(id network.RequestID) ([]byte, error)

// eventMapper translates the CDP events of one tab into engine hooks. It
// must receive events in the order Chrome emits them.
type eventMapper struct {
	tab       *Tab
	engine    Engine
	logger    *zap.Logger
	fetchBody BodyFetcher

	mu        sync.Mutex
	origins   map[network.RequestID]string
	replacing map[string]struct{}
	bodies    map[network.RequestID]io.WriteCloser
	requests  int
	fetches   sync.WaitGroup

	loads chan struct{}
}

func newEventMapper(tab *Tab, engine Engine, fetchBody BodyFetcher, logger *zap.Logger) *eventMapper {
	return &eventMapper{
		tab:       tab,
		engine:    engine,
		logger:    logger,
		fetchBody: fetchBody,
		origins:   make(map[network.RequestID]string),
		replacing: make(map[string]struct{}),
		bodies:    make(map[network.RequestID]io.WriteCloser),
		loads:     make(chan struct{}, 1),
	}
}

// handle is a chromedp.ListenTarget callback
func (m *eventMapper) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		m.onResponseReceived(e)
	case *network.EventLoadingFinished:
		m.finishBody(e.RequestID, true)
	case *network.EventLoadingFailed:
		m.finishBody(e.RequestID, false)
	case *page.EventFrameAttached:
		m.tab.AttachFrame(e.FrameID, e.ParentFrameID)
	case *page.EventFrameDetached:
		m.tab.DetachFrame(e.FrameID)
	case *page.EventFrameRequestedNavigation:
		m.onRequestedNavigation(e)
	case *page.EventFrameNavigated:
		m.onFrameNavigated(e)
	case *page.EventFrameStoppedLoading:
		if !m.tab.IsMain(e.FrameID) {
			if doc := m.tab.DocumentOf(e.FrameID); doc != nil {
				m.engine.OnLoad(doc)
			}
		}
	case *page.EventLoadEventFired:
		m.engine.OnLoad(m.tab.Document())
		select {
		case m.loads <- struct{}{}:
		default:
		}
	}
}

func (m *eventMapper) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil || !urlutil.IsHTTP(e.Request.URL) {
		return
	}
	if e.RedirectResponse != nil {
		m.onRedirect(e)
		return
	}

	m.mu.Lock()
	m.origins[e.RequestID] = e.Request.URL
	m.requests++
	m.mu.Unlock()

	host, cssImage, favicon := classifyRequest(e)
	mainDocument := false
	if host == resource.HostDocument {
		if m.tab.IsMain(e.FrameID) {
			mainDocument = true
		} else {
			host = resource.HostSubdocument
		}
	}

	load := graph.Load{
		HostType:  host,
		Location:  e.Request.URL,
		Initiator: m.tab.Initiator(e.FrameID, initiatorFor(host, cssImage, favicon), e.Request.URL),
	}
	if !mainDocument {
		load.Origin = e.DocumentURL
	}
	m.engine.ClassifyAndRecord(load)

	m.engine.OnRequest(graph.Channel{
		URL:            e.Request.URL,
		Method:         e.Request.Method,
		RequestHeaders: convertHeaders(e.Request.Headers),
		ReplaceHistory: mainDocument && m.takeReplacing(e.Request.URL),
		Context:        m.tab,
	})
}

// onRedirect reports the redirect response of the previous hop, then the
// request to the new location. Hops are never classified on their own.
func (m *eventMapper) onRedirect(e *network.EventRequestWillBeSent) {
	hop := e.RedirectResponse

	m.mu.Lock()
	original, ok := m.origins[e.RequestID]
	if !ok {
		original = hop.URL
		m.origins[e.RequestID] = original
	}
	m.mu.Unlock()

	m.engine.OnResponse(graph.Channel{
		URL:             hop.URL,
		OriginalURL:     original,
		Status:          int(hop.Status),
		ResponseHeaders: convertHeaders(hop.Headers),
		Context:         m.tab,
	}, fromCache(hop), false)

	m.engine.OnRequest(graph.Channel{
		URL:            e.Request.URL,
		OriginalURL:    original,
		Method:         e.Request.Method,
		RequestHeaders: convertHeaders(e.Request.Headers),
		Context:        m.tab,
	})
}

// onResponseReceived reports final responses. Chrome folds revalidated and
// partial responses into one event, so the merged response the engine
// waits for after a 206 or 304 is reported right away.
func (m *eventMapper) onResponseReceived(e *network.EventResponseReceived) {
	resp := e.Response
	if resp == nil || !urlutil.IsHTTP(resp.URL) {
		return
	}

	m.mu.Lock()
	original := m.origins[e.RequestID]
	m.mu.Unlock()

	headers := convertHeaders(resp.Headers)
	ch := graph.Channel{
		URL:             resp.URL,
		OriginalURL:     original,
		Status:          int(resp.Status),
		ResponseHeaders: headers,
		ContentLength:   contentLength(headers),
		NoStore:         isNoStore(headers),
		Context:         m.tab,
	}
	if m.fetchBody != nil {
		id := e.RequestID
		ch.Tee = func(w io.WriteCloser) error {
			m.mu.Lock()
			m.bodies[id] = w
			m.mu.Unlock()
			return nil
		}
	}

	cached := fromCache(resp)
	m.engine.OnResponse(ch, cached, false)
	if ch.Status == 206 || ch.Status == 304 {
		m.engine.OnResponse(ch, cached || ch.Status == 304, true)
	}
}

// finishBody copies a teed body once Chrome has it in full
func (m *eventMapper) finishBody(id network.RequestID, ok bool) {
	m.mu.Lock()
	w, found := m.bodies[id]
	delete(m.bodies, id)
	delete(m.origins, id)
	m.mu.Unlock()

	if !found {
		return
	}
	if !ok {
		w.Close()
		return
	}

	// CDP commands cannot be issued from the event goroutine
	m.fetches.Add(1)
	go func() {
		defer m.fetches.Done()
		defer w.Close()

		body, err := m.fetchBody(id)
		if err != nil {
			m.logger.Debug("Failed to fetch response body",
				zap.String("request_id", string(id)),
				zap.Error(err))
			return
		}
		w.Write(body)
	}()
}

func (m *eventMapper) onRequestedNavigation(e *page.EventFrameRequestedNavigation) {
	if e.Disposition != "currentTab" || !m.tab.IsMain(e.FrameID) {
		return
	}
	switch e.Reason {
	case "scriptInitiated", "metaTagRefresh", "httpHeaderRefresh":
		m.mu.Lock()
		m.replacing[urlutil.Normalize(e.URL)] = struct{}{}
		m.mu.Unlock()
	}
}

func (m *eventMapper) takeReplacing(url string) bool {
	key := urlutil.Normalize(url)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.replacing[key]
	delete(m.replacing, key)
	return ok
}

func (m *eventMapper) onFrameNavigated(e *page.EventFrameNavigated) {
	if e.Frame == nil {
		return
	}
	if m.tab.Commit(e.Frame.ID, e.Frame.URL) {
		m.logger.Debug("Main frame committed", zap.String("url", e.Frame.URL))
		m.engine.OnNavigationCommitted(m.tab)
	}
}

// wait blocks until pending body fetches are done
func (m *eventMapper) wait() {
	m.fetches.Wait()
}

func (m *eventMapper) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

// classifyRequest maps a CDP resource type onto the engine host types.
// Images requested by a stylesheet are css images. Favicon fetches are
// reported by Chrome as "Other" and are treated as icon images.
func classifyRequest(e *network.EventRequestWillBeSent) (host resource.HostType, cssImage, favicon bool) {
	if isFavicon(e.Request.URL) && (e.Type == network.ResourceTypeImage || e.Type == network.ResourceTypeOther) {
		return resource.HostImage, false, true
	}

	switch e.Type {
	case network.ResourceTypeDocument:
		return resource.HostDocument, false, false
	case network.ResourceTypeStylesheet:
		return resource.HostStylesheet, false, false
	case network.ResourceTypeScript:
		return resource.HostScript, false, false
	case network.ResourceTypeImage:
		return resource.HostImage, initiatedByStylesheet(e), false
	case network.ResourceTypeXHR, network.ResourceTypeFetch, network.ResourceTypeEventSource:
		return resource.HostXHR, false, false
	case network.ResourceTypePing, network.ResourceTypeCSPViolationReport:
		return resource.HostPing, false, false
	default:
		return resource.HostOther, false, false
	}
}

func initiatedByStylesheet(e *network.EventRequestWillBeSent) bool {
	if e.Initiator == nil || e.Initiator.URL == "" || e.Initiator.Type != "parser" {
		return false
	}
	return urlutil.Normalize(e.Initiator.URL) != urlutil.Normalize(e.DocumentURL)
}

func isFavicon(rawURL string) bool {
	base := path.Base(urlutil.StripFragment(strings.SplitN(rawURL, "?", 2)[0]))
	return strings.HasPrefix(strings.ToLower(base), "favicon.")
}

func fromCache(resp *network.Response) bool {
	return resp.FromDiskCache || resp.FromPrefetchCache
}

// convertHeaders flattens CDP headers sorted by name. Chrome joins repeated
// headers with newlines.
func convertHeaders(h network.Headers) resource.Headers {
	if len(h) == 0 {
		return nil
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(resource.Headers, 0, len(h))
	for _, name := range names {
		switch v := h[name].(type) {
		case string:
			for _, part := range strings.Split(v, "\n") {
				if trimmed := strings.TrimSpace(part); trimmed != "" {
					out = append(out, resource.Header{Name: name, Value: trimmed})
				}
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, resource.Header{Name: name, Value: s})
				}
			}
		}
	}
	return out
}

func contentLength(h resource.Headers) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(h.Get("Content-Length")), 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func isNoStore(h resource.Headers) bool {
	for _, v := range h.Values("Cache-Control") {
		if strings.Contains(strings.ToLower(v), "no-store") {
			return true
		}
	}
	return false
}
