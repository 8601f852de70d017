package graph

import (
	"slices"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph/diag"
	"github.com/edgecomet/pagegraph/internal/graph/redirect"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
	"github.com/edgecomet/pagegraph/internal/graph/table"
)

// ClassifyAndRecord handles the pre-load call for one candidate resource.
// Top-level documents become pending entries since the context still shows
// the previous document at this point. Everything else is recorded in the
// table of the initiator's top-level context.
func (c *Collector) ClassifyAndRecord(load Load) {
	defer c.recoverHook("classify")
	c.enterHook("classify")

	if load.Initiator == nil || !urlutil.IsHTTP(load.Location) {
		return
	}
	url := urlutil.Normalize(load.Location)
	typ := table.Classify(load.HostType, load.Initiator)

	c.lock()
	defer c.unlock()

	if typ == resource.TypeDocument {
		c.createDocumentEntry(url)
		return
	}

	if load.Origin != "" && urlutil.HasScheme(load.Origin) && !urlutil.IsHTTP(load.Origin) {
		return
	}

	doc := c.documentFor(load.HostType, load.Initiator)
	if doc == nil {
		c.report.Anomaly(diag.KindMissingWindow, "Unable to find document for resource",
			zap.String("url", url), zap.Stringer("type", typ))
		return
	}
	ctx := c.host.TopContext(doc)
	if ctx == nil {
		c.report.Anomaly(diag.KindMissingWindow, "Unable to find window for resource",
			zap.String("url", url), zap.Stringer("type", typ))
		return
	}

	tbl := c.tableFor(ctx, true)
	rec, added := tbl.Add(typ, url, resource.NodeElement(load.Initiator), false)
	if added && rec.RequestTime == nil {
		now := c.now()
		rec.RequestTime = &now
	}
}

// documentFor finds the document a load belongs to. Frame loads use the
// frame's hosted document when it already exists.
func (c *Collector) documentFor(host resource.HostType, node *html.Node) *html.Node {
	if host == resource.HostDocument || host == resource.HostSubdocument {
		if doc := c.host.ContentDocument(node); doc != nil {
			return doc
		}
	}
	return table.OwnerDocument(node)
}

// OnRequest handles a request that is about to be sent. It detects
// JavaScript or meta refresh redirects and HTTP redirects, then binds the
// request headers and method.
func (c *Collector) OnRequest(ch Channel) {
	defer c.recoverHook("request")
	c.enterHook("request")

	if ch.Context == nil {
		return
	}
	to := urlutil.Normalize(ch.URL)
	windowURL := ch.WindowURL
	if windowURL == "" {
		windowURL = ch.Context.URL()
	}
	windowURL = urlutil.Normalize(windowURL)

	c.lock()
	defer c.unlock()

	if c.isScriptRedirect(ch, windowURL, to) {
		c.pending.LinkPrev(to, windowURL)
	} else if ch.OriginalURL != "" {
		from := urlutil.Normalize(ch.OriginalURL)
		if from != "" && to != "" && from != to {
			c.observeRedirect(ch.Context, from, to)
		}
	}

	src := &resource.Properties{RequestHeaders: slices.Clone(ch.RequestHeaders)}
	if ch.Method != "" {
		src.RequestMethod = resource.Ptr(ch.Method)
	}
	c.bind(src, ch.Context, to)
}

// isScriptRedirect reports whether a document request looks like a
// JavaScript or meta refresh redirect from the current window: both URLs are
// pending navigations created within the age bound and the host flagged the
// load as replacing history.
func (c *Collector) isScriptRedirect(ch Channel, from, to string) bool {
	if !ch.ReplaceHistory || from == to {
		return false
	}
	if !c.pending.HasEntry(from) || !c.pending.HasEntry(to) {
		return false
	}
	return c.pending.WithinAgeBound(from, to)
}

// observeRedirect records an HTTP redirect to to. from is the first URL of
// the chain, so the last known hop is looked up first.
func (c *Collector) observeRedirect(ctx Context, from, to string) {
	final, ok := redirect.ResolveFinal(c.pending, c.tableFor(ctx, false), from, c.report)
	if !ok || final == to {
		c.report.Anomaly(diag.KindBadRedirectTarget, "Unable to resolve redirect source",
			zap.String("from", from), zap.String("to", to), zap.String("final", final))
		return
	}

	if c.pending.HasEntry(from) {
		// The main document is being redirected
		c.createDocumentEntry(to)
		c.pending.LinkPrev(to, final)
		return
	}

	tbl := c.tableFor(ctx, true)
	rec, added := tbl.Add(resource.TypeRedirect, final, resource.URLElement(to), true)
	if added && rec.RequestTime == nil {
		now := c.now()
		rec.RequestTime = &now
	}
}

// OnResponse handles response headers becoming available. A 206 or 304 that
// is not itself merged will be followed by a merged response carrying the
// full headers, so its headers and body are left to that one. A merged
// response's status comes from the cache and is not recorded.
func (c *Collector) OnResponse(ch Channel, fromCache, merged bool) {
	defer c.recoverHook("response")
	c.enterHook("response")

	if ch.Context == nil {
		return
	}

	code := ch.Status
	mergedComing := !merged && (code == 206 || code == 304)

	src := &resource.Properties{FromCache: resource.Ptr(fromCache)}
	if !mergedComing {
		src.ResponseHeaders = slices.Clone(ch.ResponseHeaders)
	}
	if !merged {
		src.ResponseCode = resource.Ptr(code)
	}

	if !mergedComing && canHaveBody(code) {
		if ch.NoStore && ch.Tee != nil {
			body := resource.NewBody(c.maxBody, c.bodyChunk)
			if err := ch.Tee(body); err != nil {
				c.logger.Debug("Unable to tee response body", zap.String("url", ch.URL), zap.Error(err))
			} else {
				src.Body = body
			}
		}
		if ch.ContentLength > 0 {
			src.ContentLength = resource.Ptr(ch.ContentLength)
		}
	}

	to := urlutil.Normalize(ch.URL)

	c.lock()
	defer c.unlock()
	c.bind(src, ch.Context, to)
}

// canHaveBody reports whether a response with code is stored with a body.
// 304 counts since the browser fills the body from its cache.
func canHaveBody(code int) bool {
	if code == 204 || code/100 == 1 {
		return false
	}
	return code != 301 && code != 302
}

// OnNavigationCommitted signals that ctx has started showing a new document.
// A table left over from the previous document is dropped, subscribers learn
// about the new context and stale pending entries are swept.
func (c *Collector) OnNavigationCommitted(ctx Context) {
	defer c.recoverHook("commit")
	c.enterHook("commit")

	if ctx == nil {
		return
	}

	c.lock()
	defer c.unlock()

	if wt, ok := c.tables[ctx.ID()]; ok {
		if doc := ctx.Document(); doc == nil || !wt.shows(doc) {
			delete(c.tables, ctx.ID())
		}
	}
	c.announce(ctx)

	if c.sweepOnCommit {
		c.pending.Sweep()
	}
}

// OnLoad stamps onLoadTime on the document or frame record whose element is
// the loaded document.
func (c *Collector) OnLoad(doc *html.Node) {
	defer c.recoverHook("load")
	c.enterHook("load")

	if doc == nil {
		return
	}

	c.lock()
	defer c.unlock()

	ctx := c.host.TopContext(doc)
	if ctx == nil {
		c.report.Anomaly(diag.KindMissingWindow, "Unable to find window for loaded document")
		return
	}
	tbl := c.tableFor(ctx, true)

	if c.recordOnLoad(tbl.OfType(resource.TypeDocument), doc) ||
		c.recordOnLoad(tbl.OfType(resource.TypeSubdocument), doc) {
		return
	}
	c.report.Debug("Unable to find loaded document, onload not recorded", zap.String("context", ctx.ID()))
}

func (c *Collector) recordOnLoad(records map[string]*resource.Record, doc *html.Node) bool {
	urls := make([]string, 0, len(records))
	for url := range records {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	for _, url := range urls {
		rec := records[url]
		for _, e := range rec.Elements {
			n := e.Node()
			if n == nil {
				continue
			}
			// Frame elements stand for the document they host
			if hosted := c.host.ContentDocument(n); hosted != nil {
				n = hosted
			}
			if n == doc {
				now := c.now()
				rec.OnLoadTime = &now
				return true
			}
		}
	}
	return false
}
