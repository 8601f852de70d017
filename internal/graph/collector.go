// Package graph correlates a host's pre-load classification calls with its
// request and response observations into one resource graph per top-level
// browsing context.
package graph

import (
	"io"
	"sync"
	"time"
	"weak"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph/diag"
	"github.com/edgecomet/pagegraph/internal/graph/pending"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
	"github.com/edgecomet/pagegraph/internal/graph/table"
)

// Context is a top-level browsing context as exposed by the host
type Context interface {
	// ID is stable for the lifetime of the tab or window
	ID() string
	// URL is the address of the document currently shown
	URL() string
	// Document is the node of the document currently shown. It may be nil
	// if the host cannot provide one.
	Document() *html.Node
}

// Host answers DOM questions the engine cannot derive from nodes alone
type Host interface {
	// TopContext returns the top-level context whose tree contains doc
	TopContext(doc *html.Node) Context
	// ContentDocument returns the document hosted by a frame element, or nil
	ContentDocument(frame *html.Node) *html.Node
}

// Load describes one candidate load reported before any network activity
type Load struct {
	HostType  resource.HostType
	Location  string
	Origin    string
	Initiator *html.Node
	MimeGuess string
}

// Channel describes one HTTP exchange as seen by the request and response observers
type Channel struct {
	URL             string
	OriginalURL     string
	Method          string
	RequestHeaders  resource.Headers
	ResponseHeaders resource.Headers
	Status          int
	ContentLength   int64

	// WindowURL is the address of the window that issued the request. It
	// defaults to the context URL.
	WindowURL string

	// NoStore marks responses the browser will not cache
	NoStore bool

	// ReplaceHistory is set when a normal load replaces the current history
	// entry, as JavaScript and meta refresh redirects do
	ReplaceHistory bool

	// Context is the owning top-level context. Exchanges without one did not
	// originate from a page and are ignored.
	Context Context

	// Tee asks the host to copy the response body into w and close it when
	// done. Nil when the host cannot tee.
	Tee func(w io.WriteCloser) error
}

// Metrics receives engine activity counters
type Metrics interface {
	diag.Recorder
	RecordHook(hook string)
	SetPendingEntries(n int)
	SetTables(n int)
	RecordDrainedChain(hops int)
}

type windowTable struct {
	doc   weak.Pointer[html.Node]
	table *table.Table
}

// shows reports whether the table was built for doc. A nil doc matches any table.
func (wt *windowTable) shows(doc *html.Node) bool {
	return doc == nil || wt.doc == weak.Make(doc)
}

// Collector is the correlation engine. Hook methods may be called from any
// goroutine; they are serialized internally and never panic.
type Collector struct {
	mu            sync.Mutex
	host          Host
	pending       *pending.Tracker
	tables        map[string]*windowTable
	announced     map[string]weak.Pointer[html.Node]
	subscribers   map[int]func(Context)
	nextSub       int
	queued        []Context
	report        *diag.Reporter
	logger        *zap.Logger
	metrics       Metrics
	now           func() time.Time
	maxAge        time.Duration
	sweepOnCommit bool
	maxBody       int
	bodyChunk     int
}

// Option configures a Collector
type Option func(*Collector)

// WithMaxAge sets the age bound of pending entries
func WithMaxAge(d time.Duration) Option {
	return func(c *Collector) { c.maxAge = d }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMetrics attaches a metrics sink
func WithMetrics(m Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// WithBodyLimits sets the cap and growth step of captured no-store bodies
func WithBodyLimits(maxBytes, chunk int) Option {
	return func(c *Collector) {
		c.maxBody = maxBytes
		c.bodyChunk = chunk
	}
}

// WithSweepOnCommit controls whether a committed navigation sweeps stale
// pending entries
func WithSweepOnCommit(enabled bool) Option {
	return func(c *Collector) { c.sweepOnCommit = enabled }
}

// NewCollector creates an engine bound to host
func NewCollector(host Host, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		host:          host,
		tables:        make(map[string]*windowTable),
		announced:     make(map[string]weak.Pointer[html.Node]),
		subscribers:   make(map[int]func(Context)),
		logger:        logger,
		now:           time.Now,
		maxAge:        pending.DefaultMaxAge,
		sweepOnCommit: true,
		maxBody:       resource.DefaultBodyLimit,
		bodyChunk:     resource.DefaultBodyChunk,
	}
	for _, opt := range opts {
		opt(c)
	}

	var recorder diag.Recorder
	if c.metrics != nil {
		recorder = c.metrics
	}
	c.report = diag.NewReporter(logger, recorder)
	c.pending = pending.NewTracker(c.report, pending.WithMaxAge(c.maxAge), pending.WithClock(c.now))
	return c
}

func (c *Collector) lock() {
	c.mu.Lock()
}

// unlock releases the lock and then delivers queued new-context notifications
func (c *Collector) unlock() {
	if c.metrics != nil {
		c.metrics.SetPendingEntries(c.pending.Len())
		c.metrics.SetTables(len(c.tables))
	}
	queued := c.queued
	c.queued = nil
	subs := make([]func(Context), 0, len(c.subscribers))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	c.mu.Unlock()

	for _, ctx := range queued {
		for _, fn := range subs {
			c.notify(fn, ctx)
		}
	}
}

func (c *Collector) notify(fn func(Context), ctx Context) {
	defer func() {
		if r := recover(); r != nil {
			c.report.Anomaly(diag.KindHookPanic, "New context callback panicked",
				zap.String("context", ctx.ID()), zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// recoverHook keeps a failure inside the engine from reaching the host
func (c *Collector) recoverHook(hook string) {
	if r := recover(); r != nil {
		c.report.Anomaly(diag.KindHookPanic, "Recovered panic in hook",
			zap.String("hook", hook), zap.Any("panic", r), zap.Stack("stack"))
	}
}

func (c *Collector) enterHook(hook string) {
	if c.metrics != nil {
		c.metrics.RecordHook(hook)
	}
}

// announce queues ctx for subscribers the first time its current document is seen
func (c *Collector) announce(ctx Context) {
	doc := weak.Make(ctx.Document())
	if prev, ok := c.announced[ctx.ID()]; ok && prev == doc {
		return
	}
	c.announced[ctx.ID()] = doc
	c.queued = append(c.queued, ctx)
}

// tableFor returns the table of ctx's current navigation. A table that was
// built for a different document is stale and treated as absent. With
// create set a missing table is created: it is seeded with the document
// record, pending entries for the document are drained into it, and stale
// pending entries are swept.
func (c *Collector) tableFor(ctx Context, create bool) *table.Table {
	id := ctx.ID()
	doc := ctx.Document()
	if wt, ok := c.tables[id]; ok && wt.shows(doc) {
		return wt.table
	}
	if !create {
		return nil
	}

	docURL := urlutil.Normalize(ctx.URL())
	tbl := table.New(docURL, doc, c.report)
	c.tables[id] = &windowTable{doc: weak.Make(doc), table: tbl}
	c.announce(ctx)

	c.bindPendingDocumentEntries(docURL, tbl)
	c.pending.Sweep()
	return tbl
}

// createDocumentEntry starts tracking a top-level navigation to url
func (c *Collector) createDocumentEntry(url string) {
	c.pending.AddDocument(url)
}

// bindPendingDocumentEntries drains the pending chain ending at docURL into
// tbl: the document picks up the pending properties, each hop becomes a
// redirect record, and the earliest hop start becomes the page load start.
func (c *Collector) bindPendingDocumentEntries(docURL string, tbl *table.Table) {
	entry, ok := c.pending.GetEntry(docURL)
	if !ok {
		return
	}

	doc := tbl.Document()
	resource.Merge(&entry.Properties, &doc.Properties, &doc.Properties)

	var requested, earliest time.Time
	if doc.RequestTime != nil {
		requested = *doc.RequestTime
		earliest = requested
	}
	if earliest.IsZero() {
		c.report.Anomaly(diag.KindInvalidTime, "Found invalid document request time", zap.String("url", docURL))
	}

	chain := c.pending.GetAllToHead(docURL)
	hops := 0
	// chain runs from the document back to the head, hops are added oldest first
	for i := len(chain) - 1; i >= 0; i-- {
		to := chain[i]
		from, ok := c.pending.GetPrev(to)
		if !ok {
			continue
		}
		fromEntry, ok := c.pending.GetEntry(from)
		if !ok {
			continue
		}

		start := fromEntry.InitTime
		switch {
		case start.IsZero():
			c.report.Anomaly(diag.KindInvalidTime, "Found invalid redirect time", zap.String("url", from))
		case earliest.IsZero() || start.Before(earliest):
			earliest = start
		case !requested.IsZero() && start.After(requested):
			c.report.Anomaly(diag.KindInvalidTime, "Found out of order redirect time",
				zap.String("from", from), zap.String("to", to))
		}

		rec, _ := tbl.Add(resource.TypeRedirect, from, resource.URLElement(to), true)
		resource.Merge(&fromEntry.Properties, &rec.Properties, &rec.Properties)
		hops++
	}

	for _, url := range chain {
		c.pending.RemoveEntry(url)
	}

	if !earliest.IsZero() {
		doc.PageLoadStart = &earliest
	} else {
		c.report.Anomaly(diag.KindInvalidTime, "Found invalid page load start", zap.String("url", docURL))
	}

	if c.metrics != nil {
		c.metrics.RecordDrainedChain(hops)
	}
	c.report.Debug("Bound pending document entries",
		zap.String("url", docURL), zap.Int("hops", hops))
}

// bind merges src into the pending entry for url if there is one, otherwise
// into every record keyed by url in ctx's table
func (c *Collector) bind(src *resource.Properties, ctx Context, url string) {
	if entry, ok := c.pending.GetEntry(url); ok {
		resource.Merge(src, &entry.Properties, &entry.Properties)
		return
	}

	tbl := c.tableFor(ctx, false)
	if tbl == nil {
		return
	}

	records := tbl.RecordsFor(url)
	for _, rec := range records {
		resource.Merge(src, &rec.Properties, &rec.Properties)
	}
	if len(records) == 0 {
		c.report.Anomaly(diag.KindUnboundResponse, "Unable to bind response data", zap.String("url", url))
	}
}
