package graph

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/graph/table"
)

// TestPage is a fake top-level browsing context
type TestPage struct {
	id  string
	url string
	doc *html.Node
}

func (p *TestPage) ID() string           { return p.id }
func (p *TestPage) URL() string          { return p.url }
func (p *TestPage) Document() *html.Node { return p.doc }

// Element returns the first element of the current document with the given tag
func (p *TestPage) Element(tag string) *html.Node {
	return FindElement(p.doc, func(n *html.Node) bool { return n.Data == tag })
}

// ElementWithAttr returns the first element whose attribute key equals val
func (p *TestPage) ElementWithAttr(key, val string) *html.Node {
	return FindElement(p.doc, func(n *html.Node) bool { return table.Attr(n, key) == val })
}

// FindElement walks n depth-first and returns the first element matching
func FindElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

// TestHost is a fake host keeping a document -> page index
type TestHost struct {
	mu     sync.Mutex
	pages  map[*html.Node]*TestPage
	frames map[*html.Node]*html.Node
	panics bool
}

func NewTestHost() *TestHost {
	return &TestHost{
		pages:  make(map[*html.Node]*TestPage),
		frames: make(map[*html.Node]*html.Node),
	}
}

// Open creates a page showing markup at url
func (h *TestHost) Open(id, url, markup string) *TestPage {
	p := &TestPage{id: id}
	h.Navigate(p, url, markup)
	return p
}

// Navigate replaces the page's document
func (h *TestHost) Navigate(p *TestPage, url, markup string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.doc != nil {
		delete(h.pages, p.doc)
	}
	p.url = url
	p.doc = MustParse(markup)
	h.pages[p.doc] = p
}

// AttachFrame gives the frame element a document of its own and returns it
func (h *TestHost) AttachFrame(p *TestPage, frame *html.Node, markup string) *html.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc := MustParse(markup)
	h.frames[frame] = doc
	h.pages[doc] = p
	return doc
}

// PanicOnLookup makes every host call panic
func (h *TestHost) PanicOnLookup(enabled bool) {
	h.mu.Lock()
	h.panics = enabled
	h.mu.Unlock()
}

func (h *TestHost) TopContext(doc *html.Node) Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("host lookup failed")
	}
	if p, ok := h.pages[doc]; ok {
		return p
	}
	return nil
}

func (h *TestHost) ContentDocument(frame *html.Node) *html.Node {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("host lookup failed")
	}
	return h.frames[frame]
}

// MustParse parses markup into a document node
func MustParse(markup string) *html.Node {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		panic(err)
	}
	return doc
}

// TestClock is a manually advanced clock
type TestClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewTestClock() *TestClock {
	return &TestClock{now: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *TestClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// TestPageMarkup is a small page with one resource of each common kind
const TestPageMarkup = `<html><head>
<link rel="icon" href="/favicon.ico">
<link rel="stylesheet" href="/site.css">
<script src="/app.js"></script>
</head><body>
<img src="/logo.png">
<iframe src="https://ads.example.net/frame"></iframe>
</body></html>`
