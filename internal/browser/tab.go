package browser

import (
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/edgecomet/pagegraph/internal/graph"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// initiatorKind selects the synthetic node that stands for the element
// which caused a load
type initiatorKind int

const (
	kindDocument initiatorKind = iota
	kindFrame
	kindScript
	kindStylesheet
	kindImage
	kindFavicon
	kindObject
)

type frame struct {
	id      cdp.FrameID
	parent  *frame
	url     string
	doc     *html.Node
	body    *html.Node
	element *html.Node // iframe element in the parent document, nil for the main frame
}

// Tab is the engine's view of one Chrome tab. Chrome does not hand out DOM
// nodes for network events, so every frame gets a synthetic document and
// each load gets an element in it. Node identity is what the engine keys
// documents and frames by: a committed navigation replaces the frame's
// document node.
//
// Tab implements both graph.Host and graph.Context.
type Tab struct {
	mu       sync.RWMutex
	id       string
	main     *frame
	frames   map[cdp.FrameID]*frame
	docs     map[*html.Node]*frame
	elements map[*html.Node]*frame
}

var (
	_ graph.Host    = (*Tab)(nil)
	_ graph.Context = (*Tab)(nil)
)

// NewTab creates a tab whose main frame shows url
func NewTab(id, url string) *Tab {
	t := &Tab{
		id:       id,
		frames:   make(map[cdp.FrameID]*frame),
		docs:     make(map[*html.Node]*frame),
		elements: make(map[*html.Node]*frame),
	}
	t.main = &frame{url: url}
	t.replaceDocumentLocked(t.main)
	return t
}

func (t *Tab) ID() string {
	return t.id
}

func (t *Tab) URL() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.main.url
}

func (t *Tab) Document() *html.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.main.doc
}

// TopContext returns the tab for any document currently shown in one of its frames
func (t *Tab) TopContext(doc *html.Node) graph.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.docs[doc]; ok {
		return t
	}
	return nil
}

// ContentDocument returns the document shown by an iframe element
func (t *Tab) ContentDocument(element *html.Node) *html.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if f, ok := t.elements[element]; ok {
		return f.doc
	}
	return nil
}

// IsMain reports whether id is the main frame. The first frame ID seen
// before any attach is adopted as the main frame.
func (t *Tab) IsMain(id cdp.FrameID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameLocked(id) == t.main
}

// AttachFrame adds an iframe element for id to its parent's document
func (t *Tab) AttachFrame(id, parentID cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.frames[id]; ok {
		return
	}
	t.attachLocked(id, t.frameLocked(parentID))
}

func (t *Tab) attachLocked(id cdp.FrameID, parent *frame) *frame {
	f := &frame{id: id, parent: parent, url: "about:blank"}
	f.element = newElement(atom.Iframe)
	parent.body.AppendChild(f.element)
	t.replaceDocumentLocked(f)
	t.frames[id] = f
	t.elements[f.element] = f
	return f
}

// DetachFrame removes a frame and everything nested in it
func (t *Tab) DetachFrame(id cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.frames[id]
	if !ok || f == t.main {
		return
	}
	if f.element.Parent != nil {
		f.element.Parent.RemoveChild(f.element)
	}
	t.forgetLocked(f)
}

func (t *Tab) forgetLocked(f *frame) {
	for _, child := range t.frames {
		if child.parent == f {
			t.forgetLocked(child)
		}
	}
	delete(t.frames, f.id)
	delete(t.docs, f.doc)
	if f.element != nil {
		delete(t.elements, f.element)
	}
}

// Commit records that frame id now shows url in a fresh document. It
// reports whether id is the main frame.
func (t *Tab) Commit(id cdp.FrameID, url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	f := t.frameLocked(id)
	for _, child := range t.frames {
		if child.parent == f {
			t.forgetLocked(child)
		}
	}
	f.url = url
	t.replaceDocumentLocked(f)
	return f == t.main
}

// DocumentOf returns the current document of frame id, nil if unknown
func (t *Tab) DocumentOf(id cdp.FrameID) *html.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if f, ok := t.frames[id]; ok {
		return f.doc
	}
	return nil
}

// Initiator returns the node the engine sees as the cause of a load in
// frame id. Frame loads are initiated by the frame's own iframe element,
// which is created if the frame was never announced.
func (t *Tab) Initiator(id cdp.FrameID, kind initiatorKind, url string) *html.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	if kind == kindFrame {
		f, ok := t.frames[id]
		if !ok || f == t.main {
			f = t.attachLocked(id, t.main)
		}
		f.element.Attr = setAttr(f.element.Attr, "src", url)
		return f.element
	}

	f := t.frameLocked(id)
	var n *html.Node
	switch kind {
	case kindScript:
		n = newElement(atom.Script, "src", url)
	case kindStylesheet:
		n = newElement(atom.Link, "rel", "stylesheet", "href", url)
	case kindImage:
		n = newElement(atom.Img, "src", url)
	case kindFavicon:
		n = newElement(atom.Link, "rel", "icon", "href", url)
	case kindObject:
		n = newElement(atom.Object, "data", url)
	default:
		return f.doc
	}
	f.body.AppendChild(n)
	return n
}

// frameLocked resolves id, falling back to the main frame
func (t *Tab) frameLocked(id cdp.FrameID) *frame {
	if f, ok := t.frames[id]; ok {
		return f
	}
	if t.main.id == "" && id != "" {
		t.main.id = id
		t.frames[id] = t.main
	}
	return t.main
}

func (t *Tab) replaceDocumentLocked(f *frame) {
	if f.doc != nil {
		delete(t.docs, f.doc)
	}
	f.doc, f.body = newDocument()
	t.docs[f.doc] = f
}

func newDocument() (doc, body *html.Node) {
	doc = &html.Node{Type: html.DocumentNode}
	root := newElement(atom.Html)
	body = newElement(atom.Body)
	doc.AppendChild(root)
	root.AppendChild(newElement(atom.Head))
	root.AppendChild(body)
	return doc, body
}

func newElement(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func setAttr(attrs []html.Attribute, key, val string) []html.Attribute {
	for i := range attrs {
		if attrs[i].Key == key {
			attrs[i].Val = val
			return attrs
		}
	}
	return append(attrs, html.Attribute{Key: key, Val: val})
}

// initiatorFor maps an engine host type to the synthetic initiator used for it
func initiatorFor(host resource.HostType, cssImage, favicon bool) initiatorKind {
	switch host {
	case resource.HostSubdocument:
		return kindFrame
	case resource.HostScript:
		return kindScript
	case resource.HostStylesheet:
		return kindStylesheet
	case resource.HostImage:
		switch {
		case favicon:
			return kindFavicon
		case cssImage:
			return kindDocument
		default:
			return kindImage
		}
	case resource.HostObject:
		return kindObject
	default:
		return kindDocument
	}
}
