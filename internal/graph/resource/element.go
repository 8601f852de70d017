package resource

import (
	"weak"

	"golang.org/x/net/html"
)

// Element is one entry of a record's elements list. Resource records hold
// weak handles to the DOM nodes that initiated them, redirect records hold
// destination URLs.
//
// A node handle never keeps the node alive. Once the node is collected
// Node returns nil and callers skip the element.
type Element struct {
	node weak.Pointer[html.Node]
	url  string
}

// NodeElement returns a weak handle to n
func NodeElement(n *html.Node) Element {
	return Element{node: weak.Make(n)}
}

// URLElement returns a redirect destination element
func URLElement(url string) Element {
	return Element{url: url}
}

// Node dereferences the handle. It returns nil when the node is gone or
// when the element carries a URL.
func (e Element) Node() *html.Node {
	return e.node.Value()
}

// URL returns the redirect destination, or "" for node elements
func (e Element) URL() string {
	return e.url
}

func (e Element) IsURL() bool {
	return e.url != ""
}
