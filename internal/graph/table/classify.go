package table

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Classify refines the host's coarse type using the initiating node. Image
// loads are split into favicons (a link element whose rel mentions "icon"),
// css images (initiated by a document, i.e. a style context rather than a
// markup element) and plain images. Other host types map directly.
func Classify(host resource.HostType, node *html.Node) resource.Type {
	if host != resource.HostImage || node == nil {
		return host.Type()
	}

	switch {
	case isIconLink(node):
		return resource.TypeFavicon
	case node.Type == html.DocumentNode:
		return resource.TypeCSSImage
	default:
		return resource.TypeImage
	}
}

func isIconLink(n *html.Node) bool {
	if n.Type != html.ElementNode || !strings.EqualFold(n.Data, "link") {
		return false
	}
	rel := Attr(n, "rel")
	return strings.Contains(strings.ToLower(rel), "icon")
}

// OwnerDocument returns the document node containing n, or n itself if it is
// a document. It returns nil for detached nodes.
func OwnerDocument(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return n
		}
	}
	return nil
}

// Attr returns the value of the named attribute, compared case-insensitively
func Attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}
