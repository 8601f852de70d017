package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

func newDoc() *html.Node {
	return &html.Node{Type: html.DocumentNode}
}

func TestNewSeedsDocumentRecord(t *testing.T) {
	doc := newDoc()
	tbl := New("https://example.com/", doc, nil)

	assert.Equal(t, "https://example.com/", tbl.DocumentURL())
	rec := tbl.Document()
	require.NotNil(t, rec)
	assert.Equal(t, resource.TypeDocument, rec.Type)
	require.Len(t, rec.Elements, 1)
	assert.Same(t, doc, rec.Elements[0].Node())
	assert.Equal(t, 1, tbl.Len())
	assert.Len(t, tbl.OfType(resource.TypeDocument), 1)
}

func TestAddAppendsElements(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)
	img1 := &html.Node{Type: html.ElementNode, Data: "img"}
	img2 := &html.Node{Type: html.ElementNode, Data: "img"}

	rec, added := tbl.Add(resource.TypeImage, "https://example.com/a.png", resource.NodeElement(img1), false)
	require.True(t, added)
	_, added = tbl.Add(resource.TypeImage, "https://example.com/a.png", resource.NodeElement(img2), false)
	require.True(t, added)
	_, added = tbl.Add(resource.TypeImage, "https://example.com/a.png", resource.NodeElement(img1), false)
	require.True(t, added, "non-unique adds allow duplicates")

	assert.Same(t, rec, tbl.Get(resource.TypeImage, "https://example.com/a.png"))
	assert.Len(t, rec.Elements, 3)
	assert.Nil(t, tbl.Get(resource.TypeScript, "https://example.com/a.png"))
	assert.Equal(t, []string{"https://example.com/a.png"}, tbl.URLs(resource.TypeImage))
}

func TestAddUnique(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)

	_, added := tbl.Add(resource.TypeRedirect, "https://a.com/", resource.URLElement("https://b.com/"), true)
	assert.True(t, added)
	rec, added := tbl.Add(resource.TypeRedirect, "https://a.com/", resource.URLElement("https://b.com/"), true)
	assert.False(t, added)
	assert.Equal(t, []string{"https://b.com/"}, rec.Destinations())
}

func TestRedirectMigratesResource(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)
	script := &html.Node{Type: html.ElementNode, Data: "script"}
	requested := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rec, _ := tbl.Add(resource.TypeScript, "https://cdn.com/old.js", resource.NodeElement(script), false)
	rec.RequestHeaders = resource.Headers{{Name: "X", Value: "1"}}
	rec.RequestTime = &requested

	redirect, added := tbl.Add(resource.TypeRedirect, "https://cdn.com/old.js", resource.URLElement("https://cdn.com/new.js"), true)
	require.True(t, added)

	assert.Nil(t, tbl.Get(resource.TypeScript, "https://cdn.com/old.js"))
	moved := tbl.Get(resource.TypeScript, "https://cdn.com/new.js")
	require.NotNil(t, moved)
	assert.Equal(t, resource.TypeScript, moved.Type)
	require.Len(t, moved.Elements, 1)
	assert.Same(t, script, moved.Elements[0].Node())
	assert.True(t, requested.Equal(*moved.RequestTime))

	// The request headers belonged to the redirected exchange and stay with the hop
	assert.Equal(t, resource.Headers{{Name: "X", Value: "1"}}, redirect.RequestHeaders)
	assert.Empty(t, moved.RequestHeaders)

	// Redirect and document records are never moved
	assert.NotNil(t, tbl.Get(resource.TypeRedirect, "https://cdn.com/old.js"))
}

func TestMigrateResourceMergesIntoExisting(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Second)

	old, _ := tbl.Add(resource.TypeImage, "https://a.com/x.png", resource.URLElement("unused"), false)
	old.RequestTime = &later
	old.FromCache = resource.Ptr(true)

	existing, _ := tbl.Add(resource.TypeImage, "https://b.com/x.png", resource.URLElement("kept"), false)
	existing.RequestTime = &first

	moved := tbl.MigrateResource("https://a.com/x.png", "https://b.com/x.png")
	assert.Equal(t, 1, moved)

	rec := tbl.Get(resource.TypeImage, "https://b.com/x.png")
	assert.Len(t, rec.Elements, 2)
	assert.True(t, first.Equal(*rec.RequestTime), "earliest request time wins")
	assert.True(t, *rec.FromCache)

	assert.Equal(t, 0, tbl.MigrateResource("https://nothing.com/", "https://b.com/x.png"))
	assert.Equal(t, 0, tbl.MigrateResource("https://b.com/x.png", "https://b.com/x.png"))
}

func TestMigrateSkipsDocument(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)

	tbl.Add(resource.TypeRedirect, "https://example.com/", resource.URLElement("https://example.com/home"), true)

	assert.NotNil(t, tbl.Document())
	assert.Nil(t, tbl.Get(resource.TypeDocument, "https://example.com/home"))
}

func TestRedirectsAdjacency(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)
	tbl.Add(resource.TypeRedirect, "https://a.com/", resource.URLElement("https://b1.com/"), true)
	tbl.Add(resource.TypeRedirect, "https://a.com/", resource.URLElement("https://b2.com/"), true)
	tbl.Add(resource.TypeRedirect, "https://b1.com/", resource.URLElement("https://c.com/"), true)

	assert.Equal(t, map[string][]string{
		"https://a.com/":  {"https://b1.com/", "https://b2.com/"},
		"https://b1.com/": {"https://c.com/"},
	}, tbl.Redirects())

	assert.Len(t, tbl.RecordsFor("https://a.com/"), 1)
}

func TestSnapshotIsIsolated(t *testing.T) {
	tbl := New("https://example.com/", newDoc(), nil)
	rec, _ := tbl.Add(resource.TypeStylesheet, "https://example.com/s.css", resource.URLElement("x"), false)
	rec.ResponseCode = resource.Ptr(200)

	snap := tbl.Snapshot()
	*snap[resource.TypeStylesheet]["https://example.com/s.css"].ResponseCode = 500
	delete(snap, resource.TypeDocument)

	assert.Equal(t, 200, *rec.ResponseCode)
	assert.NotNil(t, tbl.Document())
}

func TestNilTable(t *testing.T) {
	var tbl *Table
	assert.Nil(t, tbl.Get(resource.TypeRedirect, "https://a.com/"))
	assert.Nil(t, tbl.OfType(resource.TypeImage))
	assert.Empty(t, tbl.Redirects())
	assert.Empty(t, tbl.Snapshot())
	assert.Equal(t, 0, tbl.Len())
}
