// Package table holds the committed resources of one top-level browsing
// context, indexed by resource type and URL.
package table

import (
	"sort"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/edgecomet/pagegraph/internal/graph/diag"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Table maps type -> URL -> record for a single navigation of a context.
// It always holds exactly one document record, keyed by the URL the context
// showed when the table was created.
//
// Table is not safe for concurrent use.
type Table struct {
	docURL     string
	components map[resource.Type]map[string]*resource.Record
	report     *diag.Reporter
}

// New creates a table seeded with the document record for docURL
func New(docURL string, doc *html.Node, report *diag.Reporter) *Table {
	t := &Table{
		docURL:     docURL,
		components: make(map[resource.Type]map[string]*resource.Record),
		report:     report,
	}
	rec := t.record(resource.TypeDocument, docURL)
	rec.Elements = append(rec.Elements, resource.NodeElement(doc))
	return t
}

// DocumentURL returns the primary URL of the table
func (t *Table) DocumentURL() string {
	return t.docURL
}

// Document returns the document record
func (t *Table) Document() *resource.Record {
	return t.Get(resource.TypeDocument, t.docURL)
}

func (t *Table) record(typ resource.Type, key string) *resource.Record {
	byURL, ok := t.components[typ]
	if !ok {
		byURL = make(map[string]*resource.Record)
		t.components[typ] = byURL
	}
	rec, ok := byURL[key]
	if !ok {
		rec = resource.NewRecord(typ)
		byURL[key] = rec
	}
	return rec
}

// Add appends e to the record for (typ, key), creating the record if needed.
// With unique set, an element that is already present is not added again and
// Add returns false. Adding a redirect destination migrates every resource
// recorded under key to the destination URL.
func (t *Table) Add(typ resource.Type, key string, e resource.Element, unique bool) (*resource.Record, bool) {
	rec := t.record(typ, key)
	if unique && rec.HasElement(e) {
		return rec, false
	}
	rec.Elements = append(rec.Elements, e)

	if typ == resource.TypeRedirect {
		if !e.IsURL() {
			t.report.Anomaly(diag.KindBadRedirectTarget, "Got non-URL destination for redirect",
				zap.String("url", key))
			return rec, true
		}
		t.MigrateResource(key, e.URL())
	}
	return rec, true
}

// Get returns the record for (typ, key), or nil
func (t *Table) Get(typ resource.Type, key string) *resource.Record {
	if t == nil {
		return nil
	}
	return t.components[typ][key]
}

// OfType returns the live records of one type keyed by URL
func (t *Table) OfType(typ resource.Type) map[string]*resource.Record {
	if t == nil {
		return nil
	}
	return t.components[typ]
}

// RecordsFor returns every record keyed by url, in type order
func (t *Table) RecordsFor(url string) []*resource.Record {
	if t == nil {
		return nil
	}
	var out []*resource.Record
	for _, typ := range resource.AllTypes() {
		if rec, ok := t.components[typ][url]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// MigrateResource moves every record keyed by from to key to, merging into
// any record already there. Hop fields of the moved records land on the
// redirect record for from. Redirect and document records are not moved.
// It returns the number of records moved.
func (t *Table) MigrateResource(from, to string) int {
	if from == to {
		return 0
	}

	var hop *resource.Properties
	if redirect := t.Get(resource.TypeRedirect, from); redirect != nil {
		hop = &redirect.Properties
	}

	moved := 0
	for _, typ := range resource.AllTypes() {
		if typ == resource.TypeRedirect || typ == resource.TypeDocument {
			continue
		}
		src, ok := t.components[typ][from]
		if !ok {
			continue
		}
		dst := t.record(typ, to)
		resource.Merge(&src.Properties, &dst.Properties, hop)
		delete(t.components[typ], from)
		moved++
	}

	if moved == 0 {
		t.report.Debug("No resources to migrate for redirect", zap.String("from", from), zap.String("to", to))
	}
	return moved
}

// Redirects returns the redirect adjacency: source URL -> destinations in
// recorded order.
func (t *Table) Redirects() map[string][]string {
	out := make(map[string][]string)
	if t == nil {
		return out
	}
	for from, rec := range t.components[resource.TypeRedirect] {
		if dests := rec.Destinations(); len(dests) > 0 {
			out[from] = dests
		}
	}
	return out
}

// Snapshot returns a deep copy of the table that callers may keep and
// modify freely.
func (t *Table) Snapshot() map[resource.Type]map[string]*resource.Record {
	out := make(map[resource.Type]map[string]*resource.Record)
	if t == nil {
		return out
	}
	for typ, byURL := range t.components {
		if len(byURL) == 0 {
			continue
		}
		copied := make(map[string]*resource.Record, len(byURL))
		for url, rec := range byURL {
			copied[url] = rec.Clone()
		}
		out[typ] = copied
	}
	return out
}

// URLs returns the sorted URLs recorded for one type
func (t *Table) URLs(typ resource.Type) []string {
	if t == nil {
		return nil
	}
	urls := make([]string, 0, len(t.components[typ]))
	for url := range t.components[typ] {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Len returns the total number of records
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, byURL := range t.components {
		n += len(byURL)
	}
	return n
}
