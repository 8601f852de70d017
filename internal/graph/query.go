package graph

import (
	"github.com/edgecomet/pagegraph/internal/graph/redirect"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Table returns a copy of ctx's current table, or nil if nothing has been
// recorded for its current document yet.
func (c *Collector) Table(ctx Context) map[resource.Type]map[string]*resource.Record {
	c.lock()
	defer c.unlock()

	tbl := c.tableFor(ctx, false)
	if tbl == nil {
		return nil
	}
	return tbl.Snapshot()
}

// ComponentsOfType returns copies of ctx's records of one type keyed by URL
func (c *Collector) ComponentsOfType(ctx Context, typ resource.Type) map[string]*resource.Record {
	c.lock()
	defer c.unlock()

	tbl := c.tableFor(ctx, false)
	if tbl == nil {
		return nil
	}
	out := make(map[string]*resource.Record, len(tbl.OfType(typ)))
	for url, rec := range tbl.OfType(typ) {
		out[url] = rec.Clone()
	}
	return out
}

// EarliestSource returns the URL the user most likely started from to end up
// at url, following the redirects recorded in ctx's table
func (c *Collector) EarliestSource(ctx Context, url string) string {
	c.lock()
	defer c.unlock()

	return redirect.ResolveEarliestSource(c.tableFor(ctx, false).Redirects(), url)
}

// SubscribeNewContext registers fn to be called once for every newly
// observed top-level context. Calls happen outside the engine lock, so fn
// may query the collector. The returned function unsubscribes.
func (c *Collector) SubscribeNewContext(fn func(Context)) func() {
	c.lock()
	defer c.unlock()

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = fn

	return func() {
		c.lock()
		defer c.unlock()
		delete(c.subscribers, id)
	}
}

// Release forgets everything recorded for ctx, e.g. when its tab closes
func (c *Collector) Release(ctx Context) {
	c.lock()
	defer c.unlock()

	delete(c.tables, ctx.ID())
	delete(c.announced, ctx.ID())
}

// PendingEntries returns the number of pending navigation entries, including
// ones that have expired but not been swept yet
func (c *Collector) PendingEntries() int {
	c.lock()
	defer c.unlock()
	return c.pending.Len()
}
