// Package redirect follows redirect chains recorded by the pending tracker or
// a window table.
package redirect

import (
	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/common/urlutil"
	"github.com/edgecomet/pagegraph/internal/graph/diag"
	"github.com/edgecomet/pagegraph/internal/graph/resource"
)

// Chains is the view of the pending tracker needed to resolve a chain
type Chains interface {
	HasEntry(url string) bool
	GetTail(url string) (string, bool)
}

// Records is the view of a window table needed to resolve a chain
type Records interface {
	Get(typ resource.Type, url string) *resource.Record
}

// ResolveFinal returns the last known URL of the redirect chain starting at
// from. Pending chains take priority; a pending chain that cannot be walked
// resolves to from. Otherwise redirect records are followed until a URL
// without a destination is reached. When a URL has several recorded
// destinations the first one is used. A loop yields false.
func ResolveFinal(chains Chains, records Records, from string, report *diag.Reporter) (string, bool) {
	if chains != nil && chains.HasEntry(from) {
		tail, ok := chains.GetTail(from)
		if !ok {
			return from, true
		}
		return tail, true
	}

	if records == nil {
		return from, true
	}

	visited := make(map[string]struct{})
	for {
		if _, seen := visited[from]; seen {
			report.Anomaly(diag.KindRedirectLoop, "Infinite redirect loop", zap.String("url", from))
			return "", false
		}
		visited[from] = struct{}{}

		rec := records.Get(resource.TypeRedirect, from)
		if rec == nil {
			break
		}
		dests := rec.Destinations()
		if len(dests) == 0 {
			break
		}
		if len(dests) > 1 {
			report.Anomaly(diag.KindDivergentRedirect, "Multiple redirect destinations, using first",
				zap.String("url", from), zap.Strings("destinations", dests))
		}
		from = dests[0]
	}

	return from, true
}

// ResolveEarliestSource walks redirects backwards from target and returns the
// URL the chain most likely started from: a reachable URL that nothing
// redirects to. With several candidates the shortest URL wins, ties broken by
// lexical order. If every reachable URL is itself a redirect destination
// (a cycle with no entry point) target is returned. The fragment of target is
// ignored.
func ResolveEarliestSource(redirects map[string][]string, target string) string {
	target = urlutil.StripFragment(target)
	if len(redirects) == 0 {
		return target
	}

	sources := make(map[string][]string)
	for from, dests := range redirects {
		for _, to := range dests {
			sources[to] = append(sources[to], from)
		}
	}

	visited := make(map[string]struct{})
	var candidates []string
	queue := []string{target}
	for len(queue) > 0 {
		url := queue[0]
		queue = queue[1:]

		if _, seen := visited[url]; seen {
			continue
		}
		visited[url] = struct{}{}

		inbound, ok := sources[url]
		if !ok {
			candidates = append(candidates, url)
			continue
		}
		queue = append(queue, inbound...)
	}

	if len(candidates) == 0 {
		return target
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if len(c) < len(best) || (len(c) == len(best) && c < best) {
			best = c
		}
	}
	return best
}
