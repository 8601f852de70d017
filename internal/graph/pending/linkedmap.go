package pending

import (
	"sort"

	"go.uber.org/zap"

	"github.com/edgecomet/pagegraph/internal/graph/diag"
)

// LinkValidator decides whether a prev -> next link is still usable
type LinkValidator[T any] func(m *LinkedMap[T], prev, next string) bool

// KeyValidator decides whether the entry stored under key is still usable
type KeyValidator[T any] func(m *LinkedMap[T], key string) bool

type validationState int

const (
	stateIdle validationState = iota
	stateValidating
)

type linkedNode[T any] struct {
	value T
	prev  string
	next  string
}

// LinkedMap is a map whose entries can be chained into doubly linked lists.
//
// Keys and links are validated lazily on every access. Validators may call
// back into the map; while a validation is running, nested validations
// short-circuit to valid so the validators cannot recurse into each other.
// Invalid entries are removed on access and invalid links are severed.
//
// LinkedMap is not safe for concurrent use.
type LinkedMap[T any] struct {
	entries   map[string]*linkedNode[T]
	state     validationState
	linkValid LinkValidator[T]
	keyValid  KeyValidator[T]
	report    *diag.Reporter
}

// NewLinkedMap creates an empty map. Nil validators always accept.
func NewLinkedMap[T any](linkValid LinkValidator[T], keyValid KeyValidator[T], report *diag.Reporter) *LinkedMap[T] {
	if linkValid == nil {
		linkValid = func(*LinkedMap[T], string, string) bool { return true }
	}
	if keyValid == nil {
		keyValid = func(*LinkedMap[T], string) bool { return true }
	}
	return &LinkedMap[T]{
		entries:   make(map[string]*linkedNode[T]),
		linkValid: linkValid,
		keyValid:  keyValid,
		report:    report,
	}
}

// guard runs check in the validating state
func (m *LinkedMap[T]) guard(check func() bool) bool {
	if m.state == stateValidating {
		return true
	}
	m.state = stateValidating
	defer func() { m.state = stateIdle }()
	return check()
}

// Validating reports whether a validator is currently running
func (m *LinkedMap[T]) Validating() bool {
	return m.state == stateValidating
}

// AddEntry stores value under key, replacing any previous entry. Links into
// and out of the old entry are severed first. Empty keys are ignored.
func (m *LinkedMap[T]) AddEntry(key string, value T) bool {
	if key == "" {
		return false
	}
	m.UnlinkPrev(key)
	m.UnlinkNext(key)
	m.entries[key] = &linkedNode[T]{value: value}
	return true
}

// GetEntry returns the value for key after validating it. An entry that
// fails validation is removed.
func (m *LinkedMap[T]) GetEntry(key string) (T, bool) {
	var zero T
	n, ok := m.entries[key]
	if key == "" || !ok {
		return zero, false
	}
	if !m.guard(func() bool { return m.keyValid(m, key) }) {
		m.RemoveEntry(key)
		return zero, false
	}
	return n.value, true
}

func (m *LinkedMap[T]) HasEntry(key string) bool {
	_, ok := m.GetEntry(key)
	return ok
}

// RemoveEntry deletes key and severs its links
func (m *LinkedMap[T]) RemoveEntry(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	m.UnlinkPrev(key)
	m.UnlinkNext(key)
	delete(m.entries, key)
}

// RemoveEntriesNotMatching removes every valid entry for which keep returns
// false. Entries that are already invalid are dropped by validation.
func (m *LinkedMap[T]) RemoveEntriesNotMatching(keep func(m *LinkedMap[T], key string) bool) {
	var toRemove []string
	for _, key := range m.Keys() {
		if !m.HasEntry(key) {
			continue
		}
		if !keep(m, key) {
			toRemove = append(toRemove, key)
		}
	}

	for _, key := range toRemove {
		if !m.HasEntry(key) {
			continue
		}
		m.RemoveEntry(key)
	}
}

// GetNext returns the key linked after key, if the link is still valid
func (m *LinkedMap[T]) GetNext(key string) (string, bool) {
	if !m.HasEntry(key) {
		return "", false
	}
	next := m.entries[key].next
	if next == "" {
		return "", false
	}
	if !m.validLink(key, next) {
		m.UnlinkNext(key)
		return "", false
	}
	return next, true
}

// GetPrev returns the key linked before key, if the link is still valid
func (m *LinkedMap[T]) GetPrev(key string) (string, bool) {
	if !m.HasEntry(key) {
		return "", false
	}
	prev := m.entries[key].prev
	if prev == "" {
		return "", false
	}
	if !m.validLink(prev, key) {
		m.UnlinkPrev(key)
		return "", false
	}
	return prev, true
}

// GetTail walks next links to the end of the chain containing key. It
// returns false if key has no entry or the walk runs into a cycle.
func (m *LinkedMap[T]) GetTail(key string) (string, bool) {
	return m.walkToEnd(key, m.GetNext)
}

// GetHead walks prev links to the start of the chain containing key
func (m *LinkedMap[T]) GetHead(key string) (string, bool) {
	return m.walkToEnd(key, m.GetPrev)
}

func (m *LinkedMap[T]) walkToEnd(key string, step func(string) (string, bool)) (string, bool) {
	if !m.HasEntry(key) {
		return "", false
	}
	visited := map[string]struct{}{key: {}}
	for {
		next, ok := step(key)
		if !ok {
			return key, true
		}
		if _, seen := visited[next]; seen {
			m.report.Anomaly(diag.KindCycle, "Found cycle in linked list", zap.String("url", next))
			return "", false
		}
		visited[next] = struct{}{}
		key = next
	}
}

// GetAllToTail returns key followed by every key reachable through next
// links. A cycle truncates the result at the first repeated key.
func (m *LinkedMap[T]) GetAllToTail(key string) []string {
	return m.walkAll(key, m.GetNext)
}

// GetAllToHead returns key followed by every key reachable through prev links
func (m *LinkedMap[T]) GetAllToHead(key string) []string {
	return m.walkAll(key, m.GetPrev)
}

func (m *LinkedMap[T]) walkAll(key string, step func(string) (string, bool)) []string {
	var keys []string
	if !m.HasEntry(key) {
		return keys
	}
	visited := make(map[string]struct{})
	for {
		keys = append(keys, key)
		visited[key] = struct{}{}
		next, ok := step(key)
		if !ok {
			return keys
		}
		if _, seen := visited[next]; seen {
			m.report.Anomaly(diag.KindCycle, "Found cycle in linked list", zap.String("url", next))
			return keys
		}
		key = next
	}
}

// LinkPrev links prevKey before key. Both entries must exist and the link
// must pass validation, otherwise nothing changes.
func (m *LinkedMap[T]) LinkPrev(key, prevKey string) bool {
	return m.link(prevKey, key)
}

// LinkNext links nextKey after key
func (m *LinkedMap[T]) LinkNext(key, nextKey string) bool {
	return m.link(key, nextKey)
}

func (m *LinkedMap[T]) link(prev, next string) bool {
	if prev == next || !m.HasEntry(prev) || !m.HasEntry(next) {
		return false
	}
	if !m.validLink(prev, next) {
		return false
	}
	// Each entry has a single prev and next, drop whatever they pointed at.
	m.UnlinkNext(prev)
	m.UnlinkPrev(next)
	m.entries[prev].next = next
	m.entries[next].prev = prev
	return true
}

// UnlinkPrev severs the link between key and its predecessor
func (m *LinkedMap[T]) UnlinkPrev(key string) {
	n, ok := m.entries[key]
	if !ok {
		return
	}
	prev := n.prev
	n.prev = ""
	if p, ok := m.entries[prev]; ok && p.next == key {
		p.next = ""
	}
}

// UnlinkNext severs the link between key and its successor
func (m *LinkedMap[T]) UnlinkNext(key string) {
	n, ok := m.entries[key]
	if !ok {
		return
	}
	next := n.next
	n.next = ""
	if x, ok := m.entries[next]; ok && x.prev == key {
		x.prev = ""
	}
}

func (m *LinkedMap[T]) validLink(prev, next string) bool {
	return m.guard(func() bool { return m.linkValid(m, prev, next) })
}

// Len returns the number of stored entries, valid or not
func (m *LinkedMap[T]) Len() int {
	return len(m.entries)
}

// Keys returns the stored keys in sorted order without validating them
func (m *LinkedMap[T]) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
