package algobot

import (
	"sync"
)

// requestKind identifies the expensive operation being guarded.
type requestKind string

const (
	requestKindTranslate requestKind = "translate"
	requestKindInspire   requestKind = "inspire"
)

// requestKey identifies one in-flight expensive request.
type requestKey struct {
	UserID    string
	ProblemID int
	Kind      requestKind
}

// requestGuard is a keyed mutual-exclusion set used to suppress
// duplicate concurrent expensive operations (LLM calls). Check-and-insert
// happens under one lock, so of N simultaneous callers with the same key
// exactly one wins.
type requestGuard struct {
	mu       sync.Mutex
	inflight map[requestKey]struct{}
}

func newRequestGuard() *requestGuard {
	return &requestGuard{inflight: map[requestKey]struct{}{}}
}

// TryBegin registers the key and returns true, or returns false if the
// key is already registered. The caller must call End when done.
func (g *requestGuard) TryBegin(key requestKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.inflight[key]; exists {
		return false
	}
	g.inflight[key] = struct{}{}
	return true
}

// End unregisters the key. Unregistering an absent key is a no-op.
func (g *requestGuard) End(key requestKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, key)
}
