package fetch

import (
	"context"
	"sync"
	"time"
)

// Source produces a Result for a request. *Fetcher satisfies it.
type Source interface {
	Fetch(ctx context.Context, req Request) Result
}

// Resolver keeps the latest Result of a consumer whose inputs keep changing.
// Every Resolve starts a new attempt with a higher generation; an attempt
// commits only if no newer attempt started meanwhile. Superseded attempts are
// not cancelled on the network, their results are simply dropped.
type Resolver struct {
	source Source

	mu         sync.Mutex
	generation uint64
	disabled   bool
	current    Result
	lastUsed   time.Time
}

// NewResolver builds an enabled Resolver over source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source, lastUsed: time.Now()}
}

// Resolve runs one attempt and reports whether its result was committed.
// When the resolver is disabled the current snapshot is returned uncommitted.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, bool) {
	gen, ok := r.begin()
	if !ok {
		return r.Snapshot(), false
	}
	res := r.source.Fetch(ctx, req)
	return res, r.commit(gen, res)
}

// Snapshot returns the latest committed Result, with Loading set while the
// newest attempt is still running.
func (r *Resolver) Snapshot() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Generation returns the number of attempts started so far.
func (r *Resolver) Generation() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Disable invalidates every outstanding attempt and stops new ones.
func (r *Resolver) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = true
	r.generation++
	r.current.Loading = false
}

// Enable allows attempts again.
func (r *Resolver) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled = false
}

func (r *Resolver) begin() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = time.Now()
	if r.disabled {
		return 0, false
	}
	r.generation++
	r.current.Loading = true
	return r.generation, true
}

func (r *Resolver) commit(gen uint64, res Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return false
	}
	res.Loading = false
	r.current = res
	return true
}

func (r *Resolver) touch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUsed = time.Now()
}

func (r *Resolver) idleSince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUsed
}

// Registry hands out one Resolver per key, such as a profile and resource pair.
type Registry struct {
	maxIdle time.Duration

	mu        sync.Mutex
	resolvers map[string]*Resolver
	lastPrune time.Time
}

// NewRegistry builds a Registry. Resolvers unused for maxIdle are dropped on
// the next Prune.
func NewRegistry(maxIdle time.Duration) *Registry {
	return &Registry{maxIdle: maxIdle, resolvers: make(map[string]*Resolver), lastPrune: time.Now()}
}

// Get returns the Resolver for key, creating it over source when absent. An
// existing resolver keeps the source it was created with.
func (g *Registry) Get(key string, source Source) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now := time.Now(); now.Sub(g.lastPrune) > g.maxIdle {
		g.pruneLocked(now)
	}
	if r, ok := g.resolvers[key]; ok {
		r.touch()
		return r
	}
	r := NewResolver(source)
	g.resolvers[key] = r
	return r
}

// Forget disables and drops the resolvers whose key passes match.
func (g *Registry) Forget(match func(key string) bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, r := range g.resolvers {
		if match(key) {
			r.Disable()
			delete(g.resolvers, key)
		}
	}
}

// Prune drops idle resolvers and returns how many were removed. Get prunes on
// its own once per maxIdle.
func (g *Registry) Prune(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pruneLocked(now)
}

func (g *Registry) pruneLocked(now time.Time) int {
	g.lastPrune = now
	removed := 0
	for key, r := range g.resolvers {
		if now.Sub(r.idleSince()) > g.maxIdle {
			r.Disable()
			delete(g.resolvers, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live resolvers.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.resolvers)
}
