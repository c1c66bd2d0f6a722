// Package cachereg implements the centralized cache registry: every
// long-lived in-process cache (NavTree cache, template-function memo, parser
// cache, thread-local render pipelines, ...) registers a clear-function and
// the set of InvalidationReasons it subscribes to, instead of being cleared
// by ad-hoc calls scattered across the build. Grounded in the same
// "register a clear-function, invalidate by reason" shape used by the
// pack's delta/state stores for long-lived service caches, generalized here
// to a batch-build CLI.
package cachereg

import "fmt"

// InvalidationReason is a trigger that may cause one or more registered
// caches to clear.
type InvalidationReason string

const (
	ReasonBuildStart       InvalidationReason = "BUILD_START"
	ReasonBuildEnd         InvalidationReason = "BUILD_END"
	ReasonConfigChanged    InvalidationReason = "CONFIG_CHANGED"
	ReasonTemplateChange   InvalidationReason = "TEMPLATE_CHANGE"
	ReasonStructuralChange InvalidationReason = "STRUCTURAL_CHANGE"
	ReasonFullRebuild      InvalidationReason = "FULL_REBUILD"
	ReasonTestCleanup      InvalidationReason = "TEST_CLEANUP"
)

// entry is one registered cache: its clear function, the reasons it
// subscribes to, and the names of caches it depends on (InvalidateWithDependents
// on any of those also clears this entry, in topological order).
type entry struct {
	name    string
	clear   func()
	reasons map[InvalidationReason]bool
	deps    []string // names of caches this one depends on
}

// Registry is the process-wide table of registered caches. It is not itself
// a cache: it only knows how to clear other caches on command.
type Registry struct {
	entries map[string]*entry
	order   []string // registration order, for deterministic iteration
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a cache under name with the given clear function, the
// reasons that should clear it, and (optionally) the names of caches it
// depends on. Registering the same name twice overwrites the prior
// registration (used by tests that rebuild a registry between cases).
func (r *Registry) Register(name string, clear func(), reasons []InvalidationReason, deps ...string) {
	reasonSet := make(map[InvalidationReason]bool, len(reasons))
	for _, rs := range reasons {
		reasonSet[rs] = true
	}
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = &entry{name: name, clear: clear, reasons: reasonSet, deps: deps}
}

// InvalidateForReason clears every registered cache subscribed to reason, in
// registration order.
func (r *Registry) InvalidateForReason(reason InvalidationReason) {
	for _, name := range r.order {
		e := r.entries[name]
		if e.reasons[reason] {
			e.clear()
		}
	}
}

// InvalidateWithDependents clears the named cache and every cache that
// (transitively) declares it as a dependency, in topological order (the
// named cache's dependents are cleared only after all of their own upstream
// dependents have cleared). Panics if name is not registered; returns an
// error if the dependency graph contains a cycle reachable from name
// (registration-time would be nicer but Register doesn't know the full
// graph until every cache has registered, so the cycle check happens here).
func (r *Registry) InvalidateWithDependents(name string, reason InvalidationReason) error {
	if _, ok := r.entries[name]; !ok {
		panic(fmt.Sprintf("cachereg: invalidate of unregistered cache %q", name))
	}

	// dependents[x] = caches that list x as a dependency.
	dependents := make(map[string][]string)
	for _, n := range r.order {
		for _, d := range r.entries[n].deps {
			dependents[d] = append(dependents[d], n)
		}
	}

	// BFS/topological walk from name outward through dependents, detecting
	// cycles via a recursion-stack style visited set.
	var order []string
	visiting := map[string]bool{}
	visited := map[string]bool{}

	var visit func(n string) error
	visit = func(n string) error {
		if visited[n] {
			return nil
		}
		if visiting[n] {
			return fmt.Errorf("cachereg: dependency cycle detected at %q", n)
		}
		visiting[n] = true
		for _, dep := range dependents[n] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[n] = false
		visited[n] = true
		order = append(order, n)
		return nil
	}

	if err := visit(name); err != nil {
		return err
	}

	// order is post-order from leaves-of-dependents outward; reverse so name
	// clears first and its furthest dependents clear last.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	for _, n := range order {
		r.entries[n].clear()
	}
	return nil
}

// Names returns the registered cache names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
