package nav

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bengal-ssg/bengal/internal/config"
)

// MenuEntry is one node in a built menu tree.
type MenuEntry struct {
	Identifier string
	Name       string
	URL        string
	Weight     int
	Children   []*MenuEntry
}

// MenuCycleError reports that the parent/child menu graph contains a cycle.
// The diagnostic lists the identifiers along the cycle in walk order.
type MenuCycleError struct {
	Cycle []string
}

func (e *MenuCycleError) Error() string {
	return fmt.Sprintf("menu cycle: %s", strings.Join(e.Cycle, " -> "))
}

// BuildMenu assembles a flat []config.MenuItem into a tree, nesting each
// entry under the entry named by its Parent identifier. Entries with no
// Parent (or a Parent that names no entry) become roots. Children at every
// level are ordered by (weight ascending, name ascending), so acyclic inputs
// always produce a deterministic tree. A parent/child cycle is rejected with
// a *MenuCycleError naming the cycle.
func BuildMenu(items []config.MenuItem) ([]*MenuEntry, error) {
	entries := make(map[string]*MenuEntry, len(items))
	parents := make(map[string]string, len(items))
	order := make([]string, 0, len(items))

	for _, item := range items {
		id := item.Identifier
		if id == "" {
			id = item.Name
		}
		entries[id] = &MenuEntry{
			Identifier: id,
			Name:       item.Name,
			URL:        item.URL,
			Weight:     item.Weight,
		}
		parents[id] = item.Parent
		order = append(order, id)
	}

	if cycle := findMenuCycle(order, parents, entries); cycle != nil {
		return nil, &MenuCycleError{Cycle: cycle}
	}

	var roots []*MenuEntry
	for _, id := range order {
		e := entries[id]
		parent, ok := entries[parents[id]]
		if parents[id] == "" || !ok {
			roots = append(roots, e)
			continue
		}
		parent.Children = append(parent.Children, e)
	}

	sortMenu(roots)
	for _, e := range entries {
		sortMenu(e.Children)
	}
	return roots, nil
}

// findMenuCycle walks each entry's parent chain with a backtracking DFS,
// tracking only the current path (O(depth), never a copied set per call).
// Returns the identifiers along the first cycle found, or nil.
func findMenuCycle(order []string, parents map[string]string, entries map[string]*MenuEntry) []string {
	const (
		unvisited = 0
		onPath    = 1
		done      = 2
	)
	state := make(map[string]int, len(order))

	for _, start := range order {
		if state[start] != unvisited {
			continue
		}
		var path []string
		id := start
		for id != "" {
			if _, known := entries[id]; !known {
				break // parent names no entry; chain ends at a root
			}
			if state[id] == done {
				break // joins an already-verified chain
			}
			if state[id] == onPath {
				// Found the cycle: trim path to the repeated entry.
				for i, p := range path {
					if p == id {
						return append(path[i:], id)
					}
				}
			}
			state[id] = onPath
			path = append(path, id)
			id = parents[id]
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

func sortMenu(entries []*MenuEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Weight != entries[j].Weight {
			return entries[i].Weight < entries[j].Weight
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
