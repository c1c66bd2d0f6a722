// Package nav implements the navigation tree: a per-version
// immutable tree of NavNodes with O(1) URL lookup, a per-page active-trail
// overlay applied without mutating the cached tree, and a thread-safe LRU
// cache with per-key render locks and a scaffold-reuse optimization.
package nav

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/bengal-ssg/bengal/internal/content"
)

// Node is one entry in a NavTree: either a Section, a Page, or both (a
// section whose own index page supplies the node's title/weight). Children
// are sorted by (weight ascending, title ascending) at construction time and
// never re-sorted afterward — the tree is immutable once built.
type Node struct {
	ID       string
	Title    string
	URL      string
	Icon     string
	Weight   int
	Children []*Node
	Depth    int

	Page    *content.Page
	Section *content.Section
	IsIndex bool // true if this node represents a section (its URL is the section's index)
}

// Find performs a linear search of n's subtree for url, returning the first
// match. Tree.Find is the O(1) alternative via flat_nodes; Node.Find
// exists for walking an isolated subtree (e.g. a scaffold root) without a
// flat index.
func (n *Node) Find(url string) *Node {
	if n.URL == url {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(url); found != nil {
			return found
		}
	}
	return nil
}

// Walk calls fn for n and every descendant, depth-first pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Tree is a per-(version) immutable navigation tree. Once returned from
// Cache.Get, its Root, FlatNodes, and URLs must never be mutated — per-page
// active-trail state lives entirely in a Context/Proxy overlay (see
// context.go), never written back here.
type Tree struct {
	Root      *Node
	FlatNodes map[string]*Node // url -> node, every node in the tree, O(1) lookup
	URLs      map[string]bool
	VersionID string
	Versions  []string // every version_id known to the site, for a version switcher
}

// Find looks up url in O(1) via FlatNodes.
func (t *Tree) Find(url string) (*Node, bool) {
	n, ok := t.FlatNodes[url]
	return n, ok
}

// ExcludeFunc reports whether a page should be omitted from navigation
// (e.g. an autodoc-generated page flagged nav-excluded).
type ExcludeFunc func(*content.Page) bool

// Build constructs a Tree for versionID from the root of the site's section
// tree. allVersions is recorded on the tree for a version-switcher UI;
// exclude, if non-nil, filters out pages that should never appear in
// navigation regardless of version.
func Build(siteRoot *content.Section, versionID string, allVersions []string, exclude ExcludeFunc) *Tree {
	t := &Tree{
		FlatNodes: make(map[string]*Node),
		URLs:      make(map[string]bool),
		VersionID: versionID,
		Versions:  allVersions,
	}
	// One collator per Build call: a collate.Collator is not safe for
	// concurrent use, and trees for different versions build in parallel.
	col := collate.New(language.English, collate.IgnoreCase)
	t.Root = buildNode(siteRoot, versionID, exclude, 0, t, col)
	return t
}

// buildNode recursively builds the Node for section, registering every
// included node (section and page alike) into tree.FlatNodes/URLs as it
// goes so the invariant "flat_nodes contains exactly the URLs reachable by
// walk from root" holds by construction rather than by a separate pass.
func buildNode(section *content.Section, versionID string, exclude ExcludeFunc, depth int, tree *Tree, col *collate.Collator) *Node {
	node := &Node{
		Section: section,
		IsIndex: true,
		Depth:   depth,
	}
	if section.IndexPage != nil {
		node.ID = section.IndexPage.SourcePath
		node.Title = section.IndexPage.Title
		node.URL = section.IndexPage.Path
		node.Weight = section.IndexPage.Weight
		node.Page = section.IndexPage
	} else {
		node.ID = "section:" + section.Path
		node.Title = section.Name
		if section.Path == "" {
			node.URL = "/"
		} else {
			node.URL = "/" + section.Path + "/"
		}
	}
	registerNode(tree, node)

	var children []*Node

	for _, p := range section.Pages {
		if !pageMatchesVersion(p, versionID) {
			continue
		}
		if exclude != nil && exclude(p) {
			continue
		}
		pn := &Node{
			ID:     p.SourcePath,
			Title:  p.Title,
			URL:    p.Path,
			Weight: p.Weight,
			Depth:  depth + 1,
			Page:   p,
		}
		registerNode(tree, pn)
		children = append(children, pn)
	}

	for _, sub := range section.SortedSubsections() {
		if !sub.HasContentForVersion(versionID) {
			continue
		}
		children = append(children, buildNode(sub, versionID, exclude, depth+1, tree, col))
	}

	sortChildren(children, col)
	node.Children = children
	return node
}

func registerNode(tree *Tree, n *Node) {
	tree.FlatNodes[n.URL] = n
	tree.URLs[n.URL] = true
}

func pageMatchesVersion(p *content.Page, versionID string) bool {
	if versionID == "" {
		return true
	}
	return p.Version == versionID
}

// sortChildren sorts in place by (weight ascending, title ascending), the
// construction-time order invariant; titles compare case-insensitively with
// locale-aware collation so accented titles interleave naturally instead of
// sorting after "z". An unset weight (0) is not treated specially here
// (unlike content.SortByWeight for page listings) because a nav entry with
// weight 0 should still interleave by title among its siblings rather than
// always sinking to the end.
func sortChildren(nodes []*Node, col *collate.Collator) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Weight != nodes[j].Weight {
			return nodes[i].Weight < nodes[j].Weight
		}
		return col.CompareString(nodes[i].Title, nodes[j].Title) < 0
	})
}
