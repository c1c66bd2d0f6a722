package nav

import "strings"

// Context is the per-page overlay over an immutable Tree: it computes the
// active trail for one page (the URLs from that page up through its section
// ancestors) without ever writing state back onto the cached Tree. Templates
// access nodes exclusively through Proxy, which delegates static fields
// to the underlying Node and derives is_current/is_in_trail/is_expanded from
// this Context.
type Context struct {
	Tree      *Tree
	PageURL   string
	BaseURL   string
	activeSet map[string]bool
}

// NewContext builds a Context for the page at pageURL within tree, applying
// baseURL when Proxy.Href is computed. The active trail is the set of
// ancestor section URLs (plus the page's own URL) walked from pageURL's node
// up to the root.
func NewContext(tree *Tree, pageURL, baseURL string) *Context {
	ctx := &Context{Tree: tree, PageURL: pageURL, BaseURL: baseURL}
	ctx.activeSet = computeActiveTrail(tree, pageURL)
	return ctx
}

// computeActiveTrail finds the path from root to the node at pageURL and
// returns the set of URLs along it. If pageURL isn't in the tree (e.g. a
// taxonomy or search page not represented in content navigation), the trail
// is empty — every proxy reports is_in_trail=false, which is the correct
// "no highlighted section" behavior rather than an error.
func computeActiveTrail(tree *Tree, pageURL string) map[string]bool {
	trail := map[string]bool{}
	var find func(n *Node, path []string) bool
	find = func(n *Node, path []string) bool {
		path = append(path, n.URL)
		if n.URL == pageURL {
			for _, u := range path {
				trail[u] = true
			}
			return true
		}
		for _, c := range n.Children {
			if find(c, path) {
				return true
			}
		}
		return false
	}
	if tree.Root != nil {
		find(tree.Root, nil)
	}
	return trail
}

// Proxy wraps a Node for template access, exposing static fields unchanged
// and computing per-page state (IsCurrent, IsInTrail, IsExpanded) from the
// owning Context. Proxies are created on demand and never cached beyond a
// single page render.
type Proxy struct {
	node *Node
	ctx  *Context
}

// Node wraps n for rendering within ctx.
func (ctx *Context) Node(n *Node) *Proxy {
	return &Proxy{node: n, ctx: ctx}
}

// Root returns a Proxy for the tree's root node.
func (ctx *Context) Root() *Proxy {
	return ctx.Node(ctx.Tree.Root)
}

func (p *Proxy) ID() string     { return p.node.ID }
func (p *Proxy) Title() string  { return p.node.Title }
func (p *Proxy) Icon() string   { return p.node.Icon }
func (p *Proxy) Weight() int    { return p.node.Weight }
func (p *Proxy) Depth() int     { return p.node.Depth }
func (p *Proxy) IsIndex() bool  { return p.node.IsIndex }

// Path is the internal, baseurl-free URL, matching the node's canonical key
// in Tree.FlatNodes/URLRegistry.
func (p *Proxy) Path() string { return p.node.URL }

// Href is the public, baseurl-applied URL used in emitted HTML. Href ==
// Path when the context's BaseURL is "" or only slashes (e.g. "/");
// otherwise the two differ.
func (p *Proxy) Href() string {
	trimmed := strings.TrimRight(p.ctx.BaseURL, "/")
	if trimmed == "" {
		return p.node.URL
	}
	return trimmed + p.node.URL
}

// Children wraps every child Node in a Proxy bound to the same Context.
func (p *Proxy) Children() []*Proxy {
	out := make([]*Proxy, len(p.node.Children))
	for i, c := range p.node.Children {
		out[i] = p.ctx.Node(c)
	}
	return out
}

// IsCurrent reports whether this node is the page currently being rendered.
func (p *Proxy) IsCurrent() bool {
	return p.node.URL == p.ctx.PageURL
}

// IsInTrail reports whether this node lies on the active trail from the
// root down to the page currently being rendered (true for every section
// ancestor of the current page, and for the page itself).
func (p *Proxy) IsInTrail() bool {
	return p.ctx.activeSet[p.node.URL]
}

// IsExpanded reports whether this node's children should be shown expanded
// in a collapsible nav widget: true if the node is on the active trail (an
// ancestor of, or equal to, the current page) — children off the trail stay
// collapsed by default.
func (p *Proxy) IsExpanded() bool {
	return p.IsInTrail()
}
