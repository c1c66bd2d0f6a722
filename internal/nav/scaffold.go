package nav

import (
	"html"
	"strings"
	"sync"
)

// scaffoldKey identifies a nav rendering scope: the
// rendered HTML of a navigation tree is invariant over every page sharing
// this tuple once active-state classes are stripped, so it can be rendered
// once and reused across the whole scope.
type scaffoldKey struct {
	versionID string
	rootURL   string
}

// ScaffoldCache caches the active-trail-independent HTML of a navigation
// tree, keyed by (version_id, root_section_url). Uses the same main-lock +
// per-key-render-lock pattern as Cache so concurrent render workers in
// different scopes never block each other, while two workers in the same
// scope share one render.
type ScaffoldCache struct {
	mu      sync.Mutex
	entries map[scaffoldKey]string

	keyLocksMu sync.Mutex
	keyLocks   map[scaffoldKey]*sync.Mutex
}

// NewScaffoldCache returns an empty ScaffoldCache.
func NewScaffoldCache() *ScaffoldCache {
	return &ScaffoldCache{
		entries:  make(map[scaffoldKey]string),
		keyLocks: make(map[scaffoldKey]*sync.Mutex),
	}
}

// Get returns the cached scaffold HTML for (versionID, rootURL), rendering
// it via render() on a miss. render() receives no per-page state: the
// scaffold must be renderable from the scope alone, with active-trail
// classes applied client-side via data attributes rather than baked in.
func (c *ScaffoldCache) Get(versionID, rootURL string, render func() string) string {
	key := scaffoldKey{versionID: versionID, rootURL: rootURL}

	c.mu.Lock()
	if html, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return html
	}
	c.mu.Unlock()

	c.keyLocksMu.Lock()
	keyLock, ok := c.keyLocks[key]
	if !ok {
		keyLock = &sync.Mutex{}
		c.keyLocks[key] = keyLock
	}
	c.keyLocksMu.Unlock()

	keyLock.Lock()
	defer keyLock.Unlock()

	c.mu.Lock()
	if html, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return html
	}
	c.mu.Unlock()

	html := render()

	c.mu.Lock()
	c.entries[key] = html
	c.mu.Unlock()
	return html
}

// RenderScaffold renders tree as active-trail-independent nested-list HTML.
// Every entry carries a data-nav-url attribute with the node's internal
// path, so the active trail is applied client-side (a small script compares
// data-nav-url against location.pathname) instead of baking per-page state
// into HTML that would otherwise be identical across the whole scope.
func RenderScaffold(tree *Tree, baseURL string) string {
	var b strings.Builder
	b.WriteString(`<nav class="site-nav">`)
	renderScaffoldNodes(&b, tree.Root.Children, baseURL)
	b.WriteString(`</nav>`)
	return b.String()
}

func renderScaffoldNodes(b *strings.Builder, nodes []*Node, baseURL string) {
	if len(nodes) == 0 {
		return
	}
	b.WriteString("<ul>")
	trimmed := strings.TrimRight(baseURL, "/")
	for _, n := range nodes {
		b.WriteString(`<li data-nav-url="`)
		b.WriteString(html.EscapeString(n.URL))
		b.WriteString(`"><a href="`)
		b.WriteString(html.EscapeString(trimmed + n.URL))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(n.Title))
		b.WriteString("</a>")
		renderScaffoldNodes(b, n.Children, baseURL)
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

// Invalidate clears every cached scaffold. Scaffolds have no natural
// per-key invalidation trigger independent of the tree they're derived from
// (a NavTree change always means a scaffold change), so unlike Cache there
// is no single-key variant.
func (c *ScaffoldCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[scaffoldKey]string)
	c.keyLocksMu.Lock()
	c.keyLocks = make(map[scaffoldKey]*sync.Mutex)
	c.keyLocksMu.Unlock()
}
