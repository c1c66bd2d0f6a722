// Package buildctx implements BuildContext, the per-build state object
// threaded through every phase of the orchestrator. A BuildContext is
// created once per build, signals BUILD_START on Enter and BUILD_END (plus
// cache cleanup) on Close, and owns the thread-safe accumulators render
// workers append to during the Render phase. Modeled as an explicit object
// (rather than scattering per-build globals) so its lifetime is tied
// one-to-one to a single build and cross-build contamination is structurally
// impossible: discard the BuildContext, and every piece of per-build state
// goes with it.
package buildctx

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/cachereg"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
)

// AccumulatedPageData is the unified per-page record a render worker
// appends once rendering completes: exactly the data the postprocess phase
// needs to build index.json, sitemap.xml, and the search index, so that
// phase never has to re-derive it by walking pages a second time.
type AccumulatedPageData struct {
	SourcePath  string
	URL         string
	Href        string
	Title       string
	Description string
	Excerpt     string
	Tags        []string
	Section     string
	WordCount   int
	ReadingTime int
	Date        time.Time
	Lastmod     time.Time
}

// BuildContext carries state shared between phases of a single build. It is
// created by the orchestrator at BUILD_START and discarded at BUILD_END;
// nothing on it is expected to survive past a single Build() call.
type BuildContext struct {
	// BuildID is a unique identifier for this build, used by the render
	// scheduler's generation counter bookkeeping and surfaced in
	// diagnostics/--explain output.
	BuildID string

	Config *config.SiteConfig
	Cache  *cache.BuildCache
	Prov   *cache.ProvenanceCache

	// Flags mirror the CLI surface.
	Incremental bool
	Verbose     bool
	Quiet       bool
	Strict      bool
	Parallel    bool
	Explain     bool

	// Work items, populated by Discovery (Pages, Assets) and the
	// Incremental Filter (PagesToBuild, AssetsToProcess).
	Pages           []*content.Page
	Assets          []string
	PagesToBuild    []*content.Page
	AssetsToProcess []string

	// Incremental decision state, populated by Phase 4/5.
	AffectedTags     []string
	AffectedSections []string
	ChangedPagePaths []string
	ConfigChanged    bool

	// StartedAt/EndedAt bracket BUILD_START/BUILD_END for duration stats.
	StartedAt time.Time
	EndedAt   time.Time

	registry *cachereg.Registry

	mu               sync.Mutex
	pageContents     map[string]string // source path -> raw content, cached during Discovery
	accumulatedPages []AccumulatedPageData
	pagesByPath      map[string]int // source path -> index into accumulatedPages, for O(1) hybrid lookup
	accumulatedAssets []string

	scopedMu    sync.Mutex
	scopedCache map[string]any
}

// New creates a BuildContext. Call Enter immediately after construction to
// emit BUILD_START; the returned context is not usable for phase work until
// then (Enter is separate from New so the orchestrator can log
// construction failures distinctly from lifecycle-start failures, the same
// two-step split as NewBuilder / Build()).
func New(cfg *config.SiteConfig, buildCache *cache.BuildCache, prov *cache.ProvenanceCache, registry *cachereg.Registry) *BuildContext {
	return &BuildContext{
		BuildID:      uuid.NewString(),
		Config:       cfg,
		Cache:        buildCache,
		Prov:         prov,
		registry:     registry,
		pageContents: make(map[string]string),
		pagesByPath:  make(map[string]int),
		scopedCache:  make(map[string]any),
	}
}

// Logger is the minimal logging surface BuildContext callers need; the
// concrete implementation is logging.Logger, accepted as an interface so
// this package doesn't import internal/logging (phases that log through the
// context would otherwise form a cycle).
type Logger interface {
	Infof(format string, args ...any)
}

// Enter marks the start of the build: records StartedAt and fires
// BUILD_START against the cache registry (clearing any registered cache
// that subscribes to it, e.g. a stale NavTree scaffold from a crashed prior
// process).
func (bc *BuildContext) Enter() {
	bc.StartedAt = time.Now()
	if bc.registry != nil {
		bc.registry.InvalidateForReason(cachereg.ReasonBuildStart)
	}
}

// Close marks the end of the build: records EndedAt, fires BUILD_END
// (clearing build-scoped registry caches), and clears this BuildContext's
// own build-scoped memo cache. Must be called exactly once, via defer
// immediately after Enter, so teardown always runs even on an early return.
func (bc *BuildContext) Close() {
	bc.EndedAt = time.Now()
	if bc.registry != nil {
		bc.registry.InvalidateForReason(cachereg.ReasonBuildEnd)
	}
	bc.scopedMu.Lock()
	bc.scopedCache = make(map[string]any)
	bc.scopedMu.Unlock()
}

// Duration returns the elapsed build time: final once Close has run, the
// running elapsed time before that (the orchestrator reads it while its
// deferred Close is still pending).
func (bc *BuildContext) Duration() time.Duration {
	if bc.EndedAt.IsZero() {
		return time.Since(bc.StartedAt)
	}
	return bc.EndedAt.Sub(bc.StartedAt)
}

// GetCached returns the build-scoped value stored under key, computing it
// via factory on first access. Values live until Close(); access is
// mutex-protected so concurrent render workers can share one expensive
// derivation (e.g. a global template context) without racing the factory.
func (bc *BuildContext) GetCached(key string, factory func() any) any {
	bc.scopedMu.Lock()
	defer bc.scopedMu.Unlock()
	if v, ok := bc.scopedCache[key]; ok {
		return v
	}
	v := factory()
	bc.scopedCache[key] = v
	return v
}

// SetPageContent caches the raw file content read during Discovery under
// sourcePath, so later phases (provenance hashing, lazy parse) never reread
// the file from disk within the same build.
func (bc *BuildContext) SetPageContent(sourcePath, content string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pageContents[sourcePath] = content
}

// PageContent returns the cached raw content for sourcePath, if any.
func (bc *BuildContext) PageContent(sourcePath string) (string, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	c, ok := bc.pageContents[sourcePath]
	return c, ok
}

// AppendPageData records one page's accumulated postprocess data. Safe for
// concurrent use by render workers.
func (bc *BuildContext) AppendPageData(d AccumulatedPageData) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if idx, ok := bc.pagesByPath[d.SourcePath]; ok {
		bc.accumulatedPages[idx] = d
		return
	}
	bc.pagesByPath[d.SourcePath] = len(bc.accumulatedPages)
	bc.accumulatedPages = append(bc.accumulatedPages, d)
}

// AccumulatedPageData returns a defensive copy of every page data record
// appended so far (the "full" mode input for the postprocess phase).
func (bc *BuildContext) AccumulatedPageData() []AccumulatedPageData {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]AccumulatedPageData, len(bc.accumulatedPages))
	copy(out, bc.accumulatedPages)
	return out
}

// LookupPageData returns the accumulated data for sourcePath, if a render
// worker recorded it this build (O(1) via the by-path index). Used by the
// postprocess phase's "hybrid" mode: pages rebuilt this cycle come from
// here, pages left untouched by an incremental build are filled in from
// elsewhere (the persisted cache).
func (bc *BuildContext) LookupPageData(sourcePath string) (AccumulatedPageData, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	idx, ok := bc.pagesByPath[sourcePath]
	if !ok {
		return AccumulatedPageData{}, false
	}
	return bc.accumulatedPages[idx], true
}

// AppendAsset records an asset reference extracted inline from a rendered
// page (e.g. an <img> src), for the postprocess phase's asset bookkeeping.
func (bc *BuildContext) AppendAsset(path string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.accumulatedAssets = append(bc.accumulatedAssets, path)
}

// AccumulatedAssets returns a defensive copy of every asset path recorded
// this build.
func (bc *BuildContext) AccumulatedAssets() []string {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	out := make([]string, len(bc.accumulatedAssets))
	copy(out, bc.accumulatedAssets)
	return out
}
