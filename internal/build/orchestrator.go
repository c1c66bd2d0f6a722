package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/bengal-ssg/bengal/internal/buildctx"
	"github.com/bengal-ssg/bengal/internal/builderr"
	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/cachereg"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/image"
	"github.com/bengal-ssg/bengal/internal/incremental"
	"github.com/bengal-ssg/bengal/internal/logging"
	"github.com/bengal-ssg/bengal/internal/nav"
	"github.com/bengal-ssg/bengal/internal/render"
	tmpl "github.com/bengal-ssg/bengal/internal/template"
	"github.com/bengal-ssg/bengal/internal/urlregistry"
)

// bengalDirName holds the persisted caches under the project root.
const bengalDirName = ".bengal"

// RunOptions controls one orchestrated build on top of the long-lived
// BuildOptions the Orchestrator was constructed with.
type RunOptions struct {
	// Incremental requests an incremental build; the orchestrator may still
	// decide on a full rebuild (config change, empty output dir, ...).
	Incremental bool
	// Explain records the filter decision trail on the result for the
	// --explain CLI surface.
	Explain bool
	// Strict aborts on the first template or rendering error.
	Strict bool
	// Parallel enables the render worker pool; when false every page
	// renders on the orchestrator goroutine (--sequential).
	Parallel bool
	// ConfigPath, when set, is fingerprinted so a config edit forces a full
	// rebuild.
	ConfigPath string
	// ForcedChanged are sources the file watcher reports as edited; they
	// bypass all change detection and render with priority.
	ForcedChanged map[string]bool
	// NavChanged are sources whose navigation block must re-render even
	// though their own content is unchanged.
	NavChanged map[string]bool
}

// Orchestrator runs the phased build pipeline: a data-driven sequence
// of phases sharing one buildctx.BuildContext per build, with long-lived
// caches (NavTree, scaffold, render pipelines) owned here so they survive
// across builds in serve mode and are invalidated through the central cache
// registry rather than ad-hoc calls.
type Orchestrator struct {
	config *config.SiteConfig
	opts   BuildOptions

	log        *logging.Logger
	registry   *cachereg.Registry
	navCache   *nav.Cache
	scaffolds  *nav.ScaffoldCache
	generation render.Generation
	active     render.ActiveRenders

	// pipelines holds reusable render pipelines across builds; a worker
	// that pulls one from a stale generation discards it and builds fresh.
	pipelinesMu sync.Mutex
	pipelines   []*renderPipeline

	// images is the responsive-image processor, created once when
	// images.enabled is set; assetSink points the markdown renderer's
	// image callback at the current build's asset accumulator. Written
	// only between builds (before any worker runs), read by pipelines.
	images    *image.Processor
	assetSink func(src string)
}

// renderPipeline is the per-worker render state: a markdown renderer bound
// to the generation it was created under. Workers own one pipeline for the
// duration of a build; across builds (serve mode) a pipeline is reused only
// while its generation is current.
type renderPipeline struct {
	gen      int64
	markdown *content.MarkdownRenderer
}

// NewOrchestrator creates an Orchestrator and registers its long-lived
// caches with the central registry. The scaffold cache declares the NavTree
// cache as a dependency: invalidating "navtree" with dependents clears the
// scaffolds too, since scaffold HTML is derived from the tree.
func NewOrchestrator(cfg *config.SiteConfig, opts BuildOptions) *Orchestrator {
	o := &Orchestrator{
		config:    cfg,
		opts:      opts,
		log:       logging.New(os.Stderr, logging.LevelFor(opts.Verbose, false)),
		registry:  cachereg.New(),
		navCache:  nav.NewCache(0),
		scaffolds: nav.NewScaffoldCache(),
	}

	o.registry.Register("navtree", func() { o.navCache.Invalidate("") },
		[]cachereg.InvalidationReason{
			cachereg.ReasonConfigChanged,
			cachereg.ReasonStructuralChange,
			cachereg.ReasonFullRebuild,
			cachereg.ReasonTestCleanup,
		})
	o.registry.Register("nav-scaffold", func() { o.scaffolds.Invalidate() },
		[]cachereg.InvalidationReason{
			cachereg.ReasonConfigChanged,
			cachereg.ReasonTemplateChange,
			cachereg.ReasonStructuralChange,
			cachereg.ReasonFullRebuild,
			cachereg.ReasonTestCleanup,
		}, "navtree")
	o.registry.Register("render-pipelines", o.clearPipelines,
		[]cachereg.InvalidationReason{
			cachereg.ReasonTemplateChange,
			cachereg.ReasonFullRebuild,
			cachereg.ReasonTestCleanup,
		})

	return o
}

// Registry exposes the central cache registry (tests, serve-mode hooks).
func (o *Orchestrator) Registry() *cachereg.Registry { return o.registry }

func (o *Orchestrator) clearPipelines() {
	o.pipelinesMu.Lock()
	o.pipelines = nil
	o.pipelinesMu.Unlock()
}

// getPipeline hands a worker a pipeline for the current generation,
// creating one when the pool is empty or the pooled pipeline is stale.
func (o *Orchestrator) getPipeline() *renderPipeline {
	gen := o.generation.Current()
	o.pipelinesMu.Lock()
	for len(o.pipelines) > 0 {
		p := o.pipelines[len(o.pipelines)-1]
		o.pipelines = o.pipelines[:len(o.pipelines)-1]
		if p.gen == gen {
			o.pipelinesMu.Unlock()
			return p
		}
		// Stale generation: templates or config changed since this pipeline
		// was built. Drop it and keep looking.
	}
	o.pipelinesMu.Unlock()
	ext := image.NewResponsiveImageExtension(o.images, "", o.assetSink)
	return &renderPipeline{gen: gen, markdown: content.NewMarkdownRendererWith(ext)}
}

func (o *Orchestrator) putPipeline(p *renderPipeline) {
	if p.gen != o.generation.Current() {
		return
	}
	o.pipelinesMu.Lock()
	o.pipelines = append(o.pipelines, p)
	o.pipelinesMu.Unlock()
}

// cacheUpdate is one page's deferred BuildCache mutation, applied
// single-threaded in postprocess: the render phase treats BuildCache as
// read-only during rendering.
type cacheUpdate struct {
	source       string
	outputPath   string // absolute
	templateFile string
	parsed       cache.ParsedContent
}

// Run executes the full phased pipeline once and returns the build result.
func (o *Orchestrator) Run(runOpts RunOptions) (*OrchestratorResult, error) {
	// ---- Phase 0: Setup -------------------------------------------------
	projectRoot := o.opts.ProjectRoot
	if projectRoot == "" {
		var err error
		projectRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determining project root: %w", err)
		}
	}
	outputDir := o.opts.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(projectRoot, "public")
	}
	if !filepath.IsAbs(outputDir) {
		outputDir = filepath.Join(projectRoot, outputDir)
	}
	contentDir := filepath.Join(projectRoot, "content")
	dataDir := filepath.Join(projectRoot, "data")
	baseURL := o.opts.BaseURL
	if baseURL == "" {
		baseURL = o.config.BaseURL
	}

	bengalDir := filepath.Join(projectRoot, bengalDirName)
	cachePath := filepath.Join(bengalDir, "cache.json")
	if err := cache.MigrateBuildCache(cachePath, filepath.Join(outputDir, ".bengal-cache.json")); err != nil {
		return nil, fmt.Errorf("migrating build cache: %w", err)
	}
	buildCache, err := cache.LoadBuildCache(cachePath)
	if err != nil {
		// A corrupt cache degrades to a full rebuild, never a failed build.
		buildCache = cache.NewBuildCache()
	}
	prov, err := cache.LoadProvenanceCache(filepath.Join(bengalDir, "provenance"))
	if err != nil {
		prov = cache.NewProvenanceCache()
	}
	pageMetaPath := filepath.Join(bengalDir, "page_metadata.json")
	pageMeta, err := cache.LoadPageMetadata(pageMetaPath)
	if err != nil {
		pageMeta = cache.NewPageMetadata()
	}

	ctx := buildctx.New(o.config, buildCache, prov, o.registry)
	ctx.Incremental = runOpts.Incremental
	ctx.Verbose = o.opts.Verbose
	ctx.Strict = runOpts.Strict
	ctx.Parallel = runOpts.Parallel
	ctx.Explain = runOpts.Explain
	ctx.Enter()
	defer ctx.Close()

	o.generation.Next()

	result := &OrchestratorResult{BuildResult: &BuildResult{}}
	registry := urlregistry.New()
	registry.LoadClaims(claimsFromCache(buildCache.URLClaims))

	// ---- Phase 1: Assets ------------------------------------------------
	themeName := o.config.Theme
	if themeName == "" {
		themeName = "default"
	}
	themePath := filepath.Join(projectRoot, "themes", themeName)
	assets := discoverAssets(filepath.Join(themePath, "static"), filepath.Join(projectRoot, "static"))
	ctx.Assets = assets

	// Responsive images: process static image trees once up front so render
	// workers find variants by URL; the markdown pipelines record every
	// image a rendered page actually embeds into the context's asset
	// accumulator.
	o.assetSink = ctx.AppendAsset
	if o.config.Images.Enabled && o.images == nil {
		o.images = image.NewProcessor(o.config.Images, projectRoot)
	}
	if o.images != nil {
		for _, dir := range []string{filepath.Join(projectRoot, "static", "images"), filepath.Join(themePath, "static", "images")} {
			if info, err := os.Stat(dir); err != nil || !info.IsDir() {
				continue
			}
			if err := o.images.ProcessDir(dir, filepath.Join(outputDir, "images"), "/images"); err != nil {
				o.log.Warnf("image processing: %v", err)
			}
		}
	}

	// ---- Phase 1.5: Template validation ---------------------------------
	engine, err := tmpl.NewEngine(themePath, filepath.Join(projectRoot, "layouts"))
	if err != nil {
		return nil, &builderr.Error{Kind: builderr.KindTemplate, Err: err}
	}
	if runOpts.Strict {
		if errs := engine.Validate(); len(errs) > 0 {
			return nil, &builderr.Error{Kind: builderr.KindTemplate, Err: errs[0]}
		}
	}

	// ---- Phase 2: Discovery ---------------------------------------------
	pages, err := content.Discover(contentDir, o.config)
	if err != nil {
		return nil, &builderr.Error{Kind: builderr.KindDiscovery, Err: err}
	}
	dataFiles, err := content.LoadDataFiles(dataDir)
	if err != nil {
		return nil, &builderr.Error{Kind: builderr.KindDiscovery, Err: err}
	}
	if !o.opts.IncludeDrafts {
		pages = content.FilterDrafts(pages)
	}
	if !o.opts.IncludeFuture {
		pages = content.FilterFuture(pages)
	}
	if !o.opts.IncludeExpired {
		pages = content.FilterExpired(pages)
	}
	if !hasHomePage(pages) {
		pages = append(pages, &content.Page{Type: content.PageTypeHome, URL: "/"})
	}

	// Menu graph: a cycle is a fatal semantic error, caught before any page
	// renders.
	if _, err := nav.BuildMenu(o.config.Menu.Main); err != nil {
		return nil, &builderr.Error{Kind: builderr.KindMenuCycle, Err: err}
	}

	// Taxonomy virtual pages join the page set before URLs resolve.
	if o.config.Taxonomies != nil {
		// Config maps singular -> plural; BuildTaxonomies takes plural -> singular.
		byPlural := make(map[string]string, len(o.config.Taxonomies))
		for singular, plural := range o.config.Taxonomies {
			byPlural[plural] = singular
		}
		taxonomies := content.BuildTaxonomies(pages, byPlural)
		pages = append(pages, content.GenerateTaxonomyPages(taxonomies)...)
	}
	content.ResolveURLs(pages, baseURL)
	content.SortByDate(pages, false)
	setSectionNavigation(pages)
	siteRoot := content.BuildSectionTree(contentPagesOnly(pages))

	// Cache raw contents on the context so later phases (provenance hashing)
	// never reread files this build.
	for _, p := range pages {
		if p.RawContent != "" {
			ctx.SetPageContent(p.SourcePath, p.RawContent)
		}
	}
	ctx.Pages = pages

	// Cross-version dependency edges are rebuilt from scratch each build.
	buildCache.CrossVersionDependencies = collectCrossVersionEdges(pages)

	// URL ownership: every producer claims its URLs up front, single-
	// threaded, before the render phase reads the registry.
	if err := claimPageURLs(registry, pages); err != nil {
		return nil, &builderr.Error{Kind: builderr.KindURL, Err: err}
	}

	// ---- Phase 3: Cache metadata ----------------------------------------
	current := make(map[string]bool, len(pages))
	for _, p := range pages {
		if p.SourcePath != "" {
			current[p.SourcePath] = true
		} else {
			current["virtual:"+p.URL] = true
		}
	}
	for src := range pageMeta.Pages {
		if !current[src] {
			pageMeta.Forget(src)
		}
	}

	// ---- Phase 4: Config check + deleted-source cleanup -----------------
	configChanged := o.checkConfigChanged(buildCache, runOpts.ConfigPath)
	if configChanged {
		o.registry.InvalidateForReason(cachereg.ReasonConfigChanged)
	}
	cleanup := incremental.CleanDeletedSources(buildCache, prov, current, outputDir)
	result.CleanedOutputs = cleanup.RemovedOutputs
	for _, cerr := range cleanup.Errors {
		o.log.Warnf("cleanup: %v", cerr)
	}
	if len(cleanup.RemovedOutputs) > 0 {
		o.log.Debugf("cleanup: removed %d orphan output(s)", len(cleanup.RemovedOutputs))
	}

	// ---- Phase 5: Incremental filter ------------------------------------
	templateFiles := templatePaths(engine)
	dataFilePaths := listDataFiles(dataDir)

	resolver := func(p *content.Page) (string, []string) {
		// html/template reports no INTROSPECTION capability, so the include
		// set stays empty; template identity alone still catches layout
		// switches.
		return engine.Resolve(p.Type.String(), p.Section, p.Layout), nil
	}
	legacy := &incremental.LegacyDetector{Cache: buildCache, Root: contentDir}
	provFilter := incremental.NewProvenanceFilter(prov, buildCache, resolver)

	var detector incremental.Detector
	useProvenance := o.config.Build.UseUnifiedChangeDetector
	switch {
	case o.config.Build.ShadowMode:
		detector = incremental.NewShadowDetector(legacy, provFilter)
		useProvenance = false
	case useProvenance:
		detector = provFilter
	default:
		detector = legacy
	}

	incrementalEnabled := runOpts.Incremental && !configChanged
	result.ConfigCheck = ConfigCheckResult{
		ProjectRoot:   projectRoot,
		OutputDir:     outputDir,
		ContentDir:    contentDir,
		BaseURL:       baseURL,
		ConfigChanged: configChanged,
		Incremental:   incrementalEnabled,
	}
	filter := incremental.Decide(incrementalEnabled, incremental.Options{
		Pages:         pages,
		Assets:        assets,
		Templates:     templateFiles,
		DataFiles:     dataFilePaths,
		ForcedChanged: runOpts.ForcedChanged,
		NavChanged:    runOpts.NavChanged,
		Detector:      detector,
		OutputDir:     outputDir,
		DetectChangedAssets: func(candidates []string) []string {
			var changed []string
			for _, a := range candidates {
				next, err := cache.FingerprintFile(a)
				if err != nil {
					continue
				}
				prev, ok := buildCache.FileFingerprints[a]
				if !ok || prev.Changed(next) {
					changed = append(changed, a)
				}
			}
			return changed
		},
		FingerprintedAssetChanged: func(changed []string) bool {
			for _, a := range changed {
				ext := filepath.Ext(a)
				if ext == ".css" || ext == ".js" {
					return true
				}
			}
			return false
		},
		VersionScope: o.config.VersionScope,
	})
	result.Filter = filter
	ctx.ConfigChanged = configChanged
	ctx.ChangedPagePaths = filter.Pages
	if filter.FullRebuild {
		o.registry.InvalidateForReason(cachereg.ReasonFullRebuild)
	}

	o.log.Debugf("filter: %d page(s), %d asset(s), full=%v skip=%v",
		len(filter.Pages), len(filter.Assets), filter.FullRebuild, filter.Skip)

	if filter.Skip {
		result.Skipped = true
		o.saveCaches(buildCache, cachePath, prov, bengalDir, pageMeta, pageMetaPath, registry)
		result.Duration = ctx.Duration()
		return result, nil
	}

	bySource := make(map[string]*content.Page, len(pages))
	for _, p := range pages {
		bySource[p.SourcePath] = p
	}
	var pagesToBuild []*content.Page
	for _, src := range filter.Pages {
		if p, ok := bySource[src]; ok {
			pagesToBuild = append(pagesToBuild, p)
		}
	}

	// Virtual pages carry no source path, so the detectors never mark them;
	// schedule them here: everything on a full rebuild, taxonomy pages when
	// one of their terms was affected by a member change.
	affectedTags := make(map[string]bool, len(filter.AffectedTags))
	for _, tag := range filter.AffectedTags {
		affectedTags[tag] = true
	}
	for _, p := range pages {
		if p.SourcePath != "" {
			continue
		}
		switch {
		case filter.FullRebuild:
			pagesToBuild = append(pagesToBuild, p)
		case p.Type == content.PageTypeTaxonomy:
			if term, _ := p.Params["term"].(string); affectedTags[term] {
				pagesToBuild = append(pagesToBuild, p)
			}
		case p.Type == content.PageTypeTaxonomyList:
			if len(filter.AffectedTags) > 0 {
				pagesToBuild = append(pagesToBuild, p)
			}
		}
	}

	ctx.PagesToBuild = pagesToBuild
	ctx.AffectedTags = filter.AffectedTags
	ctx.AssetsToProcess = filter.Assets

	// ---- Phase 6: Render ------------------------------------------------
	renderErrs := builderr.NewAggregator("render", 0)
	updates, err := o.renderPhase(ctx, renderErrs, runOpts, engine, pages, pagesToBuild, outputDir, baseURL, dataFiles, siteRoot)
	if err != nil {
		o.saveCaches(buildCache, cachePath, prov, bengalDir, pageMeta, pageMetaPath, registry)
		return nil, err
	}
	result.PagesRendered = len(pagesToBuild)

	// ---- Phase 7: Postprocess -------------------------------------------
	o.applyCacheUpdates(buildCache, pageMeta, ctx, updates, contentDir, templateFiles, dataFilePaths, pages)

	// Provenance advances only for pages that actually rendered, and only
	// after their dependency edges were recorded above — the stored
	// combined hash must match what the next build's Detect computes, or an
	// unchanged page would spuriously rebuild once.
	if useProvenance {
		for _, u := range updates {
			if strings.HasPrefix(u.source, "virtual:") {
				continue
			}
			if p, ok := bySource[u.source]; ok {
				provFilter.Record(p)
			}
		}
	}

	if filter.FullRebuild || len(filter.Assets) > 0 {
		copied, err := copyStaticAssets(themePath, projectRoot, outputDir)
		if err != nil {
			renderErrs.Add(&builderr.Error{Kind: builderr.KindIO, Err: err})
		}
		result.FilesCopied += copied

		staticRoots := []string{filepath.Join(themePath, "static"), filepath.Join(projectRoot, "static")}
		processed, err := ProcessAssets(assets, staticRoots, outputDir, filter.Assets, filter.FullRebuild)
		if err != nil {
			renderErrs.Add(&builderr.Error{Kind: builderr.KindIO, Err: err})
		}
		result.FilesCopied += len(processed)
	}

	records := assembleIndexRecords(ctx, pages, pageMeta)
	if err := writeAncillaryOutputs(o.config, outputDir, baseURL, pages, records, result.BuildResult); err != nil {
		return nil, err
	}

	if _, err := WriteSiteIndex(outputDir, BuildSiteIndex(o.config, records)); err != nil {
		return nil, err
	}
	result.StaticFiles++

	// Per-page JSON output format: a sibling index.json next to each
	// rebuilt page's HTML, holding the same record the site index carries.
	if slices.Contains(o.config.OutputFormats.Page, "json") {
		for _, p := range pagesToBuild {
			if p.URL == "/" {
				continue // the site-wide index.json owns the output root
			}
			rec, ok := ctx.LookupPageData(p.SourcePath)
			if !ok {
				rec = pageDataRecord(p)
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				continue
			}
			dest := filepath.Join(outputDir, filepath.Dir(URLToOutputPath(p.URL)), "index.json")
			if err := writeFileAtomic(dest, data); err != nil {
				renderErrs.Add(&builderr.Error{Kind: builderr.KindIO, Source: p.SourcePath, Err: err})
			}
		}
	}

	// ---- Phase 8: Health check ------------------------------------------
	healthErrs := o.healthCheck(outputDir, pagesToBuild)
	for _, he := range healthErrs {
		renderErrs.Add(he)
	}

	// ---- Phase 9: Teardown ----------------------------------------------
	o.saveCaches(buildCache, cachePath, prov, bengalDir, pageMeta, pageMetaPath, registry)

	if renderErrs.Count() > 0 {
		o.log.Infof("%s", renderErrs.Summary())
	}
	for _, e := range renderErrs.Errors() {
		result.Errors = append(result.Errors, e.Error())
	}
	result.FilesWritten = len(pagesToBuild)
	for _, p := range pagesToBuild {
		result.Pages = append(result.Pages, p.URL)
	}
	if size, err := DirSize(outputDir); err == nil {
		result.OutputSize = size
	}
	result.Duration = ctx.Duration()
	return result, nil
}

// renderPhase runs the parallel render scheduler: ordered work queue,
// per-worker pipelines keyed to the build generation, write-behind I/O, and
// error aggregation. Returns the deferred cache updates for postprocess.
func (o *Orchestrator) renderPhase(
	ctx *buildctx.BuildContext,
	errs *builderr.Aggregator,
	runOpts RunOptions,
	engine *tmpl.Engine,
	pages, pagesToBuild []*content.Page,
	outputDir, baseURL string,
	dataFiles map[string]any,
	siteRoot *content.Section,
) ([]cacheUpdate, error) {
	// Markdown pass: every page needs Content for the site context, feeds,
	// and search index, but unchanged pages reuse the parsed-content cache
	// instead of re-rendering.
	rebuild := make(map[string]bool, len(pagesToBuild))
	for _, p := range pagesToBuild {
		rebuild[p.SourcePath] = true
	}
	markdownWorkers := render.OptimalWorkers(len(pages), o.config.Build.MaxWorkers)
	if !runOpts.Parallel {
		markdownWorkers = 1
	}
	err := renderParallel(pages, markdownWorkers, func(p *content.Page) error {
		pipe := o.getPipeline()
		defer o.putPipeline(pipe)

		if !rebuild[p.SourcePath] {
			if cached, ok := ctx.Cache.ParsedContent[p.SourcePath]; ok {
				p.Content = cached.HTML
				p.TableOfContents = cached.TOC
				return nil
			}
		}
		htmlContent, tocHTML, err := pipe.markdown.RenderWithTOC([]byte(p.RawContent))
		if err != nil {
			return fmt.Errorf("rendering markdown for %s: %w", p.SourcePath, err)
		}
		p.Content = string(htmlContent)
		p.TableOfContents = string(tocHTML)
		return nil
	})
	if err != nil {
		return nil, &builderr.Error{Kind: builderr.KindRendering, Err: err}
	}
	for _, p := range pages {
		plainText := content.StripHTMLTags(p.Content)
		if p.WordCount == 0 {
			p.WordCount = content.CalculateWordCount(plainText)
		}
		if p.ReadingTime == 0 {
			p.ReadingTime = content.CalculateReadingTime(plainText)
		}
		if p.Summary == "" {
			p.Summary = content.GenerateSummary(p.RawContent, p.Content, 300)
		}
	}

	// Template contexts are derived once per build, not per page; the
	// build-scoped cache keeps the derivation shared across workers.
	bb := &Builder{config: o.config, options: o.opts}
	siteCtx := ctx.GetCached("site-context", func() any {
		tags, categories := buildTaxonomyMaps(pages)
		return bb.buildSiteContext(pages, tags, categories, baseURL, dataFiles)
	}).(*tmpl.SiteContext)
	engine.BindSite(siteCtx)
	pageContexts := bb.buildPageContexts(pages, siteCtx)

	// One NavTree per version scope, pulled through the LRU so serve-mode
	// rebuilds reuse trees whose inputs didn't change.
	siteFP := siteFingerprint(pages)
	versions := o.config.Versioning.Versions
	navTreeFor := func(version string) *nav.Tree {
		return o.navCache.Get(siteFP, version, func() *nav.Tree {
			return nav.Build(siteRoot, version, versions, nil)
		})
	}

	ordered := orderPages(pagesToBuild, runOpts.ForcedChanged, o.config.Build.ComplexityOrdering, o.config.Build.MaxWorkers)

	var collector *render.WriteBehindCollector
	if o.config.Build.WriteBehind {
		relPaths := make([]string, 0, len(ordered))
		for _, p := range ordered {
			relPaths = append(relPaths, URLToOutputPath(p.URL))
		}
		collector = render.NewWriteBehindCollector(outputDir, 2, 64)
		if err := collector.PrecreateDirectories(relPaths); err != nil {
			collector.Close()
			return nil, &builderr.Error{Kind: builderr.KindIO, Err: err}
		}
	}

	var mu sync.Mutex
	var updates []cacheUpdate

	renderOne := func(p *content.Page) error {
		o.active.Enter()
		defer o.active.Leave()

		shared := pageContexts[p]
		if shared == nil {
			return fmt.Errorf("no context for page %s", p.SourcePath)
		}
		// Work on a shallow copy: contexts are cross-linked (PrevPage/
		// NextPage point at other pages' contexts), so mutating the shared
		// instance from a worker would race with a neighbor's render.
		pageCopy := *shared
		pageCtx := &pageCopy

		tree := navTreeFor(p.Version)
		navCtx := nav.NewContext(tree, p.Path, baseURL)
		pageCtx.Nav = navCtx.Root()
		pageCtx.NavScaffold = template.HTML(o.scaffolds.Get(p.Version, tree.Root.URL, func() string {
			return nav.RenderScaffold(tree, baseURL)
		}))

		templateName := engine.Resolve(p.Type.String(), p.Section, p.Layout)
		var data []byte
		if templateName == "" {
			data = []byte(p.Content)
		} else {
			rendered, err := engine.RenderTemplate(templateName, pageCtx)
			if err != nil {
				return &builderr.Error{Kind: builderr.KindRendering, Source: p.SourcePath, Template: templateName, Err: err}
			}
			data = rendered
		}

		rel := URLToOutputPath(p.URL)
		if collector != nil {
			collector.Submit(render.WriteJob{RelPath: rel, Data: data})
		} else {
			if err := WriteFile(outputDir, p.URL, data); err != nil {
				return &builderr.Error{Kind: builderr.KindIO, Source: p.SourcePath, Err: err}
			}
		}

		// Accumulate postprocess data inline so the site-index phase never
		// re-derives it.
		ctx.AppendPageData(pageDataRecord(p))
		for _, a := range p.BundleFiles {
			ctx.AppendAsset(filepath.Join(p.BundleDir, a))
		}

		var templateFile string
		if templateName != "" {
			templateFile, _ = engine.TemplatePath(templateName)
		}
		// Virtual pages record a pseudo-source so their outputs survive
		// deleted-source cleanup yet still map back to a producer.
		source := p.SourcePath
		if source == "" {
			source = "virtual:" + p.URL
		}
		upd := cacheUpdate{
			source:       source,
			outputPath:   filepath.Join(outputDir, rel),
			templateFile: templateFile,
		}
		if p.SourcePath != "" {
			var cascadeHash string
			if p.SectionNode != nil && p.Type == content.PageTypeList {
				cascadeHash = p.SectionNode.CascadeHash()
			}
			upd.parsed = cache.ParsedContent{HTML: p.Content, TOC: p.TableOfContents, CascadeMetadataHash: cascadeHash}
		}
		mu.Lock()
		updates = append(updates, upd)
		mu.Unlock()
		return nil
	}

	workers := render.OptimalWorkers(len(ordered), o.config.Build.MaxWorkers)
	if !runOpts.Parallel {
		workers = 1
	}
	var renderErr error
	poolErr := renderParallel(ordered, workers, func(p *content.Page) error {
		if err := renderOne(p); err != nil {
			if builderr.IsShutdownError(err) {
				return err
			}
			be, ok := err.(*builderr.Error)
			if !ok {
				be = &builderr.Error{Kind: builderr.KindRendering, Source: p.SourcePath, Err: err}
			}
			errs.Add(be)
			if runOpts.Strict {
				return be
			}
			return nil // collected; build continues
		}
		return nil
	})

	// flush_and_close always runs, success or failure, so a failed build
	// never leaves writer goroutines dangling.
	if collector != nil {
		_, writeErrs := collector.Close()
		for _, we := range writeErrs {
			errs.Add(&builderr.Error{Kind: builderr.KindIO, Err: we})
		}
	}
	if poolErr != nil {
		renderErr = poolErr
	}

	// Copy bundle assets for rebuilt pages.
	for _, p := range ordered {
		if !p.IsBundle || len(p.BundleFiles) == 0 {
			continue
		}
		pageOutputDir := filepath.Join(outputDir, strings.TrimPrefix(p.URL, "/"))
		for _, assetName := range p.BundleFiles {
			src := filepath.Join(p.BundleDir, assetName)
			if err := CopyFile(src, filepath.Join(pageOutputDir, assetName)); err != nil {
				errs.Add(&builderr.Error{Kind: builderr.KindIO, Source: p.SourcePath, Err: err})
			}
		}
	}

	// 404 page renders whenever the theme provides a template.
	if notFound := engine.Resolve("404", "", ""); notFound != "" {
		rendered, err := engine.RenderTemplate(notFound, &tmpl.PageContext{Title: "Page Not Found", Site: siteCtx})
		if err == nil {
			if err := writeDirectFile(outputDir, "404.html", rendered); err != nil {
				errs.Add(&builderr.Error{Kind: builderr.KindIO, Err: err})
			}
		}
	}

	return updates, renderErr
}

// applyCacheUpdates is the single-threaded BuildCache write pass after
// rendering: fingerprints, dependency edges, output sources, taxonomy
// index, parsed content, page metadata, and the URL-claim snapshot.
func (o *Orchestrator) applyCacheUpdates(
	buildCache *cache.BuildCache,
	pageMeta *cache.PageMetadata,
	ctx *buildctx.BuildContext,
	updates []cacheUpdate,
	contentDir string,
	templateFiles, dataFilePaths []string,
	pages []*content.Page,
) {
	for _, u := range updates {
		if !strings.HasPrefix(u.source, "virtual:") {
			if fp, err := cache.FingerprintFile(filepath.Join(contentDir, u.source)); err == nil {
				buildCache.FileFingerprints[u.source] = fp
			}
			buildCache.ParsedContent[u.source] = u.parsed

			var deps []string
			if u.templateFile != "" {
				deps = append(deps, u.templateFile)
			}
			deps = append(deps, dataFilePaths...)
			buildCache.Dependencies[u.source] = deps
		}
		buildCache.OutputSources[u.outputPath] = u.source
	}

	// Reverse dependencies and the taxonomy index are rebuilt whole; both
	// are cheap relative to rendering and a full rebuild keeps them exact.
	buildCache.ReverseDependencies = make(map[string][]string)
	for src, deps := range buildCache.Dependencies {
		for _, d := range deps {
			buildCache.ReverseDependencies[d] = append(buildCache.ReverseDependencies[d], src)
		}
	}
	buildCache.TaxonomyIndex = cache.TaxonomyIndex{
		PageTerms: make(map[string][]string),
		TermPages: make(map[string][]string),
	}
	for _, p := range pages {
		if p.SourcePath == "" {
			continue
		}
		for _, tag := range p.Tags {
			slug := content.TaxonomySlug(tag)
			buildCache.TaxonomyIndex.PageTerms[p.SourcePath] = append(buildCache.TaxonomyIndex.PageTerms[p.SourcePath], slug)
			buildCache.TaxonomyIndex.TermPages[slug] = append(buildCache.TaxonomyIndex.TermPages[slug], p.SourcePath)
		}
	}

	// Template, data-file, and asset fingerprints advance so the next
	// build's change detection compares against this build's state.
	for _, paths := range [][]string{templateFiles, dataFilePaths, ctx.Assets} {
		for _, f := range paths {
			if fp, err := cache.FingerprintFile(f); err == nil {
				buildCache.FileFingerprints[f] = fp
			}
		}
	}

	for _, p := range pages {
		if p.SourcePath == "" {
			continue
		}
		pageMeta.Record(pageCoreOf(p))
	}
}

// checkConfigChanged fingerprints the config file against the cached
// fingerprint; a change (or a first sighting with prior builds recorded)
// forces a full rebuild.
func (o *Orchestrator) checkConfigChanged(buildCache *cache.BuildCache, configPath string) bool {
	if configPath == "" {
		return false
	}
	next, err := cache.FingerprintFile(configPath)
	if err != nil {
		return false
	}
	prev, ok := buildCache.FileFingerprints[configPath]
	buildCache.FileFingerprints[configPath] = next
	if !ok {
		// No recorded fingerprint: only a change if the cache has history
		// (otherwise this is the first build and everything rebuilds anyway).
		return !buildCache.LastBuild.IsZero()
	}
	return prev.Changed(next)
}

func (o *Orchestrator) saveCaches(
	buildCache *cache.BuildCache, cachePath string,
	prov *cache.ProvenanceCache, bengalDir string,
	pageMeta *cache.PageMetadata, pageMetaPath string,
	registry *urlregistry.Registry,
) {
	buildCache.URLClaims = claimsToCache(registry.Claims())
	// Cache persistence failing must never fail the build; the cost is a
	// full rebuild next time.
	_ = buildCache.Save(cachePath)
	_ = prov.Save(filepath.Join(bengalDir, "provenance"))
	_ = pageMeta.Save(pageMetaPath)
}

// healthCheck validates the outputs the build claims to have produced.
func (o *Orchestrator) healthCheck(outputDir string, pagesToBuild []*content.Page) []*builderr.Error {
	var errs []*builderr.Error
	if entries, err := os.ReadDir(outputDir); err != nil || len(entries) == 0 {
		errs = append(errs, &builderr.Error{Kind: builderr.KindIO, Err: fmt.Errorf("output directory %s is empty after build", outputDir)})
		return errs
	}
	for _, p := range pagesToBuild {
		out := filepath.Join(outputDir, URLToOutputPath(p.URL))
		if _, err := os.Stat(out); err != nil {
			errs = append(errs, &builderr.Error{Kind: builderr.KindIO, Source: p.SourcePath, Err: fmt.Errorf("expected output %s missing", out)})
		}
	}
	return errs
}

// orderPages prioritizes forced sources, then (when enabled and the queue
// is larger than the pool) applies the LPT complexity sort within each
// group; otherwise discovery order is preserved within groups.
func orderPages(pages []*content.Page, forced map[string]bool, lpt bool, maxWorkers int) []*content.Page {
	if lpt && len(pages) > render.OptimalWorkers(len(pages), maxWorkers) {
		return render.OrderForRender(pages, forced)
	}
	ordered := make([]*content.Page, 0, len(pages))
	for _, p := range pages {
		if forced[p.SourcePath] {
			ordered = append(ordered, p)
		}
	}
	for _, p := range pages {
		if !forced[p.SourcePath] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// assembleIndexRecords produces the site-index input in full or hybrid
// mode: pages rendered this build come from the context accumulators; the
// remainder (untouched by an incremental build) is filled from the
// in-memory discovered pages, with the persisted metadata store supplying
// the excerpt when the page body wasn't summarized this cycle.
func assembleIndexRecords(ctx *buildctx.BuildContext, pages []*content.Page, pageMeta *cache.PageMetadata) []buildctx.AccumulatedPageData {
	records := make([]buildctx.AccumulatedPageData, 0, len(pages))
	for _, p := range pages {
		if p.Draft {
			continue
		}
		if rec, ok := ctx.LookupPageData(p.SourcePath); ok && p.SourcePath != "" {
			records = append(records, rec)
			continue
		}
		rec := pageDataRecord(p)
		if rec.Excerpt == "" && p.SourcePath != "" {
			if core, ok := pageMeta.Pages[p.SourcePath]; ok {
				rec.Excerpt = core.Excerpt
			}
		}
		records = append(records, rec)
	}
	return records
}

func pageDataRecord(p *content.Page) buildctx.AccumulatedPageData {
	return buildctx.AccumulatedPageData{
		SourcePath:  p.SourcePath,
		URL:         p.Path,
		Href:        p.Href,
		Title:       p.Title,
		Description: p.Description,
		Excerpt:     content.StripHTMLTags(p.Summary),
		Tags:        p.Tags,
		Section:     p.Section,
		WordCount:   p.WordCount,
		ReadingTime: p.ReadingTime,
		Date:        p.Date,
		Lastmod:     p.Lastmod,
	}
}

func pageCoreOf(p *content.Page) cache.PageCore {
	return cache.PageCore{
		SourcePath:  p.SourcePath,
		Path:        p.Path,
		Href:        p.Href,
		OutputPath:  URLToOutputPath(p.URL),
		Title:       p.Title,
		Description: p.Description,
		Excerpt:     content.StripHTMLTags(p.Summary),
		Tags:        p.Tags,
		Section:     p.Section,
		Version:     p.Version,
		WordCount:   p.WordCount,
		ReadingTime: p.ReadingTime,
		Date:        p.Date,
		Lastmod:     p.Lastmod,
	}
}

// claimPageURLs registers URL ownership for every page by producer type:
// regular content at the highest priority, section indexes below it,
// taxonomy term pages lowest.
func claimPageURLs(registry *urlregistry.Registry, pages []*content.Page) error {
	for _, p := range pages {
		owner, priority := "content", urlregistry.PriorityContent
		switch p.Type {
		case content.PageTypeList, content.PageTypeHome:
			owner, priority = "section-index", urlregistry.PrioritySectionIndex
		case content.PageTypeTaxonomy, content.PageTypeTaxonomyList:
			owner, priority = "taxonomy", urlregistry.PriorityTaxonomy
		}
		source := p.SourcePath
		if source == "" {
			source = owner + ":" + p.URL
		}
		if err := registry.Claim(p.URL, owner, source, priority, p.Version, ""); err != nil {
			return err
		}
	}
	return nil
}

func claimsFromCache(in map[string]cache.URLClaim) map[string]urlregistry.Claim {
	out := make(map[string]urlregistry.Claim, len(in))
	for url, c := range in {
		out[url] = urlregistry.Claim{URL: url, Owner: c.Owner, Source: c.Source, Priority: c.Priority, Version: c.Version, Lang: c.Lang}
	}
	return out
}

func claimsToCache(in map[string]urlregistry.Claim) map[string]cache.URLClaim {
	out := make(map[string]cache.URLClaim, len(in))
	for url, c := range in {
		out[url] = cache.URLClaim{Owner: c.Owner, Source: c.Source, Priority: c.Priority, Version: c.Version, Lang: c.Lang}
	}
	return out
}

// contentPagesOnly filters out virtual pages (taxonomy terms, the injected
// home page) that have no place in the section tree.
func contentPagesOnly(pages []*content.Page) []*content.Page {
	out := make([]*content.Page, 0, len(pages))
	for _, p := range pages {
		if p.SourcePath != "" {
			out = append(out, p)
		}
	}
	return out
}

// collectCrossVersionEdges scans every page body for [[version:path]] links
// and resolves them to dependency edges.
func collectCrossVersionEdges(pages []*content.Page) []cache.CrossVersionEdge {
	var edges []cache.CrossVersionEdge
	for _, p := range pages {
		for _, link := range content.ExtractCrossVersionLinks(p.RawContent) {
			target := content.ResolveCrossVersionTarget(pages, link.TargetVersion, link.TargetPath)
			if target == "" {
				continue
			}
			edges = append(edges, cache.CrossVersionEdge{
				SourcePage:    p.SourcePath,
				TargetVersion: link.TargetVersion,
				TargetPath:    target,
			})
		}
	}
	return edges
}

// discoverAssets walks the static directories collecting asset file paths.
func discoverAssets(dirs ...string) []string {
	var assets []string
	for _, dir := range dirs {
		filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			assets = append(assets, path)
			return nil
		})
	}
	sort.Strings(assets)
	return assets
}

func copyStaticAssets(themePath, projectRoot, outputDir string) (int, error) {
	copied := 0
	for _, dir := range []string{filepath.Join(themePath, "static"), filepath.Join(projectRoot, "static")} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		n, err := copyDirCounting(dir, outputDir)
		if err != nil {
			return copied, err
		}
		copied += n
	}
	return copied, nil
}

// templatePaths returns the source file path of every loaded template.
func templatePaths(engine *tmpl.Engine) []string {
	var out []string
	for _, name := range engine.ListTemplates() {
		if p, ok := engine.TemplatePath(name); ok {
			out = append(out, p)
		}
	}
	return out
}

// listDataFiles walks data/ collecting the files LoadDataFiles parses.
func listDataFiles(dataDir string) []string {
	var out []string
	filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml", ".toml", ".json":
			out = append(out, path)
		}
		return nil
	})
	return out
}

// siteFingerprint identifies the structural state of the discovered site
// for NavTree cache invalidation: any page added, removed, retitled, or
// reweighted produces a new fingerprint and clears the tree cache.
func siteFingerprint(pages []*content.Page) string {
	keys := make([]string, 0, len(pages))
	for _, p := range pages {
		keys = append(keys, p.SourcePath+"\x00"+p.Path+"\x00"+p.Title+"\x00"+fmt.Sprint(p.Weight))
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
