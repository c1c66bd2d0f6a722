package incremental

import (
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

// parallelThreshold is the minimum number of sources below which
// FileChangeDetector runs sequentially rather than paying worker-pool
// overhead, mirroring the render pool's small-batch fallback.
const parallelThreshold = 64

// LegacyDetector is the multi-signal incremental detector: several
// sub-detectors sharing one cache.BuildCache. It is the original detection
// strategy; ProvenanceFilter is the preferred replacement, with both
// available behind the build.use_unified_change_detector config flag and
// comparable in shadow mode (see Shadow).
type LegacyDetector struct {
	Cache *cache.BuildCache

	// Root, when set, is prefixed to relative page source paths before
	// fingerprinting (cache keys stay relative, so a cache travels between
	// checkouts). Template and data-file paths are used as given.
	Root string
}

// NewLegacyDetector wraps an existing BuildCache.
func NewLegacyDetector(c *cache.BuildCache) *LegacyDetector {
	return &LegacyDetector{Cache: c}
}

// resolve maps a (possibly content-dir-relative) source path to the path to
// stat/hash on disk.
func (d *LegacyDetector) resolve(sourcePath string) string {
	if d.Root == "" || filepath.IsAbs(sourcePath) {
		return sourcePath
	}
	return filepath.Join(d.Root, sourcePath)
}

// Detect runs every sub-detector against pages/templates/dataFiles and
// returns the baseline ChangeSummary plus populated RebuildReasons on
// result. forcedChanged and navChanged are file-watcher/nav-rebuild hints
// that always bypass the cache regardless of fingerprint state.
func (d *LegacyDetector) Detect(
	pages []*content.Page,
	templates []string,
	dataFiles []string,
	forcedChanged map[string]bool,
	navChanged map[string]bool,
	result *FilterResult,
) ChangeSummary {
	var summary ChangeSummary

	changedPages := d.fileChangeDetector(pages, forcedChanged, result)
	summary.ChangedPages = changedPages

	changedTemplates := d.templateChangeDetector(templates, result)
	summary.ChangedTemplates = changedTemplates

	changedData := d.dataFileDetector(dataFiles, result)
	summary.ChangedData = changedData

	d.cascadeTracker(pages, result)
	d.adjacentNavTracker(pages, result)

	affectedTags := d.taxonomyChangeDetector(pages, result)
	summary.AffectedTags = affectedTags

	for path := range navChanged {
		result.markPage(path, RebuildReason{Code: ReasonNavChanged})
	}

	d.versionChangeDetector(result)

	return summary
}

// versionChangeDetector implements VersionChangeDetector's cross-version
// dependency rule. Version-scope filtering (restricting the final set to
// one version plus shared pages) is applied afterward by the caller, once
// the scope is known, since it is a filter over the whole result rather
// than a signal that adds to it.
func (d *LegacyDetector) versionChangeDetector(result *FilterResult) {
	crossVersionTracker(d.Cache, result)
}

// crossVersionTracker marks every page holding a cross-version link to an
// already-changed page: if page P changed and some page Q (possibly in
// another docs version) links to P, Q's rendered output embeds P's title
// and must rebuild too. Shared by both detector strategies — like the
// adjacent-nav rule, this is a "some OTHER page must rebuild because P
// changed" signal that neither a per-page fingerprint nor a combined hash
// can express about the linking page itself.
func crossVersionTracker(c *cache.BuildCache, result *FilterResult) {
	if c == nil {
		return
	}
	changed := make(map[string]bool, len(result.Reasons))
	for path := range result.Reasons {
		changed[path] = true
	}
	for _, edge := range c.CrossVersionDependencies {
		if changed[edge.TargetPath] {
			result.markPage(edge.SourcePage, RebuildReason{Code: ReasonCrossVersionDependency, Details: edge.TargetPath})
		}
	}
}

// ApplyVersionScope filters result down to pages in the requested version
// plus non-versioned (shared) pages, per the `_version_scope` config key.
// pageVersions maps every candidate source path to its content.Page.Version.
func ApplyVersionScope(result *FilterResult, scope string, pageVersions map[string]string) {
	if scope == "" {
		return
	}
	kept := result.Pages[:0]
	for _, path := range result.Pages {
		v := pageVersions[path]
		if v == "" || v == scope {
			kept = append(kept, path)
		} else {
			delete(result.Reasons, path)
		}
	}
	result.Pages = kept
}

// fileChangeDetector asks should_bypass(source_path, forced_changed) for
// every page, parallelizing above parallelThreshold using an I/O-bound
// worker-pool sizing heuristic (2x CPU count, since fingerprinting is
// dominated by file reads, not computation).
func (d *LegacyDetector) fileChangeDetector(pages []*content.Page, forcedChanged map[string]bool, result *FilterResult) []string {
	var changed []string
	var mu sync.Mutex

	check := func(p *content.Page) {
		if p.SourcePath == "" {
			return // virtual page; no source file to fingerprint
		}
		reason, bypassed := d.shouldBypass(p.SourcePath, forcedChanged)
		if bypassed {
			mu.Lock()
			changed = append(changed, p.SourcePath)
			result.markPage(p.SourcePath, reason)
			mu.Unlock()
		}
	}

	if len(pages) < parallelThreshold {
		for _, p := range pages {
			check(p)
		}
		sort.Strings(changed)
		return changed
	}

	workers := runtime.NumCPU() * 2
	jobs := make(chan *content.Page)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				check(p)
			}
		}()
	}
	for _, p := range pages {
		jobs <- p
	}
	close(jobs)
	wg.Wait()

	sort.Strings(changed)
	return changed
}

// shouldBypass reports whether sourcePath should bypass the cache (i.e. be
// rebuilt): it is in forcedChanged, has no recorded fingerprint, or its
// current fingerprint differs from the cached one.
func (d *LegacyDetector) shouldBypass(sourcePath string, forcedChanged map[string]bool) (RebuildReason, bool) {
	if forcedChanged[sourcePath] {
		return RebuildReason{Code: ReasonForced}, true
	}
	prev, ok := d.Cache.FileFingerprints[sourcePath]
	if !ok {
		return RebuildReason{Code: ReasonContentChanged, Details: "no prior fingerprint"}, true
	}
	next, err := cache.FingerprintFile(d.resolve(sourcePath))
	if err != nil {
		// Source unreadable (likely mid-edit or deleted mid-scan); treat
		// conservatively as changed rather than erroring the whole filter.
		return RebuildReason{Code: ReasonContentChanged, Details: err.Error()}, true
	}
	if prev.Changed(next) {
		return RebuildReason{Code: ReasonContentChanged}, true
	}
	return RebuildReason{}, false
}

// templateChangeDetector marks every page depending (via
// cache.BuildCache.ReverseDependencies) on a changed template.
func (d *LegacyDetector) templateChangeDetector(templates []string, result *FilterResult) []string {
	var changed []string
	for _, tmpl := range templates {
		prev, ok := d.Cache.FileFingerprints[tmpl]
		next, err := cache.FingerprintFile(tmpl)
		isChanged := !ok || err != nil || prev.Changed(next)
		if !isChanged {
			continue
		}
		changed = append(changed, tmpl)
		for _, page := range d.Cache.ReverseDependencies[tmpl] {
			result.markPage(page, RebuildReason{Code: ReasonTemplateChanged, Details: tmpl})
		}
	}
	return changed
}

// dataFileDetector mirrors templateChangeDetector for data/ files.
func (d *LegacyDetector) dataFileDetector(dataFiles []string, result *FilterResult) []string {
	var changed []string
	for _, df := range dataFiles {
		prev, ok := d.Cache.FileFingerprints[df]
		next, err := cache.FingerprintFile(df)
		isChanged := !ok || err != nil || prev.Changed(next)
		if !isChanged {
			continue
		}
		changed = append(changed, df)
		for _, page := range d.Cache.ReverseDependencies[df] {
			result.markPage(page, RebuildReason{Code: ReasonTemplateChanged, Details: df})
		}
	}
	return changed
}

// cascadeTracker implements both of its responsibilities: if a changed
// section index's cascade metadata hash differs from the cached one, every
// descendant page is marked for rebuild. A missing cached hash, or an
// unchanged hash, does not cascade.
func (d *LegacyDetector) cascadeTracker(pages []*content.Page, result *FilterResult) {
	bySection := map[*content.Section][]*content.Page{}
	for _, p := range pages {
		if p.SectionNode != nil {
			bySection[p.SectionNode] = append(bySection[p.SectionNode], p)
		}
	}

	for _, p := range pages {
		if p.Type != content.PageTypeList || p.SectionNode == nil {
			continue
		}
		if _, inSet := result.Reasons[p.SourcePath]; !inSet {
			continue
		}
		newHash := p.SectionNode.CascadeHash()
		cached, ok := d.Cache.ParsedContent[p.SourcePath]
		if !ok || cached.CascadeMetadataHash == newHash {
			continue
		}
		for _, desc := range p.SectionNode.AllPages() {
			if desc == p.SectionNode.IndexPage {
				continue
			}
			result.markPage(desc.SourcePath, RebuildReason{Code: ReasonCascadeDependency, Details: p.SourcePath})
		}
	}
}

// adjacentNavTracker marks a changed page's prev/next neighbors for
// rebuild, since their rendered nav block embeds the changed page's title.
func (d *LegacyDetector) adjacentNavTracker(pages []*content.Page, result *FilterResult) {
	adjacentNavTracker(pages, result)
}

// adjacentNavTracker is the detector-agnostic implementation shared by both
// LegacyDetector and ProvenanceFilter: neither the legacy sub-detector
// composition nor a page's own combined_hash can express "my neighbor must
// rebuild because I changed", so both call this directly.
func adjacentNavTracker(pages []*content.Page, result *FilterResult) {
	changedNow := make([]string, 0, len(result.Reasons))
	for path := range result.Reasons {
		changedNow = append(changedNow, path)
	}
	changedSet := make(map[string]bool, len(changedNow))
	for _, p := range changedNow {
		changedSet[p] = true
	}

	for _, p := range pages {
		if !changedSet[p.SourcePath] {
			continue
		}
		if p.PrevPage != nil {
			result.markPage(p.PrevPage.SourcePath, RebuildReason{Code: ReasonAdjacentNavChanged, Details: p.SourcePath})
		}
		if p.NextPage != nil {
			result.markPage(p.NextPage.SourcePath, RebuildReason{Code: ReasonAdjacentNavChanged, Details: p.SourcePath})
		}
	}
}

// taxonomyChangeDetector computes the set of affected (normalized) tag
// slugs among newly-changed pages and marks their taxonomy term pages for
// rebuild; it also detects a metadata cascade where a member page's title
// change must propagate to term pages that list it.
func (d *LegacyDetector) taxonomyChangeDetector(pages []*content.Page, result *FilterResult) []string {
	affected := map[string]bool{}
	for _, p := range pages {
		if _, changed := result.Reasons[p.SourcePath]; !changed {
			continue
		}
		for _, tag := range p.Tags {
			slug := content.TaxonomySlug(tag)
			if affected[slug] {
				continue
			}
			affected[slug] = true
			for _, termPage := range d.Cache.TaxonomyIndex.TermPages[slug] {
				result.markPage(termPage, RebuildReason{Code: ReasonCascadeDependency, Details: "taxonomy:" + slug})
			}
		}
	}

	out := make([]string, 0, len(affected))
	for tag := range affected {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// affectedTagSlugs computes the set of normalized tag slugs carried by
// pages already marked as changed in result, without marking any term
// pages for rebuild (ProvenanceFilter has no BuildCache.TaxonomyIndex to
// consult; term-page rebuilds fall out naturally there because a term
// page's own combined_hash changes when its member list changes).
func affectedTagSlugs(pages []*content.Page, result *FilterResult) []string {
	affected := map[string]bool{}
	for _, p := range pages {
		if _, changed := result.Reasons[p.SourcePath]; !changed {
			continue
		}
		for _, tag := range p.Tags {
			affected[content.TaxonomySlug(tag)] = true
		}
	}
	out := make([]string, 0, len(affected))
	for tag := range affected {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
