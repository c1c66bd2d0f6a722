package incremental

import (
	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

// Detector is the common interface both incremental strategies satisfy, so
// the orchestrator and ShadowDetector can treat them interchangeably (selected by
// build.use_unified_change_detector, compared in build.shadow_mode).
type Detector interface {
	Detect(
		pages []*content.Page,
		templates []string,
		dataFiles []string,
		forcedChanged map[string]bool,
		navChanged map[string]bool,
		result *FilterResult,
	) ChangeSummary
}

// TemplateResolver maps a page to the identity of the template that will
// render it and the set of partials/templates it transitively includes,
// without the incremental package needing to import the template engine
// directly (avoiding a dependency cycle and keeping the filter engine-agnostic).
type TemplateResolver func(p *content.Page) (templateName string, includeSet []string)

// ProvenanceFilter is the preferred content-addressed incremental detector:
// a page is in the rebuild set iff its combined_hash (content +
// metadata + template identity + include set + dependency hashes) differs
// from the value stored in ProvenanceCache from the last successful render,
// or it is forced. It skips per-edge graph traversal entirely, which is
// where its speed advantage over LegacyDetector comes from.
type ProvenanceFilter struct {
	Prov     *cache.ProvenanceCache
	Cache    *cache.BuildCache // for dependency-hash lookups (data files, templates)
	Resolve  TemplateResolver
}

// NewProvenanceFilter wraps an existing ProvenanceCache/BuildCache pair.
func NewProvenanceFilter(prov *cache.ProvenanceCache, buildCache *cache.BuildCache, resolve TemplateResolver) *ProvenanceFilter {
	return &ProvenanceFilter{Prov: prov, Cache: buildCache, Resolve: resolve}
}

// Detect implements Detector. Unlike LegacyDetector it does not run separate
// cascade/template/taxonomy sub-detectors: those signals are already folded
// into the combined_hash (a page's resolved, post-cascade Metadata includes
// cascaded values; its TemplateName and IncludeSet capture template/partial
// identity; its DependencyHashes capture data files). It still runs the
// adjacent-nav and cross-version trackers and computes AffectedTags
// explicitly, since those describe *other* pages that must rebuild as a
// consequence of a change, which a page's own hash cannot express about
// itself.
func (f *ProvenanceFilter) Detect(
	pages []*content.Page,
	templates []string,
	dataFiles []string,
	forcedChanged map[string]bool,
	navChanged map[string]bool,
	result *FilterResult,
) ChangeSummary {
	var summary ChangeSummary

	for _, p := range pages {
		if p.SourcePath == "" {
			continue // virtual page; the orchestrator schedules these itself
		}
		if forcedChanged[p.SourcePath] {
			result.markPage(p.SourcePath, RebuildReason{Code: ReasonForced})
			summary.ChangedPages = append(summary.ChangedPages, p.SourcePath)
			continue
		}

		entry := f.computeEntry(p)
		if f.Prov.NeedsRebuild(p.SourcePath, entry) {
			result.markPage(p.SourcePath, RebuildReason{Code: ReasonContentChanged})
			summary.ChangedPages = append(summary.ChangedPages, p.SourcePath)
		}
	}

	for path := range navChanged {
		result.markPage(path, RebuildReason{Code: ReasonNavChanged})
	}

	adjacentNavTracker(pages, result)
	crossVersionTracker(f.Cache, result)
	summary.AffectedTags = affectedTagSlugs(pages, result)

	return summary
}

// computeEntry builds the CombinedHashInputs for p and hashes them. Template
// identity and include set come from f.Resolve (nil-safe: an unset resolver
// degrades to using the page's raw Layout/Type/Section string, still stable
// across builds). Dependency hashes come from the current content fingerprint
// of every path the legacy cache already knows p depends on, so switching
// detectors doesn't require re-deriving the dependency graph from scratch.
func (f *ProvenanceFilter) computeEntry(p *content.Page) cache.ProvenanceEntry {
	var templateName string
	var includeSet []string
	if f.Resolve != nil {
		templateName, includeSet = f.Resolve(p)
	} else {
		templateName = p.Type.String() + ":" + p.Section + ":" + p.Layout
	}

	var depHashes []string
	if f.Cache != nil {
		for _, dep := range f.Cache.Dependencies[p.SourcePath] {
			// Hash the dependency's current content, not the fingerprint
			// stored at the end of the last build: an edited template must
			// change this page's combined hash in the build that follows
			// the edit, before the stored fingerprint advances.
			if fp, err := cache.FingerprintFile(dep); err == nil {
				depHashes = append(depHashes, fp.Hash)
			} else if fp, ok := f.Cache.FileFingerprints[dep]; ok {
				depHashes = append(depHashes, fp.Hash)
			}
		}
	}

	return cache.ComputeCombinedHash(cache.CombinedHashInputs{
		Content:          p.RawContent,
		Metadata:         p.Metadata,
		TemplateName:     templateName,
		IncludeSet:       includeSet,
		DependencyHashes: depHashes,
	})
}

// Record persists entry as the new provenance for every page that was
// actually rendered this build (called by the render phase after a
// successful page render, never before — a page that fails to render must
// not have its provenance advanced, or a transient failure would be
// mistaken for "no change" on the next build).
func (f *ProvenanceFilter) Record(p *content.Page) {
	f.Prov.Record(p.SourcePath, f.computeEntry(p))
}
