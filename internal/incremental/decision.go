package incremental

import (
	"os"
	"path/filepath"

	"github.com/bengal-ssg/bengal/internal/content"
)

// minAssetsForPresence is the minimum entry count expected in a real
// prior build's assets/ directory: fewer than this is treated as evidence
// the output directory is not a real prior build (e.g. wiped by a clean
// script) rather than a deliberately asset-free site.
const minAssetsForPresence = 1

// Options configures one call to Decide.
type Options struct {
	Pages     []*content.Page
	Assets    []string
	Templates []string
	DataFiles []string

	ForcedChanged map[string]bool // file-watcher input: sources known to have changed
	NavChanged    map[string]bool // sources whose nav block must rebuild regardless

	Detector Detector

	OutputDir string // build output directory, for the presence checks

	// DetectChangedAssets reports which of Assets changed since the last
	// build (content fingerprint comparison). Asset change detection lives
	// outside the page Detector because neither strategy tracks non-page
	// sources; the orchestrator supplies a closure over the build cache.
	DetectChangedAssets func(assets []string) []string

	// FingerprintedAssetChanged reports whether any changed asset in Assets
	// is a CSS/JS asset whose fingerprinted URL is embedded in rendered
	// pages (step 3). When true, every page is forced to rebuild.
	FingerprintedAssetChanged func(changedAssets []string) bool

	// AutodocPrefixes, if non-empty, are output-relative directory prefixes
	// expected to contain an index file; a missing one forces a full
	// rebuild (step 5).
	AutodocPrefixes []string

	// SpecialPagesMissing reports whether any enabled "special" page
	// (graph/search landing) is missing from the output, in which case the
	// build must not be skipped even if nothing else changed (step 6).
	SpecialPagesMissing func() bool

	// VersionScope, if set, restricts the final page set to that version
	// plus non-versioned pages (applied after the baseline decision).
	VersionScope string
}

// Decide runs the full incremental decision pipeline
// against either Detector implementation and returns the final FilterResult.
// incrementalEnabled corresponds to the CLI's --incremental/--full flag and
// build.incremental config default.
func Decide(incrementalEnabled bool, opts Options) *FilterResult {
	result := newFilterResult()

	// Step 1: incremental disabled -> full rebuild.
	if !incrementalEnabled {
		result.log(TriggerIncrementalDisabled, "incremental builds disabled")
		fullRebuild(opts.Pages, opts.Assets, result)
		return result
	}

	// Step 2: baseline change detection, behind the section-level
	// pre-filter: when the caller supplied explicit change signals (a watch
	// rebuild's forced/nav sources), only pages inside those sources'
	// sections go through per-page change checking — a large subtree with
	// no plausible reason to change is skipped wholesale. Forced and nav
	// pages themselves are always checked. With no explicit signals there
	// is nothing to scope by, so every page is checked.
	detectPages := opts.Pages
	if len(opts.ForcedChanged) > 0 || len(opts.NavChanged) > 0 {
		scope := ChangedSections(opts.Pages, opts.ForcedChanged, opts.NavChanged, result)
		detectPages = ScopePages(opts.Pages, scope, opts.ForcedChanged, opts.NavChanged)
	}
	summary := opts.Detector.Detect(detectPages, opts.Templates, opts.DataFiles, opts.ForcedChanged, opts.NavChanged, result)
	result.ChangedSections = ChangedSections(opts.Pages, opts.ForcedChanged, opts.NavChanged, result)
	if opts.DetectChangedAssets != nil {
		summary.ChangedAssets = opts.DetectChangedAssets(opts.Assets)
	}
	result.AffectedTags = summary.AffectedTags

	// Step 3: asset fingerprint cascade.
	if opts.FingerprintedAssetChanged != nil && opts.FingerprintedAssetChanged(summary.ChangedAssets) {
		result.log(TriggerFingerprintCascade, "fingerprinted CSS/JS asset changed; forcing full page rebuild")
		markAllPages(opts.Pages, result, RebuildReason{Code: ReasonAssetFingerprintChanged})
	}

	// Step 4: output presence check.
	if outputDirEmpty(opts.OutputDir) {
		result.log(TriggerOutputDirEmpty, opts.OutputDir)
		fullRebuild(opts.Pages, opts.Assets, result)
	} else if len(opts.Assets) > 0 && outputAssetsMissing(opts.OutputDir) {
		result.log(TriggerOutputAssetsMissing, filepath.Join(opts.OutputDir, "assets"))
		fullRebuild(opts.Pages, opts.Assets, result)
	}

	// Step 5: autodoc output check.
	if missingAutodocOutput(opts.OutputDir, opts.AutodocPrefixes) {
		result.log(TriggerAutodocOutputMissing, "one or more autodoc index files missing")
		fullRebuild(opts.Pages, opts.Assets, result)
	}

	// Step 6: special pages check — informational only; it does not force a
	// rebuild on its own, but it disables the skip decision in step 7.
	specialPagesMissing := opts.SpecialPagesMissing != nil && opts.SpecialPagesMissing()

	if opts.VersionScope != "" {
		pageVersions := make(map[string]string, len(opts.Pages))
		for _, p := range opts.Pages {
			pageVersions[p.SourcePath] = p.Version
		}
		ApplyVersionScope(result, opts.VersionScope, pageVersions)
	}

	if !result.FullRebuild {
		result.Assets = summary.ChangedAssets
	}
	// else: fullRebuild already set result.Assets to the complete opts.Assets
	// set (possibly more than once across steps 4-5; each call assigns the
	// same slice, so nothing is duplicated).

	// Step 7: skip check.
	if len(result.Pages) == 0 && len(result.Assets) == 0 && len(summary.AffectedTags) == 0 && !specialPagesMissing && !result.FullRebuild {
		result.Skip = true
	}

	return result
}

// fullRebuild marks every source-backed page. Virtual pages (taxonomy
// terms, an injected home page) have no source path to key a reason by; the
// orchestrator re-renders them alongside whenever FullRebuild is set.
func fullRebuild(pages []*content.Page, assets []string, result *FilterResult) {
	result.FullRebuild = true
	for _, p := range pages {
		if p.SourcePath == "" {
			continue
		}
		result.markPage(p.SourcePath, RebuildReason{Code: ReasonFullRebuild})
	}
	result.Assets = assets
}

func markAllPages(pages []*content.Page, result *FilterResult, reason RebuildReason) {
	for _, p := range pages {
		if p.SourcePath == "" {
			continue
		}
		result.markPage(p.SourcePath, reason)
	}
}

// outputDirEmpty reports whether dir is missing or has no entries.
func outputDirEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	return len(entries) == 0
}

// outputAssetsMissing reports whether dir/assets is missing or has fewer
// than minAssetsForPresence entries.
func outputAssetsMissing(dir string) bool {
	entries, err := os.ReadDir(filepath.Join(dir, "assets"))
	if err != nil {
		return true
	}
	return len(entries) < minAssetsForPresence
}

// missingAutodocOutput reports whether any configured autodoc prefix
// directory (relative to dir) is missing its index file.
func missingAutodocOutput(dir string, prefixes []string) bool {
	for _, prefix := range prefixes {
		indexPath := filepath.Join(dir, prefix, "index.html")
		if _, err := os.Stat(indexPath); err != nil {
			return true
		}
	}
	return false
}
