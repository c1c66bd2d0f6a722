// Package incremental decides which pages and assets a build actually needs
// to re-render. Two implementations coexist behind a feature flag: a legacy
// multi-signal detector (several narrow sub-detectors sharing one
// cache.BuildCache) and a preferred content-addressed provenance filter
// backed by cache.ProvenanceCache. An optional shadow mode runs both and
// logs any divergence while trusting the legacy decision.
package incremental

// Trigger codes recorded in a FilterDecisionLog entry, surfaced by the
// --explain CLI flag.
const (
	TriggerIncrementalDisabled = "INCREMENTAL_DISABLED"
	TriggerOutputDirEmpty      = "OUTPUT_DIR_EMPTY"
	TriggerOutputAssetsMissing = "OUTPUT_ASSETS_MISSING"
	TriggerAutodocOutputMissing = "AUTODOC_OUTPUT_MISSING"
	TriggerFingerprintCascade  = "FINGERPRINT_CASCADE"
	TriggerShadowDivergence    = "SHADOW_DIVERGENCE"
)

// Per-page rebuild reason codes.
const (
	ReasonContentChanged          = "CONTENT_CHANGED"
	ReasonTemplateChanged         = "TEMPLATE_CHANGED"
	ReasonAssetFingerprintChanged = "ASSET_FINGERPRINT_CHANGED"
	ReasonCascadeDependency       = "CASCADE_DEPENDENCY"
	ReasonNavChanged              = "NAV_CHANGED"
	ReasonCrossVersionDependency  = "CROSS_VERSION_DEPENDENCY"
	ReasonAdjacentNavChanged      = "ADJACENT_NAV_CHANGED"
	ReasonForced                  = "FORCED"
	ReasonFullRebuild             = "FULL_REBUILD"
	ReasonOutputMissing           = "OUTPUT_MISSING"
)

// RebuildReason explains why one page ended up in the rebuild set.
type RebuildReason struct {
	Code    string
	Details string
}

// FilterDecisionLog is one structured entry in the overall filter decision
// trail (not tied to any single page), surfaced by `bengal build --explain`.
type FilterDecisionLog struct {
	Trigger string
	Details string
}

// ChangeSummary is the baseline result of change detection, before the
// fingerprint-cascade / output-presence / skip checks are layered on.
type ChangeSummary struct {
	ChangedPages  []string
	ChangedAssets []string
	ChangedTemplates []string
	ChangedData   []string
	AffectedTags  []string
}

// FilterResult is the Incremental Filter's final output: the minimal page
// and asset sets to rebuild, plus the full decision trail for diagnostics.
type FilterResult struct {
	Pages           []string
	Assets          []string
	AffectedTags    []string
	Reasons         map[string]RebuildReason
	DecisionLog     []FilterDecisionLog
	ChangedSections map[string]bool
	FullRebuild     bool
	Skip            bool
}

func newFilterResult() *FilterResult {
	return &FilterResult{Reasons: make(map[string]RebuildReason)}
}

func (r *FilterResult) markPage(path string, reason RebuildReason) {
	if _, ok := r.Reasons[path]; ok {
		return
	}
	r.Pages = append(r.Pages, path)
	r.Reasons[path] = reason
}

func (r *FilterResult) log(trigger, details string) {
	r.DecisionLog = append(r.DecisionLog, FilterDecisionLog{Trigger: trigger, Details: details})
}
