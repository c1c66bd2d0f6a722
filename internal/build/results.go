package build

import (
	"github.com/bengal-ssg/bengal/internal/incremental"
)

// ConfigCheckResult is the outcome of the orchestrator's config-check phase
// (Phase 4): resolving the effective project paths and deciding whether the config
// itself changed since the last build (which forces a full rebuild
// regardless of what the incremental filter would otherwise decide).
type ConfigCheckResult struct {
	ProjectRoot   string
	OutputDir     string
	ContentDir    string
	BaseURL       string
	ConfigChanged bool
	// Incremental is the effective mode after the check: false whenever the
	// config changed, regardless of what the caller requested.
	Incremental bool
}

// FilterResult re-exports incremental.FilterResult under the build package
// so callers of Orchestrator.Run don't need to import internal/incremental
// directly just to read the decision that was made.
type FilterResult = incremental.FilterResult

// ChangeSummary re-exports incremental.ChangeSummary for the same reason.
type ChangeSummary = incremental.ChangeSummary

// OrchestratorResult extends BuildResult with the incremental bookkeeping a
// caller needs to print --explain output or decide exit status: the filter
// decision that drove this build, plus per-phase error aggregation.
type OrchestratorResult struct {
	*BuildResult
	ConfigCheck    ConfigCheckResult
	Filter         *FilterResult
	Skipped        bool
	CleanedOutputs []string
	Errors         []string // rendered builderr.Error.Error() strings, phase-scoped
}
