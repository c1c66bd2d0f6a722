package incremental

import (
	"sort"
	"strconv"
	"sync"

	"github.com/bengal-ssg/bengal/internal/content"
)

// ShadowDivergence describes one page where the legacy detector and the
// provenance filter disagreed about whether it needed a rebuild, recorded
// when build.shadow_mode is enabled so the two strategies can be compared on
// real sites before use_unified_change_detector is flipped by default.
type ShadowDivergence struct {
	SourcePath   string
	LegacyWants  bool
	ShadowWants  bool
}

// ShadowResult is the outcome of running both detectors side by side: Result
// is always the legacy detector's FilterResult (legacy stays authoritative
// in shadow mode), Divergences lists every page the two disagreed on.
type ShadowResult struct {
	Result      *FilterResult
	Divergences []ShadowDivergence
	ShadowCount int // pages the provenance filter would have rebuilt
}

// ShadowDetector is a Detector that runs the legacy detector as the
// authoritative strategy while also running the provenance filter against a
// scratch result and recording every page the two disagreed on. It lets the
// orchestrator's decision pipeline (Decide) stay detector-agnostic: shadow
// mode is just another Detector from its point of view.
type ShadowDetector struct {
	Legacy *LegacyDetector
	Shadow *ProvenanceFilter

	mu          sync.Mutex
	divergences []ShadowDivergence
}

// NewShadowDetector pairs the two strategies.
func NewShadowDetector(legacy *LegacyDetector, shadow *ProvenanceFilter) *ShadowDetector {
	return &ShadowDetector{Legacy: legacy, Shadow: shadow}
}

// Detect implements Detector: the legacy result (written into result) is
// authoritative; the provenance filter runs against a throwaway result and
// the two rebuild sets are diffed into Divergences.
func (d *ShadowDetector) Detect(
	pages []*content.Page,
	templates []string,
	dataFiles []string,
	forcedChanged map[string]bool,
	navChanged map[string]bool,
	result *FilterResult,
) ChangeSummary {
	summary := d.Legacy.Detect(pages, templates, dataFiles, forcedChanged, navChanged, result)

	scratch := newFilterResult()
	d.Shadow.Detect(pages, templates, dataFiles, forcedChanged, navChanged, scratch)

	var divergences []ShadowDivergence
	for _, p := range pages {
		_, lw := result.Reasons[p.SourcePath]
		_, sw := scratch.Reasons[p.SourcePath]
		if lw != sw {
			divergences = append(divergences, ShadowDivergence{SourcePath: p.SourcePath, LegacyWants: lw, ShadowWants: sw})
		}
	}
	if len(divergences) > 0 {
		sort.Slice(divergences, func(i, j int) bool { return divergences[i].SourcePath < divergences[j].SourcePath })
		result.log(TriggerShadowDivergence, "provenance filter disagreed on "+strconv.Itoa(len(divergences))+" page(s)")
	}

	d.mu.Lock()
	d.divergences = divergences
	d.mu.Unlock()
	return summary
}

// Divergences returns the disagreements recorded by the last Detect call.
func (d *ShadowDetector) Divergences() []ShadowDivergence {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ShadowDivergence, len(d.divergences))
	copy(out, d.divergences)
	return out
}

// RunShadow runs both detect strategies against the same inputs and
// compares their rebuild sets. It never uses the provenance filter's result
// as the build's actual decision; it exists purely to measure drift between
// the two strategies ahead of a cutover.
func RunShadow(legacy *LegacyDetector, shadow *ProvenanceFilter, pages []*content.Page, templates, dataFiles []string, forcedChanged, navChanged map[string]bool) ShadowResult {
	legacyResult := newFilterResult()
	legacy.Detect(pages, templates, dataFiles, forcedChanged, navChanged, legacyResult)

	shadowResult := newFilterResult()
	shadow.Detect(pages, templates, dataFiles, forcedChanged, navChanged, shadowResult)

	legacySet := make(map[string]bool, len(legacyResult.Reasons))
	for path := range legacyResult.Reasons {
		legacySet[path] = true
	}
	shadowSet := make(map[string]bool, len(shadowResult.Reasons))
	for path := range shadowResult.Reasons {
		shadowSet[path] = true
	}

	var divergences []ShadowDivergence
	seen := map[string]bool{}
	for _, p := range pages {
		path := p.SourcePath
		if seen[path] {
			continue
		}
		seen[path] = true
		lw, sw := legacySet[path], shadowSet[path]
		if lw != sw {
			divergences = append(divergences, ShadowDivergence{SourcePath: path, LegacyWants: lw, ShadowWants: sw})
		}
	}
	sort.Slice(divergences, func(i, j int) bool { return divergences[i].SourcePath < divergences[j].SourcePath })

	if len(divergences) > 0 {
		legacyResult.log(TriggerShadowDivergence, "provenance filter disagreed on "+strconv.Itoa(len(divergences))+" page(s)")
	}

	return ShadowResult{
		Result:      legacyResult,
		Divergences: divergences,
		ShadowCount: len(shadowSet),
	}
}
