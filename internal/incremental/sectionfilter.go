package incremental

import (
	"strings"

	"github.com/bengal-ssg/bengal/internal/content"
)

// ChangedSections computes the set of section paths touched by a change: a
// section is "changed" if it contains a source already known to have
// changed (forcedChanged, navChanged, or a page whose SourcePath is already
// a key in result.Reasons) — never derived from filesystem mtimes, which
// are unreliable across checkouts and CI caches.
//
// Called with an empty result before detection runs (watch mode), only the
// forced/nav signals contribute, and the returned set is the per-page
// change-checking scope ScopePages applies. Called after detection, it is
// the diagnostic union of every changed source's section.
func ChangedSections(pages []*content.Page, forcedChanged, navChanged map[string]bool, result *FilterResult) map[string]bool {
	changed := map[string]bool{}

	mark := func(p *content.Page) {
		if p.SectionNode == nil {
			return
		}
		changed[p.SectionNode.Path] = true
	}

	for _, p := range pages {
		if forcedChanged[p.SourcePath] || navChanged[p.SourcePath] {
			mark(p)
			continue
		}
		if _, ok := result.Reasons[p.SourcePath]; ok {
			mark(p)
		}
	}
	return changed
}

// InSection reports whether sectionPath is sectionPath itself or a
// descendant of it ("blog" matches "blog" and "blog/2024", not "blogroll").
func InSection(sectionPath, candidate string) bool {
	if sectionPath == "" || sectionPath == candidate {
		return true
	}
	return strings.HasPrefix(candidate, sectionPath+"/")
}

// ScopePages restricts per-page change checking to the changed-section
// scope: pages whose section is in (or under) a changed section, plus every
// page named in forcedChanged or navChanged — those bypass section
// boundaries by design and are NEVER dropped by this pre-filter. Pages with
// no section node (virtual pages) pass through; the detectors skip them
// themselves.
func ScopePages(pages []*content.Page, scope map[string]bool, forcedChanged, navChanged map[string]bool) []*content.Page {
	out := make([]*content.Page, 0, len(pages))
	for _, p := range pages {
		if forcedChanged[p.SourcePath] || navChanged[p.SourcePath] || p.SectionNode == nil {
			out = append(out, p)
			continue
		}
		for s := range scope {
			if InSection(s, p.SectionNode.Path) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
