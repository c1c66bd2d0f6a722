package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

func provenancePage(source, body string) *content.Page {
	return &content.Page{
		SourcePath: source,
		RawContent: body,
		Metadata:   map[string]any{"title": source},
		Type:       content.PageTypeSingle,
	}
}

func TestProvenanceFilterFirstBuildMarksEverything(t *testing.T) {
	f := NewProvenanceFilter(cache.NewProvenanceCache(), cache.NewBuildCache(), nil)
	pages := []*content.Page{provenancePage("a.md", "a"), provenancePage("b.md", "b")}

	result := newFilterResult()
	f.Detect(pages, nil, nil, nil, nil, result)

	if len(result.Pages) != 2 {
		t.Errorf("expected every unseen page marked, got %v", result.Pages)
	}
}

func TestProvenanceFilterStableAcrossBuilds(t *testing.T) {
	prov := cache.NewProvenanceCache()
	f := NewProvenanceFilter(prov, cache.NewBuildCache(), nil)
	p := provenancePage("a.md", "body")

	// Simulate the first build recording provenance after render.
	f.Record(p)

	result := newFilterResult()
	f.Detect([]*content.Page{p}, nil, nil, nil, nil, result)
	if len(result.Pages) != 0 {
		t.Errorf("unchanged page must not rebuild, got %v", result.Reasons)
	}
}

func TestProvenanceFilterDetectsContentAndMetadataChanges(t *testing.T) {
	prov := cache.NewProvenanceCache()
	f := NewProvenanceFilter(prov, cache.NewBuildCache(), nil)
	p := provenancePage("a.md", "body")
	f.Record(p)

	p.RawContent = "edited body"
	result := newFilterResult()
	f.Detect([]*content.Page{p}, nil, nil, nil, nil, result)
	if result.Reasons["a.md"].Code != ReasonContentChanged {
		t.Errorf("content edit must rebuild, got %+v", result.Reasons["a.md"])
	}

	p.RawContent = "body"
	f.Record(p)
	p.Metadata = map[string]any{"title": "new title"}
	result = newFilterResult()
	f.Detect([]*content.Page{p}, nil, nil, nil, nil, result)
	if result.Reasons["a.md"].Code != ReasonContentChanged {
		t.Errorf("metadata edit must rebuild, got %+v", result.Reasons["a.md"])
	}
}

func TestProvenanceFilterDetectsTemplateIdentityChange(t *testing.T) {
	prov := cache.NewProvenanceCache()
	current := "single.html"
	resolver := func(p *content.Page) (string, []string) { return current, nil }
	f := NewProvenanceFilter(prov, cache.NewBuildCache(), resolver)
	p := provenancePage("a.md", "body")
	f.Record(p)

	current = "custom.html"
	result := newFilterResult()
	f.Detect([]*content.Page{p}, nil, nil, nil, nil, result)
	if _, marked := result.Reasons["a.md"]; !marked {
		t.Error("template identity change must rebuild the page")
	}
}

// An edited dependency (template file content) must change the page's
// combined hash in the very next build, before the stored fingerprint
// advances.
func TestProvenanceFilterDetectsDependencyContentChange(t *testing.T) {
	dir := t.TempDir()
	dep := filepath.Join(dir, "single.html")
	if err := os.WriteFile(dep, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	bc := cache.NewBuildCache()
	bc.Dependencies["a.md"] = []string{dep}
	prov := cache.NewProvenanceCache()
	f := NewProvenanceFilter(prov, bc, nil)
	p := provenancePage("a.md", "body")
	f.Record(p)

	if err := os.WriteFile(dep, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := newFilterResult()
	f.Detect([]*content.Page{p}, nil, nil, nil, nil, result)
	if _, marked := result.Reasons["a.md"]; !marked {
		t.Error("dependency content change must rebuild the page")
	}
}

func TestProvenanceFilterForcedAndAdjacent(t *testing.T) {
	prov := cache.NewProvenanceCache()
	f := NewProvenanceFilter(prov, cache.NewBuildCache(), nil)

	p0 := provenancePage("p0.md", "p0")
	p1 := provenancePage("p1.md", "p1")
	p1.PrevPage = p0
	f.Record(p0)
	f.Record(p1)

	result := newFilterResult()
	f.Detect([]*content.Page{p0, p1}, nil, nil, map[string]bool{"p1.md": true}, nil, result)

	if result.Reasons["p1.md"].Code != ReasonForced {
		t.Errorf("forced page, got %+v", result.Reasons["p1.md"])
	}
	if result.Reasons["p0.md"].Code != ReasonAdjacentNavChanged {
		t.Errorf("adjacent page should rebuild, got %+v", result.Reasons["p0.md"])
	}
}

// Scenario D under the provenance path: editing a page in one version must
// rebuild pages in other versions linking to it, exactly as the legacy
// detector does.
func TestProvenanceFilterCrossVersionDependency(t *testing.T) {
	bc := cache.NewBuildCache()
	prov := cache.NewProvenanceCache()
	f := NewProvenanceFilter(prov, bc, nil)

	target := provenancePage("v1/docs/guide.md", "old title")
	target.Version = "v1"
	linker := provenancePage("v2/docs/overview.md", "see [[v1:docs/guide]]")
	linker.Version = "v2"
	f.Record(target)
	f.Record(linker)
	bc.CrossVersionDependencies = []cache.CrossVersionEdge{
		{SourcePage: "v2/docs/overview.md", TargetVersion: "v1", TargetPath: "v1/docs/guide.md"},
	}

	target.RawContent = "new title"
	result := newFilterResult()
	f.Detect([]*content.Page{target, linker}, nil, nil, nil, nil, result)

	if result.Reasons["v1/docs/guide.md"].Code != ReasonContentChanged {
		t.Errorf("edited page, got %+v", result.Reasons["v1/docs/guide.md"])
	}
	if result.Reasons["v2/docs/overview.md"].Code != ReasonCrossVersionDependency {
		t.Errorf("linking page should rebuild, got %+v", result.Reasons["v2/docs/overview.md"])
	}
}

func TestShadowDetectorRecordsDivergences(t *testing.T) {
	root := t.TempDir()
	bc := cache.NewBuildCache()
	rel := writeSource(t, root, "a.md", "body")
	primeFingerprint(t, bc, root, rel)

	legacy := &LegacyDetector{Cache: bc, Root: root}

	// The provenance cache has never seen the page, so the shadow strategy
	// wants a rebuild while legacy (primed fingerprint) does not.
	shadow := NewProvenanceFilter(cache.NewProvenanceCache(), bc, nil)
	d := NewShadowDetector(legacy, shadow)

	result := newFilterResult()
	d.Detect([]*content.Page{provenancePage(rel, "body")}, nil, nil, nil, nil, result)

	// Legacy stays authoritative: the page is not in the rebuild set.
	if _, marked := result.Reasons[rel]; marked {
		t.Error("shadow mode must keep the legacy decision authoritative")
	}
	div := d.Divergences()
	if len(div) != 1 || !div[0].ShadowWants || div[0].LegacyWants {
		t.Errorf("expected one shadow-wants divergence, got %+v", div)
	}
	foundLog := false
	for _, e := range result.DecisionLog {
		if e.Trigger == TriggerShadowDivergence {
			foundLog = true
		}
	}
	if !foundLog {
		t.Error("divergence should be logged in the decision trail")
	}
}
