package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

func TestScopePagesKeepsForcedAndInScopePages(t *testing.T) {
	blog := &content.Section{Name: "blog", Path: "blog"}
	docs := &content.Section{Name: "docs", Path: "docs"}
	sub := &content.Section{Name: "2024", Path: "blog/2024", Parent: blog}

	inScope := &content.Page{SourcePath: "blog/a.md", SectionNode: blog}
	nested := &content.Page{SourcePath: "blog/2024/b.md", SectionNode: sub}
	outOfScope := &content.Page{SourcePath: "docs/c.md", SectionNode: docs}
	forcedElsewhere := &content.Page{SourcePath: "docs/forced.md", SectionNode: docs}
	virtual := &content.Page{URL: "/tags/"}

	scope := map[string]bool{"blog": true}
	forced := map[string]bool{"docs/forced.md": true}

	got := ScopePages([]*content.Page{inScope, nested, outOfScope, forcedElsewhere, virtual}, scope, forced, nil)

	kept := map[string]bool{}
	for _, p := range got {
		kept[p.SourcePath] = true
	}
	if !kept["blog/a.md"] || !kept["blog/2024/b.md"] {
		t.Errorf("pages in and under the changed section must be kept: %v", kept)
	}
	if kept["docs/c.md"] {
		t.Error("page outside the changed sections should be skipped")
	}
	if !kept["docs/forced.md"] {
		t.Error("forced pages must never be dropped by the section pre-filter")
	}
	if len(got) != 4 {
		t.Errorf("expected 4 pages (incl. virtual pass-through), got %d", len(got))
	}
}

// With watch-mode signals, per-page change checking is restricted to the
// changed sections: a page outside them is not fingerprinted even if its
// bytes differ from the cache.
func TestDecideSectionPreFilterSkipsOtherSections(t *testing.T) {
	root := t.TempDir()
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	bc := cache.NewBuildCache()
	forcedRel := writeSource(t, root, "blog/edited.md", "edited")
	otherRel := writeSource(t, root, "docs/stale.md", "old bytes")
	primeFingerprint(t, bc, root, otherRel)
	// The docs page's bytes change on disk, but no watch event reported it.
	if err := os.WriteFile(filepath.Join(root, otherRel), []byte("new bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	blog := &content.Section{Name: "blog", Path: "blog"}
	docs := &content.Section{Name: "docs", Path: "docs"}
	pages := []*content.Page{
		{SourcePath: forcedRel, SectionNode: blog},
		{SourcePath: otherRel, SectionNode: docs},
	}

	result := Decide(true, Options{
		Pages:         pages,
		ForcedChanged: map[string]bool{forcedRel: true},
		Detector:      &LegacyDetector{Cache: bc, Root: root},
		OutputDir:     outDir,
	})

	if result.Reasons[forcedRel].Code != ReasonForced {
		t.Errorf("forced page must be in the set, got %+v", result.Reasons[forcedRel])
	}
	if _, marked := result.Reasons[otherRel]; marked {
		t.Error("page outside the changed sections must be skipped from change checking")
	}
	if !result.ChangedSections["blog"] || result.ChangedSections["docs"] {
		t.Errorf("unexpected changed-section set %v", result.ChangedSections)
	}
}

// Without explicit signals there is nothing to scope by: every page is
// change-checked and the on-disk edit is found.
func TestDecideNoSignalsChecksEveryPage(t *testing.T) {
	root := t.TempDir()
	outDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	bc := cache.NewBuildCache()
	rel := writeSource(t, root, "docs/stale.md", "old bytes")
	primeFingerprint(t, bc, root, rel)
	if err := os.WriteFile(filepath.Join(root, rel), []byte("new bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	docs := &content.Section{Name: "docs", Path: "docs"}
	result := Decide(true, Options{
		Pages:     []*content.Page{{SourcePath: rel, SectionNode: docs}},
		Detector:  &LegacyDetector{Cache: bc, Root: root},
		OutputDir: outDir,
	})

	if result.Reasons[rel].Code != ReasonContentChanged {
		t.Errorf("full scan should find the edit, got %+v", result.Reasons[rel])
	}
}
