package incremental

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/content"
)

func newDetectorWithFingerprint(t *testing.T, pages []*content.Page) *LegacyDetector {
	t.Helper()
	c := cache.NewBuildCache()
	for _, p := range pages {
		fp, err := cache.FingerprintFile(p.SourcePath)
		if err != nil {
			t.Fatalf("fingerprint %s: %v", p.SourcePath, err)
		}
		c.FileFingerprints[p.SourcePath] = fp
	}
	return NewLegacyDetector(c)
}

func writeTempPage(t *testing.T, dir, name, content string) *content.Page {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return &content.Page{SourcePath: path, RawContent: content}
}

func TestDecideIncrementalDisabledForcesFullRebuild(t *testing.T) {
	dir := t.TempDir()
	p := writeTempPage(t, dir, "a.md", "hello")
	pages := []*content.Page{p}
	det := newDetectorWithFingerprint(t, pages)

	result := Decide(false, Options{
		Pages:     pages,
		Detector:  det,
		OutputDir: dir,
	})

	if !result.FullRebuild {
		t.Fatal("expected FullRebuild when incremental disabled")
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected 1 page marked, got %d", len(result.Pages))
	}
	if result.DecisionLog[0].Trigger != TriggerIncrementalDisabled {
		t.Errorf("expected first log entry %s, got %s", TriggerIncrementalDisabled, result.DecisionLog[0].Trigger)
	}
}

func TestDecideSkipsWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(outDir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "assets", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte("<html></html>"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := writeTempPage(t, dir, "a.md", "hello")
	pages := []*content.Page{p}
	det := newDetectorWithFingerprint(t, pages)

	result := Decide(true, Options{
		Pages:     pages,
		Detector:  det,
		OutputDir: outDir,
	})

	if !result.Skip {
		t.Fatal("expected Skip when nothing changed and output present")
	}
}

func TestDecideOutputDirEmptyForcesFullRebuild(t *testing.T) {
	dir := t.TempDir()
	p := writeTempPage(t, dir, "a.md", "hello")
	pages := []*content.Page{p}
	det := newDetectorWithFingerprint(t, pages)

	emptyOut := filepath.Join(t.TempDir(), "missing")
	result := Decide(true, Options{
		Pages:     pages,
		Detector:  det,
		OutputDir: emptyOut,
	})

	if !result.FullRebuild {
		t.Fatal("expected FullRebuild when output dir is missing/empty")
	}
}

func TestDecideFingerprintCascadeMarksAllPages(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(outDir, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "assets", "site.css"), []byte("body{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p1 := writeTempPage(t, dir, "a.md", "hello")
	p2 := writeTempPage(t, dir, "b.md", "world")
	pages := []*content.Page{p1, p2}
	det := newDetectorWithFingerprint(t, pages)

	result := Decide(true, Options{
		Pages:     pages,
		Detector:  det,
		OutputDir: outDir,
		Assets:    []string{"site.css"},
		FingerprintedAssetChanged: func(changed []string) bool {
			return true
		},
	})

	if len(result.Pages) != 2 {
		t.Fatalf("expected both pages marked by fingerprint cascade, got %d", len(result.Pages))
	}
	for _, path := range result.Pages {
		if result.Reasons[path].Code != ReasonAssetFingerprintChanged {
			t.Errorf("expected %s reason for %s, got %s", ReasonAssetFingerprintChanged, path, result.Reasons[path].Code)
		}
	}
}

func TestCleanDeletedSourcesRemovesOutputAndEmptyDirs(t *testing.T) {
	outDir := t.TempDir()
	nested := filepath.Join(outDir, "blog", "old-post")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	outFile := filepath.Join(nested, "index.html")
	if err := os.WriteFile(outFile, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	bc := cache.NewBuildCache()
	bc.OutputSources[outFile] = "content/blog/old-post.md"
	bc.FileFingerprints["content/blog/old-post.md"] = cache.Fingerprint{}

	prov := cache.NewProvenanceCache()
	prov.Entries["content/blog/old-post.md"] = cache.ProvenanceEntry{CombinedHash: "x"}

	result := CleanDeletedSources(bc, prov, map[string]bool{}, outDir)

	if len(result.RemovedOutputs) != 1 {
		t.Fatalf("expected 1 removed output, got %d", len(result.RemovedOutputs))
	}
	if _, err := os.Stat(outFile); !os.IsNotExist(err) {
		t.Error("expected output file to be removed")
	}
	if _, err := os.Stat(filepath.Join(outDir, "blog")); !os.IsNotExist(err) {
		t.Error("expected now-empty blog directory to be removed")
	}
	if _, err := os.Stat(outDir); err != nil {
		t.Error("output root itself must never be removed")
	}
	if _, ok := bc.FileFingerprints["content/blog/old-post.md"]; ok {
		t.Error("expected BuildCache entry to be forgotten")
	}
	if _, ok := prov.Entries["content/blog/old-post.md"]; ok {
		t.Error("expected ProvenanceCache entry to be forgotten")
	}
}

func TestRunShadowReportsDivergence(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempPage(t, dir, "a.md", "hello")
	pages := []*content.Page{p1}

	legacyCache := cache.NewBuildCache()
	fp, _ := cache.FingerprintFile(p1.SourcePath)
	legacyCache.FileFingerprints[p1.SourcePath] = fp
	legacy := NewLegacyDetector(legacyCache)

	prov := cache.NewProvenanceCache()
	shadow := NewProvenanceFilter(prov, cache.NewBuildCache(), nil)

	out := RunShadow(legacy, shadow, pages, nil, nil, nil, nil)

	if len(out.Divergences) != 1 {
		t.Fatalf("expected 1 divergence (shadow has no prior provenance, legacy has matching fingerprint), got %d", len(out.Divergences))
	}
	if out.Divergences[0].SourcePath != p1.SourcePath {
		t.Errorf("unexpected divergent page: %s", out.Divergences[0].SourcePath)
	}
	if out.Result.DecisionLog[len(out.Result.DecisionLog)-1].Trigger != TriggerShadowDivergence {
		t.Error("expected a SHADOW_DIVERGENCE log entry on the authoritative legacy result")
	}
}
