package build

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bengal-ssg/bengal/internal/builderr"
	"github.com/bengal-ssg/bengal/internal/cache"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/incremental"
)

// scaffoldSite lays out a minimal project: three dated blog posts, a theme
// with default templates, and one CSS asset.
func scaffoldSite(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(rel, body string) {
		t.Helper()
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("content/blog/p1.md", "---\ntitle: Post One\ndate: 2025-01-01\ntags: [go]\n---\nfirst body\n")
	write("content/blog/p2.md", "---\ntitle: Post Two\ndate: 2025-02-01\ntags: [go]\n---\nsecond body\n")
	write("content/blog/p3.md", "---\ntitle: Post Three\ndate: 2025-03-01\n---\nthird body\n")

	single := `<html><body><h1>{{ .Title }}</h1>{{ .Content }}</body></html>`
	list := `<html><body><h1>{{ .Title }}</h1></body></html>`
	write("themes/default/layouts/_default/single.html", single)
	write("themes/default/layouts/_default/list.html", list)
	write("themes/default/layouts/index.html", list)
	write("themes/default/static/css/style.css", "body { color: black; }\n")

	return root
}

func testConfig() *config.SiteConfig {
	cfg := config.Default()
	cfg.Title = "Test Site"
	return cfg
}

func newTestOrchestrator(root string, cfg *config.SiteConfig) *Orchestrator {
	return NewOrchestrator(cfg, BuildOptions{ProjectRoot: root})
}

func runFull(t *testing.T, o *Orchestrator) *OrchestratorResult {
	t.Helper()
	result, err := o.Run(RunOptions{Incremental: false, Parallel: true})
	if err != nil {
		t.Fatalf("full build failed: %v", err)
	}
	return result
}

func TestOrchestratorFullBuildProducesOutputs(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	result := runFull(t, o)

	if result.Skipped {
		t.Fatal("first build must not skip")
	}
	expect := []string{
		"public/blog/p1/index.html",
		"public/blog/p2/index.html",
		"public/blog/p3/index.html",
		"public/index.html",
		"public/sitemap.xml",
		"public/index.json",
		"public/index.json.hash",
		"public/assets/css/style.css",
		".bengal/cache.json",
		".bengal/provenance/provenance.json",
		".bengal/page_metadata.json",
	}
	for _, rel := range expect {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}

	// A fingerprinted copy of the CSS must exist alongside the plain copy.
	entries, err := os.ReadDir(filepath.Join(root, "public", "assets", "css"))
	if err != nil {
		t.Fatal(err)
	}
	foundFingerprinted := false
	for _, e := range entries {
		if e.Name() != "style.css" && strings.HasPrefix(e.Name(), "style.") && strings.HasSuffix(e.Name(), ".css") {
			foundFingerprinted = true
		}
	}
	if !foundFingerprinted {
		t.Error("expected a fingerprinted style.<hash>.css in assets output")
	}

	data, err := os.ReadFile(filepath.Join(root, "public", "blog", "p2", "index.html"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Post Two") {
		t.Errorf("rendered page missing title: %s", data)
	}
}

func TestOrchestratorUnchangedIncrementalBuildSkips(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	result, err := o.Run(RunOptions{Incremental: true, Parallel: true})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Fatalf("unchanged incremental build must skip; filter=%+v", result.Filter)
	}
}

func TestOrchestratorIdempotentSiteIndex(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	indexPath := filepath.Join(root, "public", "index.json")
	hashPath := indexPath + ".hash"
	before, err := os.Stat(indexPath)
	if err != nil {
		t.Fatal(err)
	}
	hashBefore, err := os.Stat(hashPath)
	if err != nil {
		t.Fatal(err)
	}

	// A second full build with unchanged content must leave both untouched.
	runFull(t, o)
	after, _ := os.Stat(indexPath)
	hashAfter, _ := os.Stat(hashPath)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("index.json rewritten despite unchanged content")
	}
	if !hashAfter.ModTime().Equal(hashBefore.ModTime()) {
		t.Error("index.json.hash rewritten despite unchanged content")
	}
}

// Scenario A: a body-only edit rebuilds the edited page plus its prev/next
// adjacents, and nothing else.
func TestOrchestratorBodyEditRebuildsPageAndAdjacents(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	p2 := filepath.Join(root, "content", "blog", "p2.md")
	if err := os.WriteFile(p2, []byte("---\ntitle: Post Two\ndate: 2025-02-01\ntags: [go]\n---\nedited body\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := o.Run(RunOptions{Incremental: true, Parallel: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Fatal("edit must not be skipped")
	}

	got := map[string]string{}
	for src, reason := range result.Filter.Reasons {
		got[src] = reason.Code
	}
	if got["blog/p2.md"] != incremental.ReasonContentChanged {
		t.Errorf("edited page reason = %q", got["blog/p2.md"])
	}
	// p1 and p3 are p2's date-sorted neighbors.
	if got["blog/p1.md"] != incremental.ReasonAdjacentNavChanged {
		t.Errorf("prev adjacent reason = %q", got["blog/p1.md"])
	}
	if got["blog/p3.md"] != incremental.ReasonAdjacentNavChanged {
		t.Errorf("next adjacent reason = %q", got["blog/p3.md"])
	}
	if result.Filter.FullRebuild {
		t.Error("a body edit must not force a full rebuild")
	}
}

// Scenario C: a config change forces a full rebuild.
func TestOrchestratorConfigChangeForcesFullRebuild(t *testing.T) {
	root := scaffoldSite(t)
	configPath := filepath.Join(root, "bengal.toml")
	if err := os.WriteFile(configPath, []byte("title = \"Test Site\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := newTestOrchestrator(root, testConfig())
	if _, err := o.Run(RunOptions{Incremental: false, Parallel: true, ConfigPath: configPath}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(configPath, []byte("title = \"Test Site\"\nbaseURL = \"https://example.com\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := o.Run(RunOptions{Incremental: true, Parallel: true, ConfigPath: configPath})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Filter.FullRebuild {
		t.Error("config change must force a full rebuild")
	}
	if !result.ConfigCheck.ConfigChanged || result.ConfigCheck.Incremental {
		t.Errorf("expected ConfigCheckResult{ConfigChanged:true, Incremental:false}, got %+v", result.ConfigCheck)
	}
	found := false
	for _, e := range result.Filter.DecisionLog {
		if e.Trigger == incremental.TriggerIncrementalDisabled {
			found = true
		}
	}
	if !found {
		t.Errorf("expected INCREMENTAL_DISABLED in decision log, got %+v", result.Filter.DecisionLog)
	}
}

// Scenario E: deleting a source removes its output and cache entries.
func TestOrchestratorDeletedSourceCleanup(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	out := filepath.Join(root, "public", "blog", "p3", "index.html")
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("precondition: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "content", "blog", "p3.md")); err != nil {
		t.Fatal(err)
	}

	if _, err := o.Run(RunOptions{Incremental: true, Parallel: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("deleted source's output should be removed")
	}

	bc, err := cache.LoadBuildCache(filepath.Join(root, ".bengal", "cache.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := bc.FileFingerprints["blog/p3.md"]; ok {
		t.Error("deleted source's fingerprint should be scrubbed from the cache")
	}
}

// Scenario F: two sources claiming the same URL at the same priority is a
// fatal collision.
func TestOrchestratorURLCollisionIsFatal(t *testing.T) {
	root := scaffoldSite(t)
	write := func(rel, body string) {
		full := filepath.Join(root, rel)
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("content/blog/dup1.md", "---\ntitle: Dup One\nslug: same\n---\nbody\n")
	write("content/blog/dup2.md", "---\ntitle: Dup Two\nslug: same\n---\nbody\n")

	o := newTestOrchestrator(root, testConfig())
	_, err := o.Run(RunOptions{Incremental: false, Parallel: true})
	if err == nil {
		t.Fatal("expected URL collision error")
	}
	var be *builderr.Error
	if !errors.As(err, &be) || be.Kind != builderr.KindURL {
		t.Fatalf("expected KindURL build error, got %v", err)
	}
	if !strings.Contains(err.Error(), "dup1.md") || !strings.Contains(err.Error(), "dup2.md") {
		t.Errorf("collision diagnostic should name both sources: %v", err)
	}
}

// The CSS fingerprint cascade (Scenario B): editing a stylesheet rebuilds
// every page and produces a new fingerprinted asset, cleaning the old one.
func TestOrchestratorCSSChangeCascades(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	cssDir := filepath.Join(root, "public", "assets", "css")
	oldNames := fingerprintedNames(t, cssDir)
	if len(oldNames) != 1 {
		t.Fatalf("expected one fingerprinted css, got %v", oldNames)
	}

	cssPath := filepath.Join(root, "themes", "default", "static", "css", "style.css")
	if err := os.WriteFile(cssPath, []byte("body { color: rebeccapurple; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := o.Run(RunOptions{Incremental: true, Parallel: true})
	if err != nil {
		t.Fatal(err)
	}
	foundCascade := false
	for _, e := range result.Filter.DecisionLog {
		if e.Trigger == incremental.TriggerFingerprintCascade {
			foundCascade = true
		}
	}
	if !foundCascade {
		t.Errorf("expected FINGERPRINT_CASCADE, log=%+v", result.Filter.DecisionLog)
	}
	for _, src := range []string{"blog/p1.md", "blog/p2.md", "blog/p3.md"} {
		if _, ok := result.Filter.Reasons[src]; !ok {
			t.Errorf("expected %s in rebuild set after CSS change", src)
		}
	}

	newNames := fingerprintedNames(t, cssDir)
	if len(newNames) != 1 {
		t.Fatalf("expected exactly one fingerprinted css after rebuild, got %v", newNames)
	}
	if newNames[0] == oldNames[0] {
		t.Error("expected a new fingerprint after the CSS edit")
	}
}

func fingerprintedNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if name != "style.css" && strings.HasPrefix(name, "style.") && strings.HasSuffix(name, ".css") {
			out = append(out, name)
		}
	}
	return out
}

func TestOrchestratorProvenanceDetectorPath(t *testing.T) {
	root := scaffoldSite(t)
	cfg := testConfig()
	cfg.Build.UseUnifiedChangeDetector = true
	o := newTestOrchestrator(root, cfg)
	runFull(t, o)

	// Unchanged rerun skips under the provenance detector too.
	result, err := o.Run(RunOptions{Incremental: true, Parallel: true})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Fatalf("unchanged provenance build must skip; pages=%v", result.Filter.Pages)
	}

	// A body edit is caught by the combined hash.
	p1 := filepath.Join(root, "content", "blog", "p1.md")
	if err := os.WriteFile(p1, []byte("---\ntitle: Post One\ndate: 2025-01-01\ntags: [go]\n---\nchanged\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err = o.Run(RunOptions{Incremental: true, Parallel: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.Filter.Reasons["blog/p1.md"]; !ok {
		t.Errorf("provenance filter missed a body edit: %v", result.Filter.Pages)
	}
}

func TestOrchestratorForcedChangedRendersFirst(t *testing.T) {
	root := scaffoldSite(t)
	o := newTestOrchestrator(root, testConfig())
	runFull(t, o)

	result, err := o.Run(RunOptions{
		Incremental:   true,
		Parallel:      true,
		ForcedChanged: map[string]bool{"blog/p1.md": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Filter.Reasons["blog/p1.md"].Code != incremental.ReasonForced {
		t.Errorf("watcher-reported page should carry FORCED, got %+v", result.Filter.Reasons["blog/p1.md"])
	}
}

func TestOrchestratorMenuCycleIsFatal(t *testing.T) {
	root := scaffoldSite(t)
	cfg := testConfig()
	cfg.Menu.Main = []config.MenuItem{
		{Identifier: "a", Name: "A", Parent: "b"},
		{Identifier: "b", Name: "B", Parent: "a"},
	}
	o := newTestOrchestrator(root, cfg)
	_, err := o.Run(RunOptions{Incremental: false, Parallel: true})
	if err == nil {
		t.Fatal("expected menu cycle to abort the build")
	}
	var be *builderr.Error
	if !errors.As(err, &be) || be.Kind != builderr.KindMenuCycle {
		t.Fatalf("expected KindMenuCycle, got %v", err)
	}
}

func TestOrderPagesForcedFirstWithoutLPT(t *testing.T) {
	pages := []*content.Page{
		{SourcePath: "a.md"},
		{SourcePath: "b.md"},
		{SourcePath: "c.md"},
	}
	ordered := orderPages(pages, map[string]bool{"c.md": true}, false, 0)
	if ordered[0].SourcePath != "c.md" {
		t.Errorf("forced page should render first, got %s", ordered[0].SourcePath)
	}
	// Discovery order preserved among the rest when LPT is off.
	if ordered[1].SourcePath != "a.md" || ordered[2].SourcePath != "b.md" {
		t.Errorf("unexpected non-forced order: %s, %s", ordered[1].SourcePath, ordered[2].SourcePath)
	}
}
