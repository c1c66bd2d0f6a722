package template

import (
	"sort"
	"strings"
	"testing"
)

func TestEngineImplementsProtocol(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	var _ EngineProtocol = eng
}

func TestTemplateDirsOrder(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "userlayouts")
	if err != nil {
		t.Fatal(err)
	}
	dirs := eng.TemplateDirs()
	if len(dirs) != 2 {
		t.Fatalf("expected user + theme dirs, got %v", dirs)
	}
	// User layouts resolve before theme layouts.
	if dirs[0] != "userlayouts" {
		t.Errorf("user layout dir should lead, got %v", dirs)
	}
}

func TestListTemplatesSortedUnique(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	names := eng.ListTemplates()
	if len(names) == 0 {
		t.Fatal("expected loaded templates")
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("names should be sorted: %v", names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate name %q", n)
		}
		seen[n] = true
	}
	if !seen["_default/single.html"] {
		t.Errorf("expected _default/single.html in %v", names)
	}
}

func TestTemplateExistsAndPath(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if !eng.TemplateExists("_default/single.html") {
		t.Error("expected single.html to exist")
	}
	if eng.TemplateExists("ghost.html") {
		t.Error("ghost.html should not exist")
	}
	p, ok := eng.TemplatePath("_default/single.html")
	if !ok || !strings.HasSuffix(p, "single.html") {
		t.Errorf("unexpected template path %q ok=%v", p, ok)
	}
	if _, ok := eng.TemplatePath("ghost.html"); ok {
		t.Error("unknown template should have no path")
	}
}

func TestRenderString(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	out, err := eng.RenderString(`Hello {{ .Title }}`, &PageContext{Title: "World"})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Hello World" {
		t.Errorf("got %q", out)
	}

	if _, err := eng.RenderString(`{{ broken`, &PageContext{}); err == nil {
		t.Error("expected parse error for broken inline template")
	}
}

func TestRenderStringInjectsBoundSite(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	eng.BindSite(&SiteContext{Title: "Injected"})

	out, err := eng.RenderString(`{{ .Site.Title }}`, &PageContext{})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Injected" {
		t.Errorf("expected bound site to be injected, got %q", out)
	}

	// An explicit site wins over the bound one.
	out, err = eng.RenderString(`{{ .Site.Title }}`, &PageContext{Site: &SiteContext{Title: "Explicit"}})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "Explicit" {
		t.Errorf("expected explicit site to win, got %q", out)
	}
}

func TestValidateCleanTheme(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if errs := eng.Validate(); len(errs) != 0 {
		t.Errorf("expected clean validation, got %v", errs)
	}
}

func TestCapabilities(t *testing.T) {
	eng, err := NewEngine(testdataThemePath(t), "")
	if err != nil {
		t.Fatal(err)
	}
	caps := eng.Capabilities()
	for _, flag := range []Capability{CapBlockCaching, CapBlockLevelDetection, CapIntrospection, CapPipelineOperators, CapPatternMatching} {
		if caps.Has(flag) {
			t.Errorf("html/template engine should not report capability %b", flag)
		}
	}
	combined := CapBlockCaching | CapIntrospection
	if !combined.Has(CapBlockCaching) || !combined.Has(CapIntrospection) || combined.Has(CapPatternMatching) {
		t.Error("Capability bit operations misbehave")
	}
}
