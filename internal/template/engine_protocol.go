package template

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
)

// Compile-time check that the html/template-backed Engine satisfies the
// pluggable engine surface.
var _ EngineProtocol = (*Engine)(nil)

// BindSite records the site context that RenderTemplate/RenderString inject
// into any PageContext arriving without one. Called once per build, before
// the render phase starts.
func (e *Engine) BindSite(site *SiteContext) {
	e.site = site
}

// TemplateDirs returns the layout directories in resolution order.
func (e *Engine) TemplateDirs() []string {
	out := make([]string, len(e.dirs))
	copy(out, e.dirs)
	return out
}

// RenderTemplate executes the named template against ctx, injecting the
// bound site context when ctx carries none.
func (e *Engine) RenderTemplate(name string, ctx *PageContext) ([]byte, error) {
	e.inject(ctx)
	return e.Execute(name, ctx)
}

// RenderString parses tpl as a one-off template (with the engine's full
// function map, so inline templates can call partial/markdownify/etc.) and
// executes it against ctx.
func (e *Engine) RenderString(tpl string, ctx *PageContext) ([]byte, error) {
	e.inject(ctx)
	t, err := template.New("inline").Funcs(e.funcMap).Parse(tpl)
	if err != nil {
		return nil, fmt.Errorf("parsing inline template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("executing inline template: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Engine) inject(ctx *PageContext) {
	if ctx != nil && ctx.Site == nil {
		ctx.Site = e.site
	}
}

// TemplateExists reports whether name is loaded.
func (e *Engine) TemplateExists(name string) bool {
	return e.HasTemplate(name)
}

// TemplatePath returns the file the named template was loaded from.
func (e *Engine) TemplatePath(name string) (string, bool) {
	p, ok := e.paths[name]
	return p, ok
}

// ListTemplates returns every loaded template name, sorted and unique.
func (e *Engine) ListTemplates() []string {
	names := make([]string, 0, len(e.paths))
	for n := range e.paths {
		names = append(names, n)
	}
	return sortedUniqueNames(names)
}

// Validate re-parses every loaded template file from disk and returns one
// error per file that no longer parses. NewEngine already rejects broken
// templates at load time; the orchestrator calls Validate only in strict
// mode, right after NewEngine, so it catches a file changed between the two.
func (e *Engine) Validate() []error {
	var errs []error
	for name, path := range e.paths {
		content, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading template %s: %w", name, err))
			continue
		}
		if _, err := template.New(name).Funcs(e.funcMap).Parse(string(content)); err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", name, err))
		}
	}
	return errs
}

// Capabilities reports what html/template can do: none of the optional
// flags. Block-level features and introspection would require parsing the
// template AST, which html/template does not expose.
func (e *Engine) Capabilities() Capability {
	return 0
}
