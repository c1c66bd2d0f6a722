// Package scaffold provides functions for creating new sites, posts, pages,
// and projects in the Bengal static site generator.
package scaffold

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

//go:embed seedimages
var seedImages embed.FS

// nowFunc is the function used to get the current time.
// It is a package-level variable so tests can override it.
var nowFunc = time.Now

// Slugify converts a title string into a URL-friendly slug.
// It lowercases the input, replaces spaces with hyphens, strips characters
// that are not letters, digits, or hyphens, collapses multiple hyphens,
// and trims leading/trailing hyphens. Unicode letters are preserved.
func Slugify(title string) string {
	// Normalize Unicode to NFC form (e.g., combining accents become precomposed).
	s := norm.NFC.String(title)
	s = strings.ToLower(s)

	// Replace spaces and underscores with hyphens.
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "_", "-")

	// Keep only letters, digits, and hyphens.
	var buf strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			buf.WriteRune(r)
		}
	}
	s = buf.String()

	// Collapse multiple consecutive hyphens.
	multiHyphen := regexp.MustCompile(`-{2,}`)
	s = multiHyphen.ReplaceAllString(s, "-")

	// Trim leading/trailing hyphens.
	s = strings.Trim(s, "-")

	return s
}

// NewSite creates a new site directory with the standard Bengal structure.
// It returns an error if the directory already exists.
// If themeFS is non-nil, theme files are extracted from it into themes/.
func NewSite(name string, themeFS fs.FS) error {
	// Check if directory already exists.
	if _, err := os.Stat(name); err == nil {
		return fmt.Errorf("directory %q already exists", name)
	}

	// Create the directory structure.
	dirs := []string{
		filepath.Join(name, "content", "blog"),
		filepath.Join(name, "content", "projects"),
		filepath.Join(name, "content", "pages"),
		filepath.Join(name, "layouts"),
		filepath.Join(name, "static"),
		filepath.Join(name, "data"),
		filepath.Join(name, "assets"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}

	// Write bengal.toml (the CLI's default config name). Use the base name
	// of the path as the title. Incremental builds with the unified change
	// detector are on from the start, so `bengal build` after the first run
	// only touches what changed.
	siteTitle := filepath.Base(name)
	configContent := fmt.Sprintf(`title = "%s"
baseURL = "http://localhost:1313"
language = "en"
theme = "default"

[author]
name = "Your Name"
email = ""

[build]
incremental = true
use_unified_change_detector = true

[[menu.main]]
name = "Home"
url = "/"
weight = 1

[[menu.main]]
name = "Blog"
url = "/blog/"
weight = 2

[[menu.main]]
name = "Docs"
url = "/docs/"
weight = 3

[[menu.main]]
name = "About"
url = "/about/"
weight = 4
`, siteTitle)

	configPath := filepath.Join(name, "bengal.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing bengal.toml: %w", err)
	}

	// Write sample about page.
	now := nowFunc()
	aboutContent := fmt.Sprintf(`---
title: "About"
date: %s
layout: "page"
description: ""
---

Write your page content here.
`, now.Format(time.RFC3339))

	aboutPath := filepath.Join(name, "content", "about.md")
	if err := os.WriteFile(aboutPath, []byte(aboutContent), 0o644); err != nil {
		return fmt.Errorf("writing about.md: %w", err)
	}

	// Write sample blog post.
	datePrefix := now.Format("2006-01-02")
	postContent := fmt.Sprintf(`---
title: "Hello World"
date: %s
draft: true
tags: []
categories: []
description: ""
---

Write your post content here.
`, now.Format(time.RFC3339))

	postPath := filepath.Join(name, "content", "blog", datePrefix+"-hello-world.md")
	if err := os.WriteFile(postPath, []byte(postContent), 0o644); err != nil {
		return fmt.Errorf("writing hello-world.md: %w", err)
	}

	// Extract theme files from embedded FS if provided.
	if themeFS != nil {
		themeDst := filepath.Join(name, "themes")
		if err := extractFS(themeFS, "themes", themeDst); err != nil {
			return fmt.Errorf("extracting default theme: %w", err)
		}
	}

	return nil
}

// NewSiteSeeded creates a new site (like NewSite) and then pre-populates it
// with a kitchen-sink set of sample content so the full theme can be exercised
// immediately after running `bengal serve`.
func NewSiteSeeded(name string, themeFS fs.FS) error {
	if err := NewSite(name, themeFS); err != nil {
		return err
	}

	now := nowFunc()

	type seedFile struct {
		path    string
		content string
	}

	files := []seedFile{
		// Homepage
		{
			path: filepath.Join(name, "content", "_index.md"),
			content: `---
title: "Welcome"
description: "A sample Bengal site seeded with content that exercises the engine."
---

This site was generated with ` + "`bengal new site --seed`" + `. The blog shows page
bundles with cover images, the docs section shows cascading frontmatter, and
every edit you make rebuilds incrementally under ` + "`bengal serve`" + `.
`,
		},
		// Blog section listing, with a cascade every post inherits.
		{
			path: filepath.Join(name, "content", "blog", "_index.md"),
			content: `---
title: "Blog"
description: "Thoughts, tutorials, and notes."
cascade:
  section_label: "Blog"
---
`,
		},
		// About page (override the stub written by NewSite)
		{
			path: filepath.Join(name, "content", "about.md"),
			content: fmt.Sprintf(`---
title: "About"
date: %s
layout: "page"
description: "Learn more about this site and its author."
---

This site is generated with [Bengal](https://github.com/bengal-ssg/bengal), a
static site generator written in Go that rebuilds only what changed. Replace
this page with your own story.
`, now.Format(time.RFC3339)),
		},
		// One blog post ships as a page bundle (index.md + hero.png, written
		// below); the docs section demonstrates cascading frontmatter.
		// Project page
		{
			path: filepath.Join(name, "content", "projects", "bengal.md"),
			content: `---
title: "Bengal"
date: 2025-01-01T00:00:00Z
description: "A fast, opinionated static site generator written in Go."
params:
  tech: ["Go", "HTML", "Tailwind CSS"]
  github: "https://github.com/bengal-ssg/bengal"
  demo: "https://example.com"
---

Bengal turns Markdown into a complete website: parallel rendering, incremental
rebuilds driven by content fingerprints, live reload during development, and
feeds, sitemap, and a search index generated from the same build pass.
`,
		},
		// Docs section with cascading frontmatter: every page under docs/
		// inherits section_label and doc_style from the section index
		// without repeating them, and a page can still override either key.
		{
			path: filepath.Join(name, "content", "docs", "_index.md"),
			content: `---
title: "Documentation"
description: "Guides and reference for this site."
cascade:
  section_label: "Docs"
  doc_style: "guide"
---

Everything under this section inherits the cascade values above.
`,
		},
		{
			path: filepath.Join(name, "content", "docs", "writing-content.md"),
			content: `---
title: "Writing Content"
date: 2025-02-01T09:00:00Z
tags: ["docs"]
description: "Where content lives and how it becomes pages."
---

Content lives under ` + "`content/`" + ` as Markdown files with YAML or TOML
frontmatter. A directory's ` + "`_index.md`" + ` defines its section and may carry a
` + "`cascade`" + ` block whose values flow into every descendant page — this page's
` + "`section_label`" + ` comes from the section index, not its own frontmatter.
`,
		},
		{
			path: filepath.Join(name, "content", "docs", "incremental-builds.md"),
			content: `---
title: "Incremental Builds"
date: 2025-02-02T09:00:00Z
tags: ["docs"]
description: "How Bengal rebuilds only what changed."
---

With ` + "`incremental = true`" + ` in ` + "`bengal.toml`" + `, Bengal fingerprints every
source and rebuilds only pages whose inputs changed — plus their prev/next
neighbours, whose navigation links embed the edited title. Editing this
page's ` + "`cascade`" + `-inherited values in the section index rebuilds every page
in the section; editing only the index body rebuilds the index alone.

Run ` + "`bengal build --explain`" + ` to see why each page was rebuilt.
`,
		},
		// Skills data file
		{
			path: filepath.Join(name, "data", "skills.yaml"),
			content: `- category: "Languages"
  items: ["Go", "TypeScript", "Python", "SQL"]
- category: "Infrastructure"
  items: ["AWS", "Cloudflare", "Docker", "Terraform"]
- category: "Tools"
  items: ["Git", "Vim", "Postgres", "Redis"]
`,
		},
	}

	for _, f := range files {
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, []byte(f.content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}

	// Write the page-bundle post (index.md + hero.png).
	type bundlePost struct {
		dir       string
		indexMd   string
		embedName string
	}

	bundles := []bundlePost{
		{
			dir: filepath.Join(name, "content", "blog", "2025-02-10-building-static-sites"),
			indexMd: `---
title: "Building Static Sites with Bengal"
date: 2025-02-10T10:00:00Z
tags: ["go", "web"]
categories: ["tools"]
description: "How Bengal turns Markdown files into a fast static website."
cover:
  image: hero.png
  alt: "Indigo banner for Building Static Sites with Bengal"
---

Bengal reads Markdown from ` + "`content/`" + `, renders pages in parallel, and
writes plain HTML to ` + "`public/`" + ` — ready for any CDN or object store.

## What You Get

- **Incremental builds** — after the first build, only changed pages (and the
  pages whose navigation embeds them) re-render; ` + "`--explain`" + ` shows why
- **Cascading frontmatter** — a section ` + "`_index.md`" + ` can declare values every
  descendant page inherits (see the docs section of this seed site)
- **Live reload** — ` + "`bengal serve`" + ` watches sources and reloads the browser,
  rebuilding just the files you touched
- **Feeds, sitemap, search** — RSS/Atom, sitemap.xml, and a client-side
  search index come out of the same build data, with no extra passes

## Getting Started

` + "```sh" + `
bengal new site mysite --seed
cd mysite
bengal serve
` + "```" + `

Open [http://localhost:1313](http://localhost:1313) and start editing — saves
show up in the browser before you can switch windows.
`,
			embedName: "seedimages/hero-static-sites.png",
		},
	}

	for _, b := range bundles {
		if err := os.MkdirAll(b.dir, 0o755); err != nil {
			return fmt.Errorf("creating bundle directory %s: %w", b.dir, err)
		}
		indexPath := filepath.Join(b.dir, "index.md")
		if err := os.WriteFile(indexPath, []byte(b.indexMd), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", indexPath, err)
		}
		imgPath := filepath.Join(b.dir, "hero.png")
		if err := writeSeedImage(imgPath, b.embedName); err != nil {
			return fmt.Errorf("writing hero image for %s: %w", b.dir, err)
		}
	}

	return nil
}

// writeSeedImage copies an embedded seed image to dest on disk.
func writeSeedImage(dest, embedPath string) error {
	data, err := seedImages.ReadFile(embedPath)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// extractFS copies all files from srcDir within src into dstDir on disk.
func extractFS(src fs.FS, srcDir, dstDir string) error {
	return fs.WalkDir(src, srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		return os.WriteFile(dst, data, 0o644)
	})
}

// RefreshTheme re-extracts theme files from the embedded FS into the site's
// themes/ directory, overwriting existing files. This brings the on-disk theme
// in sync with the version embedded in the current binary.
func RefreshTheme(siteRoot string, themeFS fs.FS) error {
	themeDst := filepath.Join(siteRoot, "themes")
	return extractFS(themeFS, "themes", themeDst)
}

// NewPost creates a new blog post file at content/blog/YYYY-MM-DD-slug.md.
func NewPost(title string) error {
	now := nowFunc()
	stub := fmt.Sprintf(`---
title: "%s"
date: %s
draft: true
tags: []
categories: []
description: ""
---

Write your post content here.
`, title, now.Format(time.RFC3339))
	return writeContentStub(CreatedPostPath(title), stub)
}

// NewPage creates a new page file at content/pages/slug.md.
func NewPage(title string) error {
	now := nowFunc()
	stub := fmt.Sprintf(`---
title: "%s"
date: %s
layout: "page"
description: ""
---

Write your page content here.
`, title, now.Format(time.RFC3339))
	return writeContentStub(CreatedPagePath(title), stub)
}

// NewProject creates a new project file at content/projects/slug.md.
func NewProject(title string) error {
	now := nowFunc()
	stub := fmt.Sprintf(`---
title: "%s"
date: %s
draft: true
description: ""
params:
  tech: []
  github: ""
  demo: ""
---

Describe your project here.
`, title, now.Format(time.RFC3339))
	return writeContentStub(CreatedProjectPath(title), stub)
}

// writeContentStub writes a frontmatter stub to path, creating parent
// directories as needed.
func writeContentStub(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory %q: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %q: %w", path, err)
	}
	return nil
}

// CreatedPostPath returns the file path NewPost creates for the given
// title, for success messages and tests.
func CreatedPostPath(title string) string {
	datePrefix := nowFunc().Format("2006-01-02")
	return filepath.Join("content", "blog", fmt.Sprintf("%s-%s.md", datePrefix, Slugify(title)))
}

// CreatedPagePath returns the file path NewPage creates for the given title.
func CreatedPagePath(title string) string {
	return filepath.Join("content", "pages", Slugify(title)+".md")
}

// CreatedProjectPath returns the file path NewProject creates for the given
// title.
func CreatedProjectPath(title string) string {
	return filepath.Join("content", "projects", Slugify(title)+".md")
}
