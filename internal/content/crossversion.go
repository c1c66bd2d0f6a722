package content

import (
	"regexp"
	"strings"
)

// CrossVersionLink is one [[vX:path]] reference found in a page body: a link
// from the page into another docs version. These links are collected during
// discovery and persisted as dependency edges so that editing the target
// page triggers a rebuild of every page linking to it, even across versions.
type CrossVersionLink struct {
	TargetVersion string
	TargetPath    string
}

// crossVersionPattern matches [[v1:docs/guide]] style links. The version tag
// is anything up to the first colon; the path is the remainder.
var crossVersionPattern = regexp.MustCompile(`\[\[([^:\[\]]+):([^\[\]]+)\]\]`)

// ExtractCrossVersionLinks scans raw markdown for [[version:path]] links and
// returns them with normalized target paths, de-duplicated in first-seen
// order.
func ExtractCrossVersionLinks(raw string) []CrossVersionLink {
	matches := crossVersionPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[CrossVersionLink]bool, len(matches))
	out := make([]CrossVersionLink, 0, len(matches))
	for _, m := range matches {
		link := CrossVersionLink{
			TargetVersion: strings.TrimSpace(m[1]),
			TargetPath:    NormalizeVersionPath(strings.TrimSpace(m[2])),
		}
		if link.TargetVersion == "" || link.TargetPath == "" || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}

// NormalizeVersionPath canonicalizes a cross-version target path so links
// written with or without a leading slash, trailing slash, or .md extension
// all resolve to the same dependency key: "docs/guide.md", "/docs/guide/"
// and "docs/guide" are the same target.
func NormalizeVersionPath(p string) string {
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, ".md")
	p = strings.TrimSuffix(p, "/_index")
	return p
}

// ResolveCrossVersionTarget maps a normalized target path plus version onto
// the source path of the page it refers to, using each candidate page's own
// normalized source path. Returns "" when no page matches (a broken link —
// reported by the health-check phase, not an error here).
func ResolveCrossVersionTarget(pages []*Page, version, normalizedPath string) string {
	for _, p := range pages {
		if p.Version != version {
			continue
		}
		if NormalizeSourcePath(p.SourcePath, version) == normalizedPath {
			return p.SourcePath
		}
	}
	return ""
}

// NormalizeSourcePath reduces a page's source path to the same canonical
// form NormalizeVersionPath produces for link targets: version prefix and
// .md extension stripped. "v1/docs/guide.md" with version "v1" becomes
// "docs/guide".
func NormalizeSourcePath(sourcePath, version string) string {
	p := strings.Trim(sourcePath, "/")
	if version != "" {
		p = strings.TrimPrefix(p, version+"/")
	}
	return NormalizeVersionPath(p)
}
