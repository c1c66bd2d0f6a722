package content

import "strings"

// BuildSectionTree organizes a flat slice of pages (as produced by Discover)
// into a Section hierarchy rooted at the content directory. Each page is
// attached to the Section matching its SourceDir; directories with no
// _index.md still get a Section node (with a nil IndexPage) so that
// navigation and cascade lookups work uniformly. After the tree is built, ApplyCascade propagates every
// section's cascade dict down into its descendant pages' Metadata.
func BuildSectionTree(pages []*Page) *Section {
	root := &Section{Name: "", Path: ""}
	sections := map[string]*Section{"": root}

	var ensureSection func(path string) *Section
	ensureSection = func(path string) *Section {
		if s, ok := sections[path]; ok {
			return s
		}
		parentPath, name := splitSectionPath(path)
		parent := ensureSection(parentPath)
		s := &Section{Name: name, Path: path, Parent: parent}
		parent.Subsections = append(parent.Subsections, s)
		sections[path] = s
		return s
	}

	for _, p := range pages {
		switch p.Type {
		case PageTypeHome:
			root.IndexPage = p
			p.SectionNode = root
			if p.Metadata != nil {
				root.Metadata = p.Metadata
			}
		case PageTypeList:
			s := ensureSection(p.SourceDir)
			s.IndexPage = p
			p.SectionNode = s
			if p.Metadata != nil {
				s.Metadata = p.Metadata
			}
		default:
			s := ensureSection(p.SourceDir)
			s.Pages = append(s.Pages, p)
			p.SectionNode = s
		}
	}

	root.ApplyCascade(nil)
	return root
}

// splitSectionPath splits a slash-separated section path into its parent
// path and its own name, e.g. "blog/2024" -> ("blog", "2024").
func splitSectionPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
