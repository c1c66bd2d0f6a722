package build

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bengal-ssg/bengal/internal/buildctx"
	"github.com/bengal-ssg/bengal/internal/config"
)

// siteIndexFile and its sibling hash file, written to the output root.
const (
	siteIndexFile     = "index.json"
	siteIndexHashFile = "index.json.hash"
)

// SiteIndexPage is one page record in index.json.
type SiteIndexPage struct {
	ObjectID    string   `json:"objectID"`
	URL         string   `json:"url"`
	Href        string   `json:"href"`
	URI         string   `json:"uri"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Excerpt     string   `json:"excerpt"`
	Tags        []string `json:"tags"`
	Section     string   `json:"section"`
	WordCount   int      `json:"word_count"`
	ReadingTime int      `json:"reading_time"`
	Dir         string   `json:"dir"`
	Date        string   `json:"date,omitempty"`
	Lastmod     string   `json:"lastmod,omitempty"`
}

// SiteIndexSection summarizes one section's page count.
type SiteIndexSection struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SiteIndexTag summarizes one tag's usage count.
type SiteIndexTag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SiteIndex is the site-wide index.json document.
type SiteIndex struct {
	Site     SiteIndexMeta      `json:"site"`
	Pages    []SiteIndexPage    `json:"pages"`
	Sections []SiteIndexSection `json:"sections"`
	Tags     []SiteIndexTag     `json:"tags"`
}

// SiteIndexMeta is the site block of index.json. Build time is deliberately
// omitted: including it would change the serialized bytes of every build and
// defeat the unchanged-content fast path that leaves index.json untouched.
type SiteIndexMeta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	BaseURL     string `json:"baseurl"`
}

// BuildSiteIndex assembles the index document from accumulated page data.
// The caller is responsible for assembling the record list in either mode:
// "full" (every rendered page accumulated data this build) or "hybrid" (an
// incremental build rebuilt only some pages; rebuilt pages come from the
// context accumulators and the remainder is filled in from pages that were
// discovered but not rendered this cycle). Pages are sorted by URL, sections
// by name, tags by descending count.
func BuildSiteIndex(cfg *config.SiteConfig, records []buildctx.AccumulatedPageData) *SiteIndex {
	idx := &SiteIndex{
		Site: SiteIndexMeta{
			Title:       cfg.Title,
			Description: cfg.Description,
			BaseURL:     cfg.BaseURL,
		},
	}

	sectionCounts := make(map[string]int)
	tagCounts := make(map[string]int)

	for _, r := range records {
		p := SiteIndexPage{
			ObjectID:    objectID(r.URL),
			URL:         r.URL,
			Href:        r.Href,
			URI:         r.URL,
			Title:       r.Title,
			Description: r.Description,
			Excerpt:     r.Excerpt,
			Tags:        r.Tags,
			Section:     r.Section,
			WordCount:   r.WordCount,
			ReadingTime: r.ReadingTime,
			Dir:         indexDir(r.URL),
		}
		if p.Tags == nil {
			p.Tags = []string{}
		}
		if !r.Date.IsZero() {
			p.Date = r.Date.Format(time.RFC3339)
		}
		if !r.Lastmod.IsZero() {
			p.Lastmod = r.Lastmod.Format(time.RFC3339)
		}
		idx.Pages = append(idx.Pages, p)

		if r.Section != "" {
			sectionCounts[r.Section]++
		}
		for _, t := range r.Tags {
			tagCounts[t]++
		}
	}

	sort.Slice(idx.Pages, func(i, j int) bool { return idx.Pages[i].URL < idx.Pages[j].URL })

	for name, count := range sectionCounts {
		idx.Sections = append(idx.Sections, SiteIndexSection{Name: name, Count: count})
	}
	sort.Slice(idx.Sections, func(i, j int) bool { return idx.Sections[i].Name < idx.Sections[j].Name })

	for name, count := range tagCounts {
		idx.Tags = append(idx.Tags, SiteIndexTag{Name: name, Count: count})
	}
	sort.Slice(idx.Tags, func(i, j int) bool {
		if idx.Tags[i].Count != idx.Tags[j].Count {
			return idx.Tags[i].Count > idx.Tags[j].Count
		}
		return idx.Tags[i].Name < idx.Tags[j].Name
	})

	if idx.Pages == nil {
		idx.Pages = []SiteIndexPage{}
	}
	if idx.Sections == nil {
		idx.Sections = []SiteIndexSection{}
	}
	if idx.Tags == nil {
		idx.Tags = []SiteIndexTag{}
	}
	return idx
}

// WriteSiteIndex serializes idx and writes index.json plus its sibling
// .hash file atomically, skipping both when the serialized content is
// byte-identical to what the .hash file records from the last build (so an
// unchanged site leaves both files' mtimes untouched). Returns whether the
// files were (re)written.
func WriteSiteIndex(outputDir string, idx *SiteIndex) (bool, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return false, fmt.Errorf("marshaling site index: %w", err)
	}
	sum := sha256.Sum256(data)
	newHash := hex.EncodeToString(sum[:])

	hashPath := filepath.Join(outputDir, siteIndexHashFile)
	indexPath := filepath.Join(outputDir, siteIndexFile)
	if prev, err := os.ReadFile(hashPath); err == nil {
		if strings.TrimSpace(string(prev)) == newHash {
			if _, err := os.Stat(indexPath); err == nil {
				return false, nil
			}
		}
	}

	if err := writeFileAtomic(indexPath, data); err != nil {
		return false, fmt.Errorf("writing site index: %w", err)
	}
	if err := writeFileAtomic(hashPath, []byte(newHash+"\n")); err != nil {
		return false, fmt.Errorf("writing site index hash: %w", err)
	}
	return true, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// objectID derives a stable page identifier from its internal URL.
func objectID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:8])
}

// indexDir is the directory component of an internal URL: "/blog/post/" ->
// "/blog/".
func indexDir(url string) string {
	trimmed := strings.TrimSuffix(url, "/")
	i := strings.LastIndex(trimmed, "/")
	if i <= 0 {
		return "/"
	}
	return trimmed[:i+1]
}
