package build

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bengal-ssg/bengal/internal/buildctx"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/bengal-ssg/bengal/internal/content"
	"github.com/bengal-ssg/bengal/internal/feed"
	"github.com/bengal-ssg/bengal/internal/search"
	"github.com/bengal-ssg/bengal/internal/seo"
)

// writeAncillaryOutputs generates the non-page outputs every build produces:
// sitemap.xml, robots.txt, RSS/Atom feeds, the search index, and alias
// redirect pages. The sitemap and search index derive from the accumulated
// per-page records; the feeds need rendered bodies and summaries, which the
// records don't carry, so they read the in-memory pages. Shared by the
// single-pass Builder and the phased Orchestrator's postprocess phase.
// Counts are accumulated onto result.
func writeAncillaryOutputs(cfg *config.SiteConfig, outputDir, baseURL string, pages []*content.Page, records []buildctx.AccumulatedPageData, result *BuildResult) error {
	// Collect non-draft pages for the feeds and rendered-body lookups.
	var nonDraftPages []*content.Page
	for _, p := range pages {
		if !p.Draft {
			nonDraftPages = append(nonDraftPages, p)
		}
	}

	// Generate sitemap.xml from the accumulated records.
	sitemapData, err := seo.GenerateSitemap(seo.EntriesFromRecords(records))
	if err != nil {
		return fmt.Errorf("generating sitemap: %w", err)
	}
	if err := writeDirectFile(outputDir, "sitemap.xml", sitemapData); err != nil {
		return fmt.Errorf("writing sitemap.xml: %w", err)
	}
	result.StaticFiles++

	// Generate robots.txt.
	sitemapURL := strings.TrimRight(baseURL, "/") + "/sitemap.xml"
	robotsData := seo.GenerateRobotsTxt(sitemapURL, nil)
	if err := writeDirectFile(outputDir, "robots.txt", robotsData); err != nil {
		return fmt.Errorf("writing robots.txt: %w", err)
	}
	result.StaticFiles++

	// Collect feed posts (non-draft, configured sections, sorted by date
	// desc).
	feedSections := cfg.Feeds.Sections
	if len(feedSections) == 0 {
		feedSections = []string{"blog"}
	}
	var feedPages []*content.Page
	for _, p := range nonDraftPages {
		if slices.Contains(feedSections, p.Section) {
			feedPages = append(feedPages, p)
		}
	}
	sort.SliceStable(feedPages, func(i, j int) bool {
		return feedPages[i].Date.After(feedPages[j].Date)
	})

	// Convert pages to FeedItems.
	feedItems := make([]feed.FeedItem, 0, len(feedPages))
	for _, p := range feedPages {
		feedItems = append(feedItems, feed.FeedItem{
			Title:       p.Title,
			Link:        p.Permalink,
			Description: p.Summary,
			Content:     p.Content,
			Author:      p.Author,
			PubDate:     p.Date,
			GUID:        p.Permalink,
			Categories:  append(p.Tags, p.Categories...),
		})
	}

	feedOpts := feed.FeedOptions{
		Title:       cfg.Title,
		Description: cfg.Description,
		Link:        strings.TrimRight(baseURL, "/"),
		Language:    cfg.Language,
		Author:      cfg.Author.Name,
		MaxItems:    cfg.Feeds.Limit,
		FullContent: cfg.Feeds.FullContent,
	}

	// Generate RSS feed (index.xml).
	if cfg.Feeds.RSS {
		feedOpts.FeedLink = strings.TrimRight(baseURL, "/") + "/index.xml"
		rssData, err := feed.GenerateRSS(feedItems, feedOpts)
		if err != nil {
			return fmt.Errorf("generating RSS feed: %w", err)
		}
		if err := writeDirectFile(outputDir, "index.xml", rssData); err != nil {
			return fmt.Errorf("writing index.xml: %w", err)
		}
		result.StaticFiles++
	}

	// Generate Atom feed (atom.xml).
	if cfg.Feeds.Atom {
		feedOpts.FeedLink = strings.TrimRight(baseURL, "/") + "/atom.xml"
		atomData, err := feed.GenerateAtom(feedItems, feedOpts)
		if err != nil {
			return fmt.Errorf("generating Atom feed: %w", err)
		}
		if err := writeDirectFile(outputDir, "atom.xml", atomData); err != nil {
			return fmt.Errorf("writing atom.xml: %w", err)
		}
		result.StaticFiles++
	}

	// Generate search index (search-index.json) from the records, with
	// rendered bodies looked up by internal path.
	if cfg.Search.Enabled {
		maxBodyLen := cfg.Search.ContentLength
		if maxBodyLen <= 0 {
			maxBodyLen = 5000
		}
		bodies := make(map[string]string, len(nonDraftPages))
		for _, p := range nonDraftPages {
			bodies[p.Path] = p.Content
		}
		docs := search.FromRecords(records, bodies, maxBodyLen)
		searchData, err := search.BuildIndex(cfg.Search, docs).Marshal()
		if err != nil {
			return fmt.Errorf("generating search index: %w", err)
		}
		if err := writeDirectFile(outputDir, "search-index.json", searchData); err != nil {
			return fmt.Errorf("writing search-index.json: %w", err)
		}
		result.StaticFiles++
	}

	// Generate alias redirect pages.
	var aliases []AliasPage
	for _, p := range pages {
		for _, alias := range p.Aliases {
			aliases = append(aliases, AliasPage{
				AliasURL:     alias,
				CanonicalURL: p.URL,
			})
		}
	}
	if len(aliases) > 0 {
		aliasFiles := GenerateAliasPages(aliases)
		for filePath, htmlData := range aliasFiles {
			fullPath := filepath.Join(outputDir, filePath)
			dir := filepath.Dir(fullPath)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating alias directory %s: %w", dir, err)
			}
			if err := os.WriteFile(fullPath, htmlData, 0o644); err != nil {
				return fmt.Errorf("writing alias file %s: %w", fullPath, err)
			}
			result.StaticFiles++
		}
	}

	return nil
}
