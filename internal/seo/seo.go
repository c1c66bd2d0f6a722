// Package seo emits the search-engine surfaces of a build: the sitemap,
// robots.txt, and per-page meta markup (Open Graph, Twitter cards,
// schema.org JSON-LD). Sitemap entries derive from the per-page records the
// render phase accumulates, so the postprocess phase never re-walks pages
// to produce them.
package seo

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/bengal-ssg/bengal/internal/buildctx"
)

// SitemapEntry is one <url> element. ChangeFreq and Priority are optional
// sitemaps.org hints; zero values omit the elements.
type SitemapEntry struct {
	URL        string
	Lastmod    time.Time
	ChangeFreq string
	Priority   float64
}

// PageMeta holds metadata needed for SEO tag generation.
type PageMeta struct {
	Title         string
	Description   string
	URL           string // full URL like https://example.com/blog/post/
	Permalink     string
	PageType      string // "article", "website", etc.
	SiteName      string
	Author        string
	Date          time.Time
	Lastmod       time.Time
	Tags          []string
	CoverImage    string // URL to cover image
	Language      string
	BaseURL       string
	TitleTemplate string // e.g. "%s | Site Name"
	TwitterHandle string
}

// EntriesFromRecords derives sitemap entries from accumulated page records:
// the home page announces priority 1.0, every URL one path segment deep
// (section landings and top-level pages alike) 0.8, and everything else 0.5. Hrefs are already baseurl-applied by the render
// phase, so entries carry them unchanged.
func EntriesFromRecords(records []buildctx.AccumulatedPageData) []SitemapEntry {
	entries := make([]SitemapEntry, 0, len(records))
	for _, r := range records {
		e := SitemapEntry{URL: r.Href, Lastmod: r.Lastmod}
		if e.Lastmod.IsZero() {
			e.Lastmod = r.Date
		}
		switch urlDepth(r.URL) {
		case 0:
			e.Priority = 1.0
		case 1:
			e.Priority = 0.8
		default:
			e.Priority = 0.5
		}
		entries = append(entries, e)
	}
	return entries
}

// urlDepth counts the path segments of an internal URL: "/" is 0,
// "/blog/" is 1, "/blog/post/" is 2.
func urlDepth(url string) int {
	trimmed := strings.Trim(url, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/") + 1
}

// sitemapURLSet is the root element of a sitemap XML document.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

// sitemapURL is a single <url> entry.
type sitemapURL struct {
	Loc        string `xml:"loc"`
	Lastmod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// GenerateSitemap produces an XML sitemap per the sitemaps.org protocol:
// the XML declaration, a <urlset> root with the sitemaps.org xmlns, and one
// <url> per entry with <loc>, optional <lastmod> (date only), and the
// optional changefreq/priority hints.
func GenerateSitemap(entries []SitemapEntry) ([]byte, error) {
	urlset := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  make([]sitemapURL, 0, len(entries)),
	}

	for _, e := range entries {
		u := sitemapURL{Loc: e.URL, ChangeFreq: e.ChangeFreq}
		if !e.Lastmod.IsZero() {
			u.Lastmod = e.Lastmod.Format("2006-01-02")
		}
		if e.Priority > 0 {
			u.Priority = fmt.Sprintf("%.1f", e.Priority)
		}
		urlset.URLs = append(urlset.URLs, u)
	}

	output, err := xml.MarshalIndent(urlset, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("seo: marshaling sitemap: %w", err)
	}

	result := []byte(xml.Header)
	result = append(result, output...)
	result = append(result, '\n')
	return result, nil
}

// GenerateRobotsTxt produces a robots.txt referencing the sitemap, with an
// optional Disallow line per excluded path prefix.
func GenerateRobotsTxt(sitemapURL string, disallow []string) []byte {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	if len(disallow) == 0 {
		b.WriteString("Allow: /\n")
	}
	for _, d := range disallow {
		fmt.Fprintf(&b, "Disallow: %s\n", d)
	}
	fmt.Fprintf(&b, "\nSitemap: %s\n", sitemapURL)
	return []byte(b.String())
}

// metaTag renders one <meta> element; attr selects "property" (Open Graph)
// or "name" (Twitter and plain meta).
func metaTag(attr, key, content string) string {
	return fmt.Sprintf(`<meta %s="%s" content="%s">`, attr, key, html.EscapeString(content))
}

// OpenGraphMeta generates Open Graph meta tags: title, description, url,
// type, site_name, plus image/locale when present. Articles additionally
// carry published_time and one article:tag per tag.
func OpenGraphMeta(meta PageMeta) string {
	tags := []string{
		metaTag("property", "og:title", meta.Title),
		metaTag("property", "og:description", meta.Description),
		metaTag("property", "og:url", meta.URL),
		metaTag("property", "og:type", meta.PageType),
		metaTag("property", "og:site_name", meta.SiteName),
	}
	if meta.CoverImage != "" {
		tags = append(tags, metaTag("property", "og:image", meta.CoverImage))
	}
	if meta.Language != "" {
		tags = append(tags, metaTag("property", "og:locale", meta.Language))
	}
	if meta.PageType == "article" {
		if !meta.Date.IsZero() {
			tags = append(tags, metaTag("property", "article:published_time", meta.Date.Format(time.RFC3339)))
		}
		for _, t := range meta.Tags {
			tags = append(tags, metaTag("property", "article:tag", t))
		}
	}
	return strings.Join(tags, "\n")
}

// TwitterCardMeta generates Twitter card meta tags. A cover image upgrades
// the card to summary_large_image; a configured site handle is attributed.
func TwitterCardMeta(meta PageMeta) string {
	cardType := "summary"
	if meta.CoverImage != "" {
		cardType = "summary_large_image"
	}

	tags := []string{
		metaTag("name", "twitter:card", cardType),
		metaTag("name", "twitter:title", meta.Title),
		metaTag("name", "twitter:description", meta.Description),
	}
	if meta.TwitterHandle != "" {
		tags = append(tags, metaTag("name", "twitter:site", meta.TwitterHandle))
	}
	if meta.CoverImage != "" {
		tags = append(tags, metaTag("name", "twitter:image", meta.CoverImage))
	}
	return strings.Join(tags, "\n")
}

// jsonLDArticle is the schema.org Article shape.
type jsonLDArticle struct {
	Context       string        `json:"@context"`
	Type          string        `json:"@type"`
	Headline      string        `json:"headline"`
	DatePublished string        `json:"datePublished"`
	DateModified  string        `json:"dateModified,omitempty"`
	Author        *jsonLDPerson `json:"author,omitempty"`
	Description   string        `json:"description"`
	URL           string        `json:"url"`
	Image         string        `json:"image,omitempty"`
	Keywords      string        `json:"keywords,omitempty"`
}

// jsonLDPerson is a schema.org Person.
type jsonLDPerson struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

// JSONLDArticle generates a <script type="application/ld+json"> block with
// schema.org Article markup: headline, publish/modify dates, author,
// description, url, and image/keywords when present.
func JSONLDArticle(meta PageMeta) string {
	article := jsonLDArticle{
		Context:       "https://schema.org",
		Type:          "Article",
		Headline:      meta.Title,
		DatePublished: meta.Date.Format(time.RFC3339),
		Description:   meta.Description,
		URL:           meta.URL,
		Image:         meta.CoverImage,
		Keywords:      strings.Join(meta.Tags, ", "),
	}
	if !meta.Lastmod.IsZero() && !meta.Lastmod.Equal(meta.Date) {
		article.DateModified = meta.Lastmod.Format(time.RFC3339)
	}
	if meta.Author != "" {
		article.Author = &jsonLDPerson{Type: "Person", Name: meta.Author}
	}

	data, err := json.Marshal(article)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`<script type="application/ld+json">%s</script>`, string(data))
}

// CanonicalURL returns a <link rel="canonical"> tag for the given permalink.
func CanonicalURL(permalink string) string {
	return fmt.Sprintf(`<link rel="canonical" href="%s">`, html.EscapeString(permalink))
}

// SEOTitle applies a title template to a page title: templates containing
// "%s" substitute the page title; anything else passes the title through.
func SEOTitle(pageTitle string, template string) string {
	if !strings.Contains(template, "%s") {
		return pageTitle
	}
	return fmt.Sprintf(template, pageTitle)
}
