package seo

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bengal-ssg/bengal/internal/buildctx"
)

func TestEntriesFromRecordsPriorities(t *testing.T) {
	records := []buildctx.AccumulatedPageData{
		{URL: "/", Href: "https://example.com/"},
		{URL: "/blog/", Href: "https://example.com/blog/"},
		{URL: "/blog/post/", Href: "https://example.com/blog/post/"},
	}
	entries := EntriesFromRecords(records)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantPriority := []float64{1.0, 0.8, 0.5}
	for i, want := range wantPriority {
		if entries[i].Priority != want {
			t.Errorf("entry %d priority = %v, want %v", i, entries[i].Priority, want)
		}
	}
	if entries[0].URL != "https://example.com/" {
		t.Errorf("entries must carry the public href, got %q", entries[0].URL)
	}
}

func TestEntriesFromRecordsLastmodFallsBackToDate(t *testing.T) {
	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := EntriesFromRecords([]buildctx.AccumulatedPageData{
		{URL: "/a/", Href: "/a/", Date: date},
	})
	if !entries[0].Lastmod.Equal(date) {
		t.Errorf("expected Date fallback, got %v", entries[0].Lastmod)
	}
}

func TestGenerateSitemap(t *testing.T) {
	entries := []SitemapEntry{
		{URL: "https://example.com/", Lastmod: time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), Priority: 1.0},
		{URL: "https://example.com/blog/post/", ChangeFreq: "weekly"},
	}
	data, err := GenerateSitemap(entries)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	if !strings.HasPrefix(out, "<?xml") {
		t.Error("sitemap must start with the XML declaration")
	}
	if !strings.Contains(out, `xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`) {
		t.Error("missing sitemaps.org namespace")
	}
	if !strings.Contains(out, "<loc>https://example.com/</loc>") {
		t.Error("missing first loc")
	}
	if !strings.Contains(out, "<lastmod>2025-01-02</lastmod>") {
		t.Error("lastmod should be date-only")
	}
	if !strings.Contains(out, "<priority>1.0</priority>") {
		t.Error("missing priority hint")
	}
	if !strings.Contains(out, "<changefreq>weekly</changefreq>") {
		t.Error("missing changefreq hint")
	}
	// The second entry has no lastmod/priority; elements must be omitted.
	if strings.Count(out, "<lastmod>") != 1 {
		t.Error("zero lastmod should omit the element")
	}
}

func TestGenerateRobotsTxt(t *testing.T) {
	out := string(GenerateRobotsTxt("https://example.com/sitemap.xml", nil))
	if !strings.Contains(out, "User-agent: *") || !strings.Contains(out, "Allow: /") {
		t.Errorf("unexpected robots.txt: %q", out)
	}
	if !strings.Contains(out, "Sitemap: https://example.com/sitemap.xml") {
		t.Error("missing sitemap reference")
	}

	blocked := string(GenerateRobotsTxt("https://example.com/sitemap.xml", []string{"/drafts/", "/internal/"}))
	if !strings.Contains(blocked, "Disallow: /drafts/") || !strings.Contains(blocked, "Disallow: /internal/") {
		t.Errorf("missing disallow lines: %q", blocked)
	}
	if strings.Contains(blocked, "Allow: /") {
		t.Error("explicit disallows replace the blanket allow")
	}
}

func articleMeta() PageMeta {
	return PageMeta{
		Title:       "A Post",
		Description: "About things.",
		URL:         "https://example.com/blog/a-post/",
		PageType:    "article",
		SiteName:    "Example",
		Author:      "Jo Writer",
		Date:        time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		Tags:        []string{"go", "ssg"},
		Language:    "en",
	}
}

func TestOpenGraphMeta(t *testing.T) {
	out := OpenGraphMeta(articleMeta())

	for _, want := range []string{
		`property="og:title" content="A Post"`,
		`property="og:type" content="article"`,
		`property="og:site_name" content="Example"`,
		`property="article:published_time" content="2025-02-01T09:00:00Z"`,
		`property="article:tag" content="go"`,
		`property="article:tag" content="ssg"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "og:image") {
		t.Error("no cover image: og:image must be omitted")
	}
}

func TestOpenGraphMetaNonArticleOmitsArticleTags(t *testing.T) {
	meta := articleMeta()
	meta.PageType = "website"
	out := OpenGraphMeta(meta)
	if strings.Contains(out, "article:") {
		t.Errorf("website pages must not carry article: properties:\n%s", out)
	}
}

func TestOpenGraphMetaEscapesContent(t *testing.T) {
	meta := articleMeta()
	meta.Title = `He said "hi" & left`
	out := OpenGraphMeta(meta)
	if !strings.Contains(out, "&#34;hi&#34; &amp; left") {
		t.Errorf("content must be HTML-escaped:\n%s", out)
	}
}

func TestTwitterCardMeta(t *testing.T) {
	meta := articleMeta()
	out := TwitterCardMeta(meta)
	if !strings.Contains(out, `name="twitter:card" content="summary"`) {
		t.Errorf("no image should yield a summary card:\n%s", out)
	}

	meta.CoverImage = "https://example.com/cover.png"
	meta.TwitterHandle = "@example"
	out = TwitterCardMeta(meta)
	if !strings.Contains(out, `content="summary_large_image"`) {
		t.Error("cover image should upgrade the card type")
	}
	if !strings.Contains(out, `name="twitter:site" content="@example"`) {
		t.Error("configured handle should be attributed")
	}
	if !strings.Contains(out, `name="twitter:image"`) {
		t.Error("missing twitter:image")
	}
}

func TestJSONLDArticle(t *testing.T) {
	meta := articleMeta()
	meta.Lastmod = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	out := JSONLDArticle(meta)

	if !strings.HasPrefix(out, `<script type="application/ld+json">`) || !strings.HasSuffix(out, "</script>") {
		t.Fatalf("missing script wrapper: %s", out)
	}
	payload := strings.TrimSuffix(strings.TrimPrefix(out, `<script type="application/ld+json">`), "</script>")

	var parsed map[string]any
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if parsed["@type"] != "Article" || parsed["headline"] != "A Post" {
		t.Errorf("unexpected article fields: %v", parsed)
	}
	if parsed["dateModified"] != "2025-03-01T09:00:00Z" {
		t.Errorf("missing dateModified: %v", parsed["dateModified"])
	}
	if parsed["keywords"] != "go, ssg" {
		t.Errorf("missing keywords: %v", parsed["keywords"])
	}
	author, _ := parsed["author"].(map[string]any)
	if author == nil || author["name"] != "Jo Writer" {
		t.Errorf("missing author person: %v", parsed["author"])
	}
}

func TestJSONLDArticleOmitsUnchangedLastmod(t *testing.T) {
	meta := articleMeta()
	meta.Lastmod = meta.Date
	out := JSONLDArticle(meta)
	if strings.Contains(out, "dateModified") {
		t.Error("lastmod equal to the publish date should be omitted")
	}
}

func TestCanonicalURL(t *testing.T) {
	out := CanonicalURL("https://example.com/a/")
	if out != `<link rel="canonical" href="https://example.com/a/">` {
		t.Errorf("unexpected canonical tag: %s", out)
	}
}

func TestSEOTitle(t *testing.T) {
	tests := []struct {
		title, tmpl, want string
	}{
		{"Post", "", "Post"},
		{"Post", "%s | Site", "Post | Site"},
		{"Post", "no placeholder", "Post"},
	}
	for _, tt := range tests {
		if got := SEOTitle(tt.title, tt.tmpl); got != tt.want {
			t.Errorf("SEOTitle(%q, %q) = %q, want %q", tt.title, tt.tmpl, got, tt.want)
		}
	}
}
