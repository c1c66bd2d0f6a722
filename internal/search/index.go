// Package search builds the client-side search index from the per-page
// records the render phase accumulates, so index generation never re-walks
// or re-parses pages. The emitted JSON carries the site's configured field
// weights alongside the documents, letting the client-side searcher score
// fields the way the site configured them without a second config channel.
package search

import (
	"encoding/json"
	"strings"

	"github.com/bengal-ssg/bengal/internal/buildctx"
	"github.com/bengal-ssg/bengal/internal/config"
)

// Document is one searchable page. Path is the internal, baseurl-free URL
// used as the result key; Href is the public URL search results link to.
type Document struct {
	Title       string   `json:"title"`
	Path        string   `json:"path"`
	Href        string   `json:"href"`
	Section     string   `json:"section,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Body        string   `json:"body,omitempty"`
	WordCount   int      `json:"word_count,omitempty"`
	ReadingTime int      `json:"reading_time,omitempty"`
}

// Key is one weighted search field, mirroring config.SearchKey in the
// emitted JSON.
type Key struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// Index is the serialized form of search-index.json.
type Index struct {
	Keys      []Key      `json:"keys"`
	Documents []Document `json:"documents"`
}

// FromRecords converts accumulated page records into search documents. The
// bodies map supplies each page's rendered HTML keyed by internal path; the
// body is stripped to plain text and truncated at a word boundary to
// maxBodyLen (0 disables body indexing entirely, shrinking the index to
// titles/tags/excerpts).
func FromRecords(records []buildctx.AccumulatedPageData, bodies map[string]string, maxBodyLen int) []Document {
	docs := make([]Document, 0, len(records))
	for _, r := range records {
		doc := Document{
			Title:       r.Title,
			Path:        r.URL,
			Href:        r.Href,
			Section:     r.Section,
			Tags:        r.Tags,
			Excerpt:     r.Excerpt,
			WordCount:   r.WordCount,
			ReadingTime: r.ReadingTime,
		}
		if maxBodyLen > 0 {
			if html, ok := bodies[r.URL]; ok {
				doc.Body = TruncateAtWord(StripHTML(html), maxBodyLen)
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

// BuildIndex assembles the index document from the site's search config and
// the prepared documents.
func BuildIndex(cfg config.SearchConfig, docs []Document) *Index {
	ix := &Index{Documents: docs}
	for _, k := range cfg.Keys {
		ix.Keys = append(ix.Keys, Key{Name: k.Name, Weight: k.Weight})
	}
	if ix.Keys == nil {
		ix.Keys = []Key{{Name: "title", Weight: 1}}
	}
	if ix.Documents == nil {
		ix.Documents = []Document{}
	}
	return ix
}

// Marshal serializes the index as indented JSON.
func (ix *Index) Marshal() ([]byte, error) {
	return json.MarshalIndent(ix, "", "  ")
}

// entities decoded by StripHTML; goldmark only ever emits these named
// escapes in text content.
var entities = []struct{ from, to string }{
	{"&amp;", "&"},
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", `"`},
	{"&#34;", `"`},
	{"&#39;", "'"},
	{"&nbsp;", " "},
}

// StripHTML reduces rendered HTML to plain, whitespace-collapsed text in a
// single scan: tag content is dropped, runs of whitespace fold into one
// space, and common entities are decoded afterward. No regexp — the input
// is generator-produced HTML, not arbitrary markup.
func StripHTML(html string) string {
	var b strings.Builder
	b.Grow(len(html))

	depth := 0
	pendingSpace := false
	for _, ch := range html {
		switch {
		case ch == '<':
			depth++
			// A tag boundary separates words ("<p>a</p><p>b</p>").
			pendingSpace = b.Len() > 0
		case ch == '>':
			if depth > 0 {
				depth--
			}
		case depth > 0:
			// inside a tag; drop
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v':
			pendingSpace = b.Len() > 0
		default:
			if pendingSpace {
				b.WriteByte(' ')
				pendingSpace = false
			}
			b.WriteRune(ch)
		}
	}

	out := b.String()
	for _, e := range entities {
		out = strings.ReplaceAll(out, e.from, e.to)
	}
	return out
}

// TruncateAtWord cuts s at the last word boundary at or before maxLen,
// appending an ellipsis when anything was dropped. Strings already within
// the limit come back untouched.
func TruncateAtWord(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndexByte(s[:maxLen], ' ')
	if cut <= 0 {
		cut = maxLen
	}
	return s[:cut] + "..."
}
