package feed

import (
	"encoding/xml"
	"strings"
	"time"
)

// atomFeed is the top-level Atom 1.0 XML structure.
type atomFeed struct {
	XMLName   xml.Name      `xml:"feed"`
	Xmlns     string        `xml:"xmlns,attr"`
	Title     string        `xml:"title"`
	Subtitle  string        `xml:"subtitle,omitempty"`
	Links     []atomLink    `xml:"link"`
	ID        string        `xml:"id"`
	Updated   string        `xml:"updated"`
	Generator atomGenerator `xml:"generator"`
	Author    *atomAuthor   `xml:"author,omitempty"`
	Entries   []atomEntry   `xml:"entry"`
}

// atomGenerator identifies the producing tool.
type atomGenerator struct {
	Name string `xml:",chardata"`
}

// atomLink represents a <link> element.
type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// atomAuthor represents an <author> element.
type atomAuthor struct {
	Name string `xml:"name"`
}

// atomEntry represents a single <entry>.
type atomEntry struct {
	Title      string         `xml:"title"`
	Link       atomLink       `xml:"link"`
	ID         string         `xml:"id"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Summary    *atomContent   `xml:"summary,omitempty"`
	Content    *atomContent   `xml:"content,omitempty"`
	Author     *atomAuthor    `xml:"author,omitempty"`
	Categories []atomCategory `xml:"category,omitempty"`
}

// atomContent is a text element with a type attribute.
type atomContent struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// atomCategory is a <category> element with a term attribute.
type atomCategory struct {
	Term string `xml:"term,attr"`
}

// GenerateAtom renders items as an Atom 1.0 feed under the same shared
// rules as GenerateRSS: newest first, clamped to opts.MaxItems. Every entry
// carries an html summary; a <content type="html"> element is added only
// when opts.FullContent is set and the item has rendered content. The
// feed-level updated timestamp anchors to the newest entry so unchanged
// content yields byte-identical output across builds.
func GenerateAtom(items []FeedItem, opts FeedOptions) ([]byte, error) {
	sorted := prepareItems(items, opts)

	entries := make([]atomEntry, 0, len(sorted))
	for _, item := range sorted {
		entry := atomEntry{
			Title:     item.Title,
			Link:      atomLink{Href: item.Link, Rel: "alternate"},
			ID:        item.GUID,
			Published: item.PubDate.Format(time.RFC3339),
			Updated:   item.PubDate.Format(time.RFC3339),
			Summary:   &atomContent{Type: "html", Body: item.Description},
		}
		if opts.FullContent && item.Content != "" {
			entry.Content = &atomContent{Type: "html", Body: item.Content}
		}
		if item.Author != "" {
			entry.Author = &atomAuthor{Name: item.Author}
		}
		for _, c := range item.Categories {
			entry.Categories = append(entry.Categories, atomCategory{Term: c})
		}
		entries = append(entries, entry)
	}

	doc := atomFeed{
		Xmlns:    "http://www.w3.org/2005/Atom",
		Title:    opts.Title,
		Subtitle: opts.Description,
		Links: []atomLink{
			{Href: opts.FeedLink, Rel: "self"},
			{Href: opts.Link, Rel: "alternate"},
		},
		ID:        strings.TrimRight(opts.Link, "/") + "/",
		Updated:   newestDate(sorted).Format(time.RFC3339),
		Generator: atomGenerator{Name: generatorName},
		Entries:   entries,
	}
	if opts.Author != "" {
		doc.Author = &atomAuthor{Name: opts.Author}
	}
	return renderXML(doc)
}
