package feed

import (
	"encoding/xml"
	"time"
)

// rssFeed is the top-level RSS 2.0 XML structure.
type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	AtomNS  string     `xml:"xmlns:atom,attr"`
	Channel rssChannel `xml:"channel"`
}

// rssChannel represents the <channel> element.
type rssChannel struct {
	Title         string      `xml:"title"`
	Link          string      `xml:"link"`
	Description   string      `xml:"description"`
	Language      string      `xml:"language,omitempty"`
	Generator     string      `xml:"generator"`
	LastBuildDate string      `xml:"lastBuildDate,omitempty"`
	AtomLink      rssAtomLink `xml:"atom:link"`
	Items         []rssItem   `xml:"item"`
}

// rssAtomLink is the atom:link self-reference.
type rssAtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// rssItem represents a single <item>.
type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
	Description CDATA    `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category,omitempty"`
}

// GenerateRSS renders items as an RSS 2.0 feed, newest first, clamped to
// opts.MaxItems, with the body chosen by opts.FullContent. The channel
// carries a generator element and a lastBuildDate anchored to the newest
// item so unchanged content yields byte-identical output across builds.
func GenerateRSS(items []FeedItem, opts FeedOptions) ([]byte, error) {
	sorted := prepareItems(items, opts)

	rssItems := make([]rssItem, 0, len(sorted))
	for _, item := range sorted {
		rssItems = append(rssItems, rssItem{
			Title:       item.Title,
			Link:        item.Link,
			PubDate:     item.PubDate.Format(time.RFC1123Z),
			GUID:        item.GUID,
			Description: CDATA{Text: itemBody(item, opts)},
			Author:      item.Author,
			Categories:  item.Categories,
		})
	}

	doc := rssFeed{
		Version: "2.0",
		AtomNS:  "http://www.w3.org/2005/Atom",
		Channel: rssChannel{
			Title:         opts.Title,
			Link:          opts.Link,
			Description:   opts.Description,
			Language:      opts.Language,
			Generator:     generatorName,
			LastBuildDate: newestDate(sorted).Format(time.RFC1123Z),
			AtomLink: rssAtomLink{
				Href: opts.FeedLink,
				Rel:  "self",
				Type: "application/rss+xml",
			},
			Items: rssItems,
		},
	}
	return renderXML(doc)
}
