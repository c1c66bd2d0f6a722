// Package feed renders the site's syndication feeds (RSS 2.0 and Atom 1.0)
// from a single prepared item stream: both formats share the ordering,
// limiting, and body-selection rules, so enabling one or both in config can
// never produce feeds that disagree about which posts they carry.
package feed

import (
	"encoding/xml"
	"sort"
	"time"
)

// FeedOptions configures feed generation.
type FeedOptions struct {
	Title       string
	Description string
	Link        string // site URL e.g. "https://example.com"
	FeedLink    string // feed URL e.g. "https://example.com/index.xml"
	Language    string
	Author      string
	MaxItems    int  // 0 means no limit
	FullContent bool // true = include full content, false = summary only
}

// FeedItem represents a single item in a feed.
type FeedItem struct {
	Title       string
	Link        string // full permalink
	Description string // summary or full HTML content
	Content     string // full HTML content
	Author      string
	PubDate     time.Time
	GUID        string // typically same as Link
	Categories  []string
}

// CDATA wraps text in a CDATA section when marshaled to XML.
type CDATA struct {
	Text string `xml:",cdata"`
}

// generatorName identifies the producing tool in both feed formats.
const generatorName = "bengal"

// prepareItems applies the shared pre-render rules: newest first, clamped
// to MaxItems. The caller's slice is never mutated.
func prepareItems(items []FeedItem, opts FeedOptions) []FeedItem {
	sorted := make([]FeedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PubDate.After(sorted[j].PubDate)
	})
	if opts.MaxItems > 0 && len(sorted) > opts.MaxItems {
		sorted = sorted[:opts.MaxItems]
	}
	return sorted
}

// itemBody selects the body per the FullContent option: the full rendered
// HTML when requested and available, the summary otherwise.
func itemBody(item FeedItem, opts FeedOptions) string {
	if opts.FullContent && item.Content != "" {
		return item.Content
	}
	return item.Description
}

// newestDate is the feed-level updated/lastBuildDate timestamp: the newest
// item's publish date, so an unchanged item set yields byte-identical
// feeds across builds. An empty feed has no stable anchor and falls back
// to the current time.
func newestDate(sorted []FeedItem) time.Time {
	if len(sorted) > 0 {
		return sorted[0].PubDate
	}
	return time.Now().UTC()
}

// renderXML marshals v with indentation and the XML declaration prepended.
func renderXML(v any) ([]byte, error) {
	output, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	result := make([]byte, 0, len(xml.Header)+len(output))
	result = append(result, xml.Header...)
	result = append(result, output...)
	return result, nil
}
