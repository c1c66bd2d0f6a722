package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// PageCore is the persisted essence of a discovered page: everything the
// postprocess phase needs to include a page in index.json and the sitemap
// without re-rendering it. Written at the end of each build
// (<root>/.bengal/page_metadata.json) and read back on the next incremental
// build to fill in records for pages that were not rebuilt that cycle.
type PageCore struct {
	SourcePath  string    `json:"source_path"`
	Path        string    `json:"path"`
	Href        string    `json:"href"`
	OutputPath  string    `json:"output_path"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Excerpt     string    `json:"excerpt"`
	Tags        []string  `json:"tags"`
	Section     string    `json:"section"`
	Version     string    `json:"version,omitempty"`
	WordCount   int       `json:"word_count"`
	ReadingTime int       `json:"reading_time"`
	Date        time.Time `json:"date"`
	Lastmod     time.Time `json:"lastmod"`
}

// ToCacheDict serializes p into the generic map form stored in the metadata
// file. FromCacheDict is its exact inverse: for every PageCore,
// FromCacheDict(ToCacheDict(p)) == p.
func (p PageCore) ToCacheDict() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// FromCacheDict reconstructs a PageCore from its ToCacheDict form.
func FromCacheDict(m map[string]any) (PageCore, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return PageCore{}, err
	}
	var p PageCore
	if err := json.Unmarshal(data, &p); err != nil {
		return PageCore{}, err
	}
	return p, nil
}

// PageMetadata is the persisted discovery-metadata store: source path ->
// PageCore for every page known at the end of the last build.
type PageMetadata struct {
	Pages map[string]PageCore `json:"pages"`
}

// NewPageMetadata returns an empty store.
func NewPageMetadata() *PageMetadata {
	return &PageMetadata{Pages: make(map[string]PageCore)}
}

// LoadPageMetadata reads the store from path; a missing file yields an empty
// store, the expected state before the first build.
func LoadPageMetadata(path string) (*PageMetadata, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewPageMetadata(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading page metadata %s: %w", path, err)
	}
	m := NewPageMetadata()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing page metadata %s: %w", path, err)
	}
	if m.Pages == nil {
		m.Pages = make(map[string]PageCore)
	}
	return m, nil
}

// Save writes the store to path atomically.
func (m *PageMetadata) Save(path string) error {
	return writeJSON(path, m)
}

// Record stores core under its source path.
func (m *PageMetadata) Record(core PageCore) {
	m.Pages[core.SourcePath] = core
}

// Forget drops the entry for sourcePath.
func (m *PageMetadata) Forget(sourcePath string) {
	delete(m.Pages, sourcePath)
}
