// Package cache implements the two persisted caches that back incremental
// builds: BuildCache, the legacy multi-signal detector's shared state, and
// ProvenanceCache, the content-addressed cache consulted by the preferred
// provenance filter. Both are plain JSON on disk under <root>/.bengal/,
// matching the plain-file persistence used everywhere else (config, page
// metadata) rather than a database.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Fingerprint is a content fingerprint for a single source file.
type Fingerprint struct {
	Hash  string    `json:"hash"`
	Mtime time.Time `json:"mtime"`
	Size  int64     `json:"size"`
}

// ParsedContent caches a page's rendered markdown so an unchanged page can
// skip re-rendering entirely during an incremental build.
type ParsedContent struct {
	HTML               string `json:"html"`
	TOC                string `json:"toc"`
	CascadeMetadataHash string `json:"cascade_metadata_hash"`
}

// URLClaim is a snapshot of one urlregistry.Claim, persisted so an
// incremental build can rebuild the registry without re-running every
// producer.
type URLClaim struct {
	Owner    string `json:"owner"`
	Source   string `json:"source"`
	Priority int    `json:"priority"`
	Version  string `json:"version,omitempty"`
	Lang     string `json:"lang,omitempty"`
}

// CrossVersionEdge records that a page in one docs version links to a path
// in another version, so that changes to the target version can be
// propagated back to the source page by the incremental filter.
type CrossVersionEdge struct {
	SourcePage   string `json:"source_page"`
	TargetVersion string `json:"target_version"`
	TargetPath   string `json:"target_path"`
}

// BuildCache is the legacy multi-signal detector's persisted state, shared
// across all of its sub-detectors (FileChangeDetector, CascadeTracker,
// TemplateChangeDetector, DataFileDetector, TaxonomyChangeDetector,
// VersionChangeDetector) and by URLRegistry rehydration.
type BuildCache struct {
	// FileFingerprints maps a source path to its content fingerprint.
	FileFingerprints map[string]Fingerprint `json:"file_fingerprints"`

	// Dependencies maps a page's source path to the set of templates and
	// assets it depends on. ReverseDependencies is its inverse, used to
	// find every page affected when a template or asset changes.
	Dependencies        map[string][]string `json:"dependencies"`
	ReverseDependencies map[string][]string `json:"reverse_dependencies"`

	// OutputSources maps an emitted output path back to the source path
	// that produced it, used for orphan cleanup of deleted sources.
	OutputSources map[string]string `json:"output_sources"`

	// TaxonomyIndex maps a page's source path to its taxonomy terms, and
	// each term to the pages carrying it.
	TaxonomyIndex TaxonomyIndex `json:"taxonomy_index"`

	// ParsedContent caches rendered HTML/TOC per source path.
	ParsedContent map[string]ParsedContent `json:"parsed_content"`

	// AutodocDependencies and AutodocSourceMetadata track generated
	// reference-doc pages and the library source they were derived from,
	// so that a change to the underlying source (not tracked by the
	// ordinary file watcher) can still trigger a targeted rebuild.
	AutodocDependencies   map[string][]string    `json:"autodoc_dependencies"`
	AutodocSourceMetadata map[string]Fingerprint `json:"autodoc_source_metadata"`

	// URLClaims is a snapshot of the URLRegistry at the end of the build.
	URLClaims map[string]URLClaim `json:"url_claims"`

	// CrossVersionDependencies records (source_page, target_version,
	// target_path) edges between docs versions.
	CrossVersionDependencies []CrossVersionEdge `json:"cross_version_dependencies"`

	LastBuild time.Time `json:"last_build"`
}

// TaxonomyIndex is the bidirectional page<->term mapping used by the
// legacy detector's TaxonomyChangeDetector.
type TaxonomyIndex struct {
	PageTerms map[string][]string `json:"page_terms"`
	TermPages map[string][]string `json:"term_pages"`
}

// NewBuildCache returns an empty, ready-to-use BuildCache.
func NewBuildCache() *BuildCache {
	return &BuildCache{
		FileFingerprints:       make(map[string]Fingerprint),
		Dependencies:           make(map[string][]string),
		ReverseDependencies:    make(map[string][]string),
		OutputSources:          make(map[string]string),
		TaxonomyIndex:          TaxonomyIndex{PageTerms: make(map[string][]string), TermPages: make(map[string][]string)},
		ParsedContent:          make(map[string]ParsedContent),
		AutodocDependencies:    make(map[string][]string),
		AutodocSourceMetadata:  make(map[string]Fingerprint),
		URLClaims:              make(map[string]URLClaim),
		CrossVersionDependencies: nil,
	}
}

// LoadBuildCache reads and unmarshals a BuildCache from path. A missing
// file is not an error: it returns a fresh empty cache, the expected state
// on a first (full) build.
func LoadBuildCache(path string) (*BuildCache, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewBuildCache(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading build cache %s: %w", path, err)
	}
	c := NewBuildCache()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing build cache %s: %w", path, err)
	}
	if c.FileFingerprints == nil {
		c.FileFingerprints = make(map[string]Fingerprint)
	}
	if c.Dependencies == nil {
		c.Dependencies = make(map[string][]string)
	}
	if c.ReverseDependencies == nil {
		c.ReverseDependencies = make(map[string][]string)
	}
	if c.OutputSources == nil {
		c.OutputSources = make(map[string]string)
	}
	if c.TaxonomyIndex.PageTerms == nil {
		c.TaxonomyIndex.PageTerms = make(map[string][]string)
	}
	if c.TaxonomyIndex.TermPages == nil {
		c.TaxonomyIndex.TermPages = make(map[string][]string)
	}
	if c.ParsedContent == nil {
		c.ParsedContent = make(map[string]ParsedContent)
	}
	if c.AutodocDependencies == nil {
		c.AutodocDependencies = make(map[string][]string)
	}
	if c.AutodocSourceMetadata == nil {
		c.AutodocSourceMetadata = make(map[string]Fingerprint)
	}
	if c.URLClaims == nil {
		c.URLClaims = make(map[string]URLClaim)
	}
	return c, nil
}

// Save writes c to path as indented JSON, creating parent directories as
// needed. Called once at BUILD_END.
func (c *BuildCache) Save(path string) error {
	c.LastBuild = time.Now()
	return writeJSON(path, c)
}

// ForgetSource removes every cache entry keyed by sourcePath: its
// fingerprint, dependency edges, taxonomy membership, parsed content, and
// autodoc bookkeeping. Used by deleted-source cleanup once the
// corresponding output file has been removed.
func (c *BuildCache) ForgetSource(sourcePath string) {
	delete(c.FileFingerprints, sourcePath)
	delete(c.Dependencies, sourcePath)
	delete(c.ParsedContent, sourcePath)
	delete(c.AutodocDependencies, sourcePath)
	delete(c.AutodocSourceMetadata, sourcePath)
	delete(c.TaxonomyIndex.PageTerms, sourcePath)

	for term, pages := range c.TaxonomyIndex.TermPages {
		c.TaxonomyIndex.TermPages[term] = removeString(pages, sourcePath)
	}
	for dep, pages := range c.ReverseDependencies {
		c.ReverseDependencies[dep] = removeString(pages, sourcePath)
	}
	for out, src := range c.OutputSources {
		if src == sourcePath {
			delete(c.OutputSources, out)
		}
	}
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FingerprintFile computes a Fingerprint for path: a SHA-256 content hash
// plus the mtime/size reported by the filesystem. Used by the legacy
// detector's FileChangeDetector as a cheap pre-check (mtime/size) before
// falling back to the content hash.
func FingerprintFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("stat %s: %w", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	return Fingerprint{
		Hash:  hex.EncodeToString(h.Sum(nil)),
		Mtime: info.ModTime(),
		Size:  info.Size(),
	}, nil
}

// Changed reports whether new compares as a modification of f: a cheap
// mtime+size check short-circuits to false when both match; otherwise it
// falls back to the content hash.
func (f Fingerprint) Changed(next Fingerprint) bool {
	if f.Size == next.Size && f.Mtime.Equal(next.Mtime) {
		return false
	}
	return f.Hash != next.Hash
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache tmp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cache tmp file: %w", err)
	}
	return nil
}
