package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// ProvenanceEntry is the stored state for one page under the provenance
// filter: the combined_hash computed the last time the page was rendered,
// plus enough of its inputs to explain (for --explain output) why the hash
// would or wouldn't change.
type ProvenanceEntry struct {
	CombinedHash   string   `json:"combined_hash"`
	ContentHash    string   `json:"content_hash"`
	MetadataHash   string   `json:"metadata_hash"`
	TemplateName   string   `json:"template_name"`
	IncludeSet     []string `json:"include_set"`
	DependencyHashes []string `json:"dependency_hashes"`
}

// ProvenanceCache is the content-addressed, preferred incremental-build
// store: for each page, an opaque key (its source path) maps to
// a ProvenanceEntry. Stored in its own directory, separate from BuildCache,
// so it can be wiped independently on a forced full rebuild.
type ProvenanceCache struct {
	Entries map[string]ProvenanceEntry `json:"entries"`
}

// NewProvenanceCache returns an empty ProvenanceCache.
func NewProvenanceCache() *ProvenanceCache {
	return &ProvenanceCache{Entries: make(map[string]ProvenanceEntry)}
}

// provenanceFile is the single JSON file used within a ProvenanceCache
// directory. Using one file rather than one-file-per-page keeps writes
// atomic and avoids a directory with one entry per content page.
const provenanceFile = "provenance.json"

// LoadProvenanceCache reads the provenance cache from dir. A missing
// directory or file is not an error: it returns an empty cache.
func LoadProvenanceCache(dir string) (*ProvenanceCache, error) {
	data, err := os.ReadFile(filepath.Join(dir, provenanceFile))
	if os.IsNotExist(err) {
		return NewProvenanceCache(), nil
	}
	if err != nil {
		return nil, err
	}
	c := NewProvenanceCache()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Entries == nil {
		c.Entries = make(map[string]ProvenanceEntry)
	}
	return c, nil
}

// Save persists the cache to dir, creating it if necessary.
func (c *ProvenanceCache) Save(dir string) error {
	return writeJSON(filepath.Join(dir, provenanceFile), c)
}

// CombinedHashInputs is everything the provenance filter hashes together to
// decide whether a page needs to be rebuilt: its raw content, its resolved
// metadata (post-cascade), the identity of the template that will render
// it, the set of partials/templates it transitively includes, and the
// content hashes of any declared dependencies (data files, includes,
// cross-version targets).
type CombinedHashInputs struct {
	Content      string
	Metadata     map[string]any
	TemplateName string
	IncludeSet   []string
	DependencyHashes []string
}

// ComputeCombinedHash hashes in together over canonical JSON, mirroring the
// sorted-paths SHA-256 pattern used elsewhere in the pack for content
// addressing: every component is serialized deterministically so that map
// key order and slice order never cause spurious cache misses.
func ComputeCombinedHash(in CombinedHashInputs) ProvenanceEntry {
	contentHash := hashString(in.Content)
	metadataHash := hashJSON(canonicalizeAny(in.Metadata))

	includeSet := append([]string(nil), in.IncludeSet...)
	sort.Strings(includeSet)
	depHashes := append([]string(nil), in.DependencyHashes...)
	sort.Strings(depHashes)

	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(metadataHash))
	h.Write([]byte{0})
	h.Write([]byte(in.TemplateName))
	h.Write([]byte{0})
	for _, s := range includeSet {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	for _, s := range depHashes {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	return ProvenanceEntry{
		CombinedHash:     hex.EncodeToString(h.Sum(nil)),
		ContentHash:      contentHash,
		MetadataHash:     metadataHash,
		TemplateName:     in.TemplateName,
		IncludeSet:       includeSet,
		DependencyHashes: depHashes,
	}
}

// NeedsRebuild reports whether sourcePath is absent from the cache or its
// newly computed entry's CombinedHash differs from the stored one.
func (c *ProvenanceCache) NeedsRebuild(sourcePath string, next ProvenanceEntry) bool {
	prev, ok := c.Entries[sourcePath]
	if !ok {
		return true
	}
	return prev.CombinedHash != next.CombinedHash
}

// Record stores next as sourcePath's new provenance entry. Called after
// every successful render; the cache is persisted once at BUILD_END.
func (c *ProvenanceCache) Record(sourcePath string, next ProvenanceEntry) {
	c.Entries[sourcePath] = next
}

// Forget removes sourcePath's entry, mirroring BuildCache.ForgetSource for
// deleted-source cleanup.
func (c *ProvenanceCache) Forget(sourcePath string) {
	delete(c.Entries, sourcePath)
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalizeAny normalizes nested maps/slices so repeated marshaling of
// logically-equal metadata always produces byte-identical JSON.
func canonicalizeAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = canonicalizeAny(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = canonicalizeAny(vv)
		}
		return out
	default:
		return val
	}
}
