// Package image provides responsive image processing, format conversion,
// and build caching for the Bengal static site generator.
package image

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	buildcache "github.com/bengal-ssg/bengal/internal/cache"
)

// cacheManifestVersion is bumped when the cache format changes; a mismatch
// discards the old manifest wholesale.
const cacheManifestVersion = "2"

// Cache stores processed image variants on disk so unchanged images are not
// re-encoded across builds. It is content-addressed the same way the build's
// provenance cache is: each entry is keyed by a recipe hash over the source
// content hash plus every processing parameter, so a changed source byte,
// quality, size list, or format list simply misses instead of needing
// field-by-field comparison. All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	dir      string        // e.g. .bengal/imagecache/
	manifest CacheManifest // loaded from manifest.json
}

// CacheManifest is the top-level structure persisted as manifest.json.
type CacheManifest struct {
	Version string                 `json:"version"`
	Entries map[string]*CacheEntry `json:"entries"` // keyed by recipe hash
}

// CacheEntry records one processed recipe's outputs. SrcPath is recorded
// for diagnostics only; identity lives entirely in the recipe key.
type CacheEntry struct {
	SrcPath  string          `json:"srcPath"`
	Variants []CachedVariant `json:"variants"`
}

// CachedVariant describes one generated file stored in the cache directory.
type CachedVariant struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Filename string `json:"filename"` // just the filename, stored in cache dir
}

// recipeKey derives the content-addressed entry key: the source content
// hash combined with the processing parameters, order-normalized so
// logically-equal recipes always hash identically.
func recipeKey(contentHash string, sizes []int, formats []string, quality int) string {
	sortedSizes := make([]int, len(sizes))
	copy(sortedSizes, sizes)
	sort.Ints(sortedSizes)
	sortedFormats := make([]string, len(formats))
	copy(sortedFormats, formats)
	sort.Strings(sortedFormats)

	h := sha256.New()
	h.Write([]byte(contentHash))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(quality)))
	for _, s := range sortedSizes {
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(s)))
	}
	for _, f := range sortedFormats {
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewCache creates a Cache rooted at cacheDir, loading an existing
// manifest.json when present. A corrupt or version-mismatched manifest
// starts fresh rather than erroring: the cost is re-encoding, not a failed
// build.
func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := &Cache{
		dir: cacheDir,
		manifest: CacheManifest{
			Version: cacheManifestVersion,
			Entries: make(map[string]*CacheEntry),
		},
	}

	data, err := os.ReadFile(filepath.Join(cacheDir, "manifest.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("reading cache manifest: %w", err)
	}

	var m CacheManifest
	if err := json.Unmarshal(data, &m); err != nil || m.Version != cacheManifestVersion {
		return c, nil
	}
	if m.Entries == nil {
		m.Entries = make(map[string]*CacheEntry)
	}
	c.manifest = m
	return c, nil
}

// Lookup returns the cached variants for the given source hash and
// processing parameters, verifying every cached file still exists on disk
// (a wiped cache directory with a surviving manifest must miss, not serve
// phantom files).
func (c *Cache) Lookup(srcPath string, contentHash string, sizes []int, formats []string, quality int) ([]CachedVariant, bool) {
	key := recipeKey(contentHash, sizes, formats, quality)

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.manifest.Entries[key]
	if !ok {
		return nil, false
	}
	for _, v := range entry.Variants {
		if _, err := os.Stat(filepath.Join(c.dir, v.Filename)); err != nil {
			return nil, false
		}
	}
	return entry.Variants, true
}

// Store records the variants produced for one recipe and persists the
// manifest.
func (c *Cache) Store(srcPath string, contentHash string, sizes []int, formats []string, quality int, variants []CachedVariant) error {
	key := recipeKey(contentHash, sizes, formats, quality)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.manifest.Entries[key] = &CacheEntry{SrcPath: srcPath, Variants: variants}
	return c.saveManifestLocked()
}

// CopyToOutput copies cached variant files from the cache directory into
// outputDir and returns Variants with URLs constructed from urlPrefix.
func (c *Cache) CopyToOutput(variants []CachedVariant, outputDir, urlPrefix string) ([]Variant, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	result := make([]Variant, 0, len(variants))
	for _, cv := range variants {
		src := filepath.Join(c.dir, cv.Filename)
		dst := filepath.Join(outputDir, cv.Filename)
		if err := copyFile(src, dst); err != nil {
			return nil, fmt.Errorf("copying cached variant %s: %w", cv.Filename, err)
		}
		result = append(result, Variant{
			Width:  cv.Width,
			Height: cv.Height,
			Format: cv.Format,
			URL:    strings.TrimRight(urlPrefix, "/") + "/" + cv.Filename,
			Path:   dst,
		})
	}
	return result, nil
}

// SaveManifest persists the manifest; exported for callers that batch many
// Store-free mutations (none currently, but symmetry with the build cache).
func (c *Cache) SaveManifest() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveManifestLocked()
}

// saveManifestLocked writes manifest.json atomically (tmp + rename), the
// same discipline every other persisted cache in the build uses.
func (c *Cache) saveManifestLocked() error {
	data, err := json.MarshalIndent(c.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling cache manifest: %w", err)
	}
	path := filepath.Join(c.dir, "manifest.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// HashFile computes the content hash of the file at path, delegating to the
// build cache's fingerprinting so image identity and page identity use the
// same digest.
func HashFile(path string) (string, error) {
	fp, err := buildcache.FingerprintFile(path)
	if err != nil {
		return "", err
	}
	return fp.Hash, nil
}

// copyFile copies a single file from src to dst, creating parent
// directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
