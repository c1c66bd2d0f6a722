package build

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bengal-ssg/bengal/internal/content"
)

// fingerprintedName derives the versioned filename for an asset:
// "css/style.css" with hash "deadbeef" becomes "css/style.deadbeef.css".
func fingerprintedName(logical, fingerprint string) string {
	ext := filepath.Ext(logical)
	return strings.TrimSuffix(logical, ext) + "." + fingerprint + ext
}

// fingerprintPattern matches any fingerprinted sibling of base+ext, e.g.
// style.<16 hex>.css, for orphan cleanup of superseded fingerprints.
func fingerprintPattern(base, ext string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(base) + `\.[0-9a-f]{16}` + regexp.QuoteMeta(ext) + "$")
}

// ProcessAssets materializes the assets/ output tree: every static file is
// copied under <outputDir>/assets/ at its logical path, and CSS/JS assets
// additionally get a content-fingerprinted copy whose name embeds a hash of
// the bytes. A changed CSS/JS asset therefore produces a new fingerprinted
// URL, and any previously-fingerprinted sibling left behind by an older
// content version is removed (Scenario B orphan cleanup).
//
// changedOnly, when non-nil and full is false, restricts processing to the
// listed source paths — the incremental fast path.
func ProcessAssets(assetPaths []string, roots []string, outputDir string, changedOnly []string, full bool) ([]content.Asset, error) {
	changedSet := make(map[string]bool, len(changedOnly))
	for _, c := range changedOnly {
		changedSet[c] = true
	}

	assetsRoot := filepath.Join(outputDir, "assets")
	var out []content.Asset

	for _, src := range assetPaths {
		if !full && changedOnly != nil && !changedSet[src] {
			continue
		}

		logical := logicalAssetPath(src, roots)
		dst := filepath.Join(assetsRoot, logical)
		if err := CopyFile(src, dst); err != nil {
			return out, fmt.Errorf("copying asset %s: %w", src, err)
		}

		asset := content.Asset{SourcePath: src, LogicalPath: logical, OutputPath: dst}

		ext := filepath.Ext(src)
		if ext == ".css" || ext == ".js" {
			hash, err := hashFile(src)
			if err != nil {
				return out, fmt.Errorf("fingerprinting asset %s: %w", src, err)
			}
			asset.Fingerprint = hash
			fpName := fingerprintedName(logical, hash)
			fpDst := filepath.Join(assetsRoot, fpName)
			if err := CopyFile(src, fpDst); err != nil {
				return out, fmt.Errorf("copying fingerprinted asset %s: %w", src, err)
			}
			asset.OutputPath = fpDst
			if err := cleanStaleFingerprints(assetsRoot, logical, hash); err != nil {
				return out, err
			}
		}
		out = append(out, asset)
	}
	return out, nil
}

// cleanStaleFingerprints removes fingerprinted siblings of logical whose
// hash differs from current.
func cleanStaleFingerprints(assetsRoot, logical, current string) error {
	dir := filepath.Join(assetsRoot, filepath.Dir(logical))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	ext := filepath.Ext(logical)
	base := strings.TrimSuffix(filepath.Base(logical), ext)
	pattern := fingerprintPattern(base, ext)
	keep := filepath.Base(fingerprintedName(logical, current))
	for _, e := range entries {
		name := e.Name()
		if name == keep || !pattern.MatchString(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale fingerprinted asset %s: %w", name, err)
		}
	}
	return nil
}

// logicalAssetPath strips the matching static root prefix from src.
func logicalAssetPath(src string, roots []string) string {
	for _, root := range roots {
		if rel, err := filepath.Rel(root, src); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(src)
}

// hashFile returns the first 16 hex chars of the file's SHA-256, the form
// embedded in fingerprinted asset names.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil))[:16], nil
}
