// Package deploy ships a built site to S3 behind CloudFront. It is wired to
// the build engine rather than being a generic uploader: the set of managed
// objects comes from the build cache's output-sources manifest, content
// hashes reuse the engine's fingerprinting, the Cache-Control policy
// understands the asset pipeline's fingerprinted filenames, and CloudFront
// invalidations are targeted at the paths a deploy actually touched.
package deploy

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// URLRewriteFunctionCode is the CloudFront Function (cloudfront-js-2.0)
// source that rewrites viewer-request URIs to append index.html for clean
// URLs, mirroring build.URLToOutputPath's mapping on the edge.
const URLRewriteFunctionCode = `function handler(event) {
    var request = event.request;
    var uri = request.uri;

    // Has a file extension — pass through
    if (uri.match(/\.[a-zA-Z0-9]+$/)) {
        return request;
    }
    // Trailing slash — append index.html
    if (uri.endsWith('/')) {
        request.uri = uri + 'index.html';
        return request;
    }
    // No extension, no trailing slash — append /index.html
    request.uri = uri + '/index.html';
    return request;
}
`

// maxTargetedInvalidations caps per-path CloudFront invalidations; a deploy
// touching more paths than this falls back to a single "/*".
const maxTargetedInvalidations = 15

// DeployConfig holds deployment configuration.
type DeployConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom S3/CloudFront endpoint (e.g. localstack)
	Profile  string // optional AWS shared-config profile

	Distribution    string // CloudFront distribution ID (optional)
	URLRewrite      bool   // manage the clean-URL CloudFront function
	SecurityHeaders bool   // manage the response-headers policy
	SecurityHeadersCfg ResponseHeadersConfig

	// Manifest, when non-nil, restricts the deploy to the objects the last
	// build recorded in its output-sources map (see ManifestKeys): files in
	// the public dir that the build doesn't own are neither uploaded nor
	// considered when computing remote deletes.
	Manifest map[string]bool

	DryRun  bool
	Verbose bool
}

// DeployResult holds the results of a deployment.
type DeployResult struct {
	Uploaded    int
	Deleted     int
	Skipped     int
	Invalidated []string // CloudFront paths invalidated, if any
	Errors      []error
}

// FileEntry represents a local file to deploy.
type FileEntry struct {
	Path         string // relative path from public dir (e.g. "blog/index.html")
	ContentType  string // MIME type
	CacheControl string // Cache-Control header value
	Hash         string // hex-encoded SHA-256 hash
}

// S3Client is an interface for S3 operations used during deployment.
type S3Client interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType, cacheControl, sha256Hash string) error
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string) (map[string]string, error) // returns key -> hash metadata
}

// CloudFrontClient is an interface for CloudFront operations.
type CloudFrontClient interface {
	CreateInvalidation(ctx context.Context, distributionID string, paths []string) error
}

// CloudFrontFunctionClient manages CloudFront Functions.
type CloudFrontFunctionClient interface {
	// EnsureURLRewriteFunction creates or updates the clean-URL viewer-
	// request function and associates it with the distribution's default
	// cache behavior, returning the function ARN.
	EnsureURLRewriteFunction(ctx context.Context, distributionID, functionName, functionCode string) (string, error)
}

// CloudFrontHeadersPolicyClient manages CloudFront response-headers
// policies.
type CloudFrontHeadersPolicyClient interface {
	EnsureResponseHeadersPolicy(ctx context.Context, distributionID string, cfg ResponseHeadersConfig) error
}

// ManifestKeys converts the build cache's output-sources map into the set
// of S3 keys the build owns: every recorded output path under publicDir,
// relative and slash-normalized. Outputs recorded outside publicDir (a
// custom destination from an older config) are skipped.
func ManifestKeys(bc *cache.BuildCache, publicDir string) map[string]bool {
	keys := make(map[string]bool, len(bc.OutputSources))
	for outPath := range bc.OutputSources {
		rel, err := filepath.Rel(publicDir, outPath)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		keys[filepath.ToSlash(rel)] = true
	}
	return keys
}

// ContentTypeForExt returns the MIME type for a file extension.
// The ext parameter should include the leading dot (e.g. ".html").
func ContentTypeForExt(ext string) string {
	ext = strings.ToLower(ext)

	// Well-known types that we want to be explicit about
	switch ext {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js", ".mjs":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".xml":
		return "application/xml; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".avif":
		return "image/avif"
	case ".ico":
		return "image/x-icon"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wasm":
		return "application/wasm"
	}

	// Fall back to the standard library
	ct := mime.TypeByExtension(ext)
	if ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// fingerprintedAsset matches the asset pipeline's versioned filenames
// (style.<16 hex>.css); the hash in the name makes the content immutable at
// that URL.
var fingerprintedAsset = regexp.MustCompile(`\.[0-9a-f]{16}\.[a-zA-Z0-9]+$`)

// CacheControlFor returns the Cache-Control header for an output path.
//
// Policy:
//   - HTML: "public, max-age=0, must-revalidate" (URLs are stable, bytes
//     change on every edit)
//   - Fingerprinted assets (hash embedded in the filename): immutable for
//     a year — a byte change produces a new URL, never a stale cache
//   - Plain CSS/JS (the non-fingerprinted copies): one hour, since the
//     same URL can serve new bytes after a rebuild
//   - Images: one day
//   - Everything else: one hour
func CacheControlFor(path string) string {
	if fingerprintedAsset.MatchString(path) {
		return "public, max-age=31536000, immutable"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "public, max-age=0, must-revalidate"
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".svg", ".ico":
		return "public, max-age=86400"
	default:
		return "public, max-age=3600"
	}
}

// HashFile returns the hex SHA-256 of the file at path, via the build
// cache's fingerprinting so deploy and build agree on content identity.
func HashFile(path string) (string, error) {
	fp, err := cache.FingerprintFile(path)
	if err != nil {
		return "", err
	}
	return fp.Hash, nil
}

// ScanFiles walks the public directory and returns a FileEntry per file.
// When managed is non-nil, files outside it are skipped entirely — they are
// not the build's to deploy.
func ScanFiles(publicDir string, managed map[string]bool) ([]FileEntry, error) {
	var entries []FileEntry

	err := filepath.Walk(publicDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(publicDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		// Normalize to forward slashes for S3 keys
		relPath = filepath.ToSlash(relPath)

		if managed != nil && !managed[relPath] {
			return nil
		}

		hash, err := HashFile(path)
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path:         relPath,
			ContentType:  ContentTypeForExt(filepath.Ext(path)),
			CacheControl: CacheControlFor(relPath),
			Hash:         hash,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning files: %w", err)
	}

	return entries, nil
}

// DiffFiles compares local files against a map of remote S3 object hashes.
// Returns files to upload (new or changed) and keys to delete (remote
// only). When managed is non-nil, remote keys outside it are left alone —
// the build never owned them, so the deploy must not delete them.
func DiffFiles(local []FileEntry, remoteHashes map[string]string, managed map[string]bool) (toUpload []FileEntry, toDelete []string) {
	localMap := make(map[string]FileEntry, len(local))
	for _, entry := range local {
		localMap[entry.Path] = entry
	}

	for _, entry := range local {
		remoteHash, exists := remoteHashes[entry.Path]
		if !exists || remoteHash != entry.Hash {
			toUpload = append(toUpload, entry)
		}
	}

	for key := range remoteHashes {
		if _, exists := localMap[key]; exists {
			continue
		}
		if managed != nil && !managed[key] {
			continue
		}
		toDelete = append(toDelete, key)
	}
	sort.Strings(toDelete)

	return toUpload, toDelete
}

// invalidationPaths converts touched S3 keys into CloudFront paths: each
// key as "/key", with ".../index.html" also invalidating its clean URL.
// Past maxTargetedInvalidations the whole distribution is invalidated with
// one "/*" instead (AWS bills per path).
func invalidationPaths(uploaded []FileEntry, deleted []string) []string {
	seen := map[string]bool{}
	var paths []string
	add := func(key string) {
		for _, p := range pathsForKey(key) {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	for _, e := range uploaded {
		add(e.Path)
	}
	for _, key := range deleted {
		add(key)
	}
	if len(paths) == 0 {
		return nil
	}
	if len(paths) > maxTargetedInvalidations {
		return []string{"/*"}
	}
	sort.Strings(paths)
	return paths
}

// pathsForKey maps one S3 key onto the viewer URLs that serve it.
func pathsForKey(key string) []string {
	p := "/" + key
	if key == "index.html" {
		return []string{p, "/"}
	}
	if dir, ok := strings.CutSuffix(p, "/index.html"); ok {
		return []string{p, dir + "/"}
	}
	return []string{p}
}

// Deploy executes the deployment:
//
//  1. Scan local files (restricted to the build manifest when provided)
//  2. List remote objects via S3Client
//  3. Diff to find uploads and deletes (manifest-protected)
//  4. If DryRun, report the plan and return
//  5. Upload new/changed files, delete orphans
//  6. Ensure the CloudFront URL rewrite function / headers policy if enabled
//  7. Invalidate exactly the touched CloudFront paths
func Deploy(ctx context.Context, cfg DeployConfig, publicDir string, s3 S3Client, cf CloudFrontClient, cfFunc CloudFrontFunctionClient, cfHeaders CloudFrontHeadersPolicyClient) (*DeployResult, error) {
	result := &DeployResult{}

	// 1. Scan local files
	localFiles, err := ScanFiles(publicDir, cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("scanning local files: %w", err)
	}

	// 2. List remote objects
	remoteHashes, err := s3.ListObjects(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing remote objects: %w", err)
	}

	// 3. Diff
	toUpload, toDelete := DiffFiles(localFiles, remoteHashes, cfg.Manifest)
	result.Skipped = len(localFiles) - len(toUpload)

	// 4. Dry run
	if cfg.DryRun {
		if cfg.Verbose {
			for _, f := range toUpload {
				fmt.Printf("[dry-run] upload: %s (%s)\n", f.Path, f.ContentType)
			}
			for _, key := range toDelete {
				fmt.Printf("[dry-run] delete: %s\n", key)
			}
		}
		if cfg.URLRewrite && cfg.Distribution != "" {
			fmt.Println("[dry-run] ensure CloudFront URL rewrite function: bengal-url-rewrite")
		}
		if cfg.SecurityHeaders && cfg.Distribution != "" {
			fmt.Println("[dry-run] ensure CloudFront response headers policy: bengal-security-headers")
		}
		if cfg.Distribution != "" {
			fmt.Printf("[dry-run] invalidate CloudFront distribution: %s\n", cfg.Distribution)
		}
		result.Uploaded = len(toUpload)
		result.Deleted = len(toDelete)
		return result, nil
	}

	// 5a. Upload new/changed files
	for _, entry := range toUpload {
		fullPath := filepath.Join(publicDir, filepath.FromSlash(entry.Path))
		f, err := os.Open(fullPath)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("opening %s: %w", entry.Path, err))
			continue
		}

		err = s3.PutObject(ctx, entry.Path, f, entry.ContentType, entry.CacheControl, entry.Hash)
		f.Close()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("uploading %s: %w", entry.Path, err))
			continue
		}
		result.Uploaded++
		if cfg.Verbose {
			fmt.Printf("uploaded: %s\n", entry.Path)
		}
	}

	// 5b. Delete removed files
	for _, key := range toDelete {
		if err := s3.DeleteObject(ctx, key); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("deleting %s: %w", key, err))
			continue
		}
		result.Deleted++
		if cfg.Verbose {
			fmt.Printf("deleted: %s\n", key)
		}
	}

	// 6a. Ensure CloudFront URL rewrite function if enabled
	if cfg.URLRewrite && cfg.Distribution != "" && cfFunc != nil {
		arn, err := cfFunc.EnsureURLRewriteFunction(ctx, cfg.Distribution,
			"bengal-url-rewrite", URLRewriteFunctionCode)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("CloudFront URL rewrite function: %w", err))
		} else if cfg.Verbose {
			fmt.Printf("ensured CloudFront URL rewrite function: %s\n", arn)
		}
	}

	// 6b. Ensure the response headers policy if enabled
	if cfg.SecurityHeaders && cfg.Distribution != "" && cfHeaders != nil {
		if err := cfHeaders.EnsureResponseHeadersPolicy(ctx, cfg.Distribution, cfg.SecurityHeadersCfg); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("CloudFront response headers policy: %w", err))
		} else if cfg.Verbose {
			fmt.Println("ensured CloudFront response headers policy")
		}
	}

	// 7. Invalidate the touched paths
	if cfg.Distribution != "" && cf != nil {
		paths := invalidationPaths(toUpload, toDelete)
		if len(paths) > 0 {
			if err := cf.CreateInvalidation(ctx, cfg.Distribution, paths); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("CloudFront invalidation: %w", err))
			} else {
				result.Invalidated = paths
				if cfg.Verbose {
					fmt.Printf("invalidated %d CloudFront path(s)\n", len(paths))
				}
			}
		}
	}

	return result, nil
}
