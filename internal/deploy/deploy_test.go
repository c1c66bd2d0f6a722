package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// mockS3Client for testing
type mockS3Client struct {
	objects   map[string]string // key -> hash
	uploaded  []string
	deleted   []string
	putErr    error
	deleteErr error
}

func (m *mockS3Client) PutObject(_ context.Context, key string, _ io.Reader, _, _, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.uploaded = append(m.uploaded, key)
	return nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockS3Client) ListObjects(_ context.Context, _ string) (map[string]string, error) {
	if m.objects == nil {
		return map[string]string{}, nil
	}
	return m.objects, nil
}

// mockCloudFrontClient for testing
type mockCloudFrontClient struct {
	invalidations [][]string
	err           error
}

func (m *mockCloudFrontClient) CreateInvalidation(_ context.Context, _ string, paths []string) error {
	if m.err != nil {
		return m.err
	}
	m.invalidations = append(m.invalidations, paths)
	return nil
}

// createTempFile creates a file in the given directory with the given content.
func createTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// sha256Hex computes the SHA-256 hash of the given data as a hex string.
func sha256Hex(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

func TestScanFiles(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "<html>hello</html>")
	createTempFile(t, dir, "assets/css/style.css", "body{}")
	createTempFile(t, dir, "blog/post/index.html", "<html>post</html>")

	entries, err := ScanFiles(dir, nil)
	if err != nil {
		t.Fatalf("ScanFiles failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	byPath := map[string]FileEntry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	e, ok := byPath["index.html"]
	if !ok {
		t.Fatal("expected index.html entry")
	}
	if e.ContentType != "text/html; charset=utf-8" {
		t.Errorf("content type = %s", e.ContentType)
	}
	if e.Hash != sha256Hex("<html>hello</html>") {
		t.Errorf("hash mismatch for index.html")
	}
	if _, ok := byPath["blog/post/index.html"]; !ok {
		t.Error("nested keys must use forward slashes")
	}
}

func TestScanFilesRespectsManifest(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "managed")
	createTempFile(t, dir, "uploads/manual.pdf", "not the build's file")

	entries, err := ScanFiles(dir, map[string]bool{"index.html": true})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Path != "index.html" {
		t.Errorf("manifest should restrict the scan, got %+v", entries)
	}
}

func TestManifestKeys(t *testing.T) {
	publicDir := filepath.Join(string(filepath.Separator), "site", "public")
	bc := cache.NewBuildCache()
	bc.OutputSources[filepath.Join(publicDir, "blog", "a", "index.html")] = "blog/a.md"
	bc.OutputSources[filepath.Join(publicDir, "index.html")] = "virtual:/"
	bc.OutputSources[filepath.Join(string(filepath.Separator), "elsewhere", "x.html")] = "old.md"

	keys := ManifestKeys(bc, publicDir)
	if !keys["blog/a/index.html"] || !keys["index.html"] {
		t.Errorf("expected managed keys present, got %v", keys)
	}
	if len(keys) != 2 {
		t.Errorf("outputs outside the public dir must be skipped, got %v", keys)
	}
}

func TestContentTypeForExt(t *testing.T) {
	tests := []struct {
		ext      string
		expected string
	}{
		{".html", "text/html; charset=utf-8"},
		{".css", "text/css; charset=utf-8"},
		{".js", "application/javascript; charset=utf-8"},
		{".json", "application/json; charset=utf-8"},
		{".svg", "image/svg+xml"},
		{".woff2", "font/woff2"},
		{".wasm", "application/wasm"},
		{".zzz", "application/octet-stream"},
	}
	for _, tc := range tests {
		if got := ContentTypeForExt(tc.ext); got != tc.expected {
			t.Errorf("ContentTypeForExt(%q) = %q, want %q", tc.ext, got, tc.expected)
		}
	}
}

func TestCacheControlFor(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"index.html", "public, max-age=0, must-revalidate"},
		{"blog/post/index.html", "public, max-age=0, must-revalidate"},
		// Fingerprinted assets are immutable: a byte change yields a new URL.
		{"assets/css/style.0123456789abcdef.css", "public, max-age=31536000, immutable"},
		{"assets/js/app.fedcba9876543210.js", "public, max-age=31536000, immutable"},
		// Plain copies of the same assets can change under the same URL.
		{"assets/css/style.css", "public, max-age=3600"},
		{"assets/js/app.js", "public, max-age=3600"},
		{"images/logo.png", "public, max-age=86400"},
		{"sitemap.xml", "public, max-age=3600"},
	}
	for _, tc := range tests {
		if got := CacheControlFor(tc.path); got != tc.expected {
			t.Errorf("CacheControlFor(%q) = %q, want %q", tc.path, got, tc.expected)
		}
	}
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	content := "hello world\n"
	path := createTempFile(t, dir, "test.txt", content)

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if got != sha256Hex(content) {
		t.Errorf("HashFile = %q, want %q", got, sha256Hex(content))
	}
	if _, err := HashFile(filepath.Join(dir, "nonexistent.txt")); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestDiffFiles(t *testing.T) {
	local := []FileEntry{
		{Path: "index.html", Hash: "new-hash"},
		{Path: "unchanged.html", Hash: "same"},
		{Path: "added.html", Hash: "fresh"},
	}
	remote := map[string]string{
		"index.html":     "old-hash",
		"unchanged.html": "same",
		"stale.html":     "whatever",
	}

	toUpload, toDelete := DiffFiles(local, remote, nil)

	uploadPaths := make([]string, len(toUpload))
	for i, e := range toUpload {
		uploadPaths[i] = e.Path
	}
	sort.Strings(uploadPaths)
	if !reflect.DeepEqual(uploadPaths, []string{"added.html", "index.html"}) {
		t.Errorf("toUpload = %v", uploadPaths)
	}
	if !reflect.DeepEqual(toDelete, []string{"stale.html"}) {
		t.Errorf("toDelete = %v", toDelete)
	}
}

func TestDiffFilesManifestProtectsUnmanagedRemotes(t *testing.T) {
	remote := map[string]string{
		"stale.html":         "x", // was managed, now orphaned -> delete
		"uploads/manual.pdf": "y", // never the build's file -> keep
	}
	managed := map[string]bool{"stale.html": true}

	_, toDelete := DiffFiles(nil, remote, managed)
	if !reflect.DeepEqual(toDelete, []string{"stale.html"}) {
		t.Errorf("unmanaged remote objects must survive, got %v", toDelete)
	}
}

func TestInvalidationPaths(t *testing.T) {
	paths := invalidationPaths(
		[]FileEntry{{Path: "blog/post/index.html"}, {Path: "assets/css/style.css"}},
		[]string{"old/index.html"},
	)
	want := []string{
		"/assets/css/style.css",
		"/blog/post/",
		"/blog/post/index.html",
		"/old/",
		"/old/index.html",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestInvalidationPathsRootAndCap(t *testing.T) {
	if got := invalidationPaths([]FileEntry{{Path: "index.html"}}, nil); !reflect.DeepEqual(got, []string{"/", "/index.html"}) {
		t.Errorf("root index should invalidate / too, got %v", got)
	}

	var many []FileEntry
	for i := 0; i < maxTargetedInvalidations+1; i++ {
		many = append(many, FileEntry{Path: filepath.ToSlash(filepath.Join("p", string(rune('a'+i)), "f.css"))})
	}
	if got := invalidationPaths(many, nil); !reflect.DeepEqual(got, []string{"/*"}) {
		t.Errorf("too many paths should collapse to /*, got %v", got)
	}

	if got := invalidationPaths(nil, nil); got != nil {
		t.Errorf("no changes should invalidate nothing, got %v", got)
	}
}

func TestDeployDryRun(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "hello")

	s3 := &mockS3Client{}
	cf := &mockCloudFrontClient{}

	result, err := Deploy(context.Background(), DeployConfig{DryRun: true}, dir, s3, cf, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 1 {
		t.Errorf("dry run should report planned uploads, got %d", result.Uploaded)
	}
	if len(s3.uploaded) != 0 {
		t.Error("dry run must not touch S3")
	}
	if len(cf.invalidations) != 0 {
		t.Error("dry run must not invalidate CloudFront")
	}
}

func TestDeployUploadAndDelete(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "hello")
	createTempFile(t, dir, "same.html", "unchanged")

	s3 := &mockS3Client{objects: map[string]string{
		"same.html":  sha256Hex("unchanged"),
		"stale.html": "gone",
	}}

	result, err := Deploy(context.Background(), DeployConfig{}, dir, s3, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Uploaded != 1 || len(s3.uploaded) != 1 || s3.uploaded[0] != "index.html" {
		t.Errorf("expected one upload of index.html, got %+v", s3.uploaded)
	}
	if result.Deleted != 1 || len(s3.deleted) != 1 || s3.deleted[0] != "stale.html" {
		t.Errorf("expected stale.html deleted, got %+v", s3.deleted)
	}
	if result.Skipped != 1 {
		t.Errorf("unchanged file should be skipped, got %d", result.Skipped)
	}
}

func TestDeployTargetedInvalidation(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "blog/post/index.html", "post")

	s3 := &mockS3Client{}
	cf := &mockCloudFrontClient{}

	result, err := Deploy(context.Background(), DeployConfig{Distribution: "DIST123"}, dir, s3, cf, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cf.invalidations) != 1 {
		t.Fatalf("expected one invalidation call, got %d", len(cf.invalidations))
	}
	want := []string{"/blog/post/", "/blog/post/index.html"}
	if !reflect.DeepEqual(cf.invalidations[0], want) {
		t.Errorf("invalidated %v, want %v", cf.invalidations[0], want)
	}
	if !reflect.DeepEqual(result.Invalidated, want) {
		t.Errorf("result should report invalidated paths, got %v", result.Invalidated)
	}
}

func TestDeployNoInvalidationWhenNothingChanged(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "hello")

	s3 := &mockS3Client{objects: map[string]string{"index.html": sha256Hex("hello")}}
	cf := &mockCloudFrontClient{}

	if _, err := Deploy(context.Background(), DeployConfig{Distribution: "DIST123"}, dir, s3, cf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(cf.invalidations) != 0 {
		t.Errorf("no changes should mean no invalidation, got %v", cf.invalidations)
	}
}

func TestDeployNoCloudFrontWithoutDistribution(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "hello")

	s3 := &mockS3Client{}
	cf := &mockCloudFrontClient{}

	if _, err := Deploy(context.Background(), DeployConfig{}, dir, s3, cf, nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(cf.invalidations) != 0 {
		t.Error("no distribution configured: CloudFront must not be called")
	}
}

func TestDeployManifestRestrictsScope(t *testing.T) {
	dir := t.TempDir()
	createTempFile(t, dir, "index.html", "managed")
	createTempFile(t, dir, "uploads/manual.pdf", "unmanaged local file")

	s3 := &mockS3Client{objects: map[string]string{
		"uploads/other.pdf": "unmanaged remote file",
	}}

	cfg := DeployConfig{Manifest: map[string]bool{"index.html": true}}
	result, err := Deploy(context.Background(), cfg, dir, s3, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s3.uploaded) != 1 || s3.uploaded[0] != "index.html" {
		t.Errorf("only managed files upload, got %v", s3.uploaded)
	}
	if len(s3.deleted) != 0 {
		t.Errorf("unmanaged remote objects must not be deleted, got %v", s3.deleted)
	}
	if result.Uploaded != 1 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestScanFilesEmptyDir(t *testing.T) {
	entries, err := ScanFiles(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("ScanFiles failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestScanFilesNonExistentDir(t *testing.T) {
	if _, err := ScanFiles(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for missing directory")
	}
}
