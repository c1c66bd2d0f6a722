package incremental

import (
	"os"
	"path/filepath"

	"github.com/bengal-ssg/bengal/internal/cache"
)

// CleanupResult reports what CleanDeletedSources actually did, for build
// summary logging.
type CleanupResult struct {
	RemovedOutputs []string
	RemovedDirs    []string
	Errors         []error
}

// CleanDeletedSources removes the output produced by any source path no
// longer present in currentSources, using BuildCache.OutputSources (the
// output->source map recorded at the end of the last successful build) to
// find the files to remove. It then walks back up from each removed file's
// directory, removing any directory left empty, and finally scrubs the
// source from both caches via ForgetSource/Forget so neither detector
// resurrects it on the next build.
//
// outputRoot bounds the directory-removal walk: CleanDeletedSources will
// never remove outputRoot itself even if it ends up empty.
func CleanDeletedSources(buildCache *cache.BuildCache, prov *cache.ProvenanceCache, currentSources map[string]bool, outputRoot string) CleanupResult {
	var result CleanupResult

	deletedSources := map[string]bool{}
	for outPath, src := range buildCache.OutputSources {
		if currentSources[src] {
			continue
		}
		deletedSources[src] = true

		if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, err)
			continue
		}
		result.RemovedOutputs = append(result.RemovedOutputs, outPath)
		removeEmptyAncestors(filepath.Dir(outPath), outputRoot, &result)
	}

	for src := range deletedSources {
		buildCache.ForgetSource(src)
		if prov != nil {
			prov.Forget(src)
		}
	}

	return result
}

// removeEmptyAncestors removes dir and walks upward removing each newly-empty
// parent, stopping at (and never removing) root.
func removeEmptyAncestors(dir, root string, result *CleanupResult) {
	root = filepath.Clean(root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || dir == "." || dir == string(filepath.Separator) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		result.RemovedDirs = append(result.RemovedDirs, dir)
		dir = filepath.Dir(dir)
	}
}
