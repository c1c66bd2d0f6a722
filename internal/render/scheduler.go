package render

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bengal-ssg/bengal/internal/content"
)

// Generation is a monotonic build counter used to invalidate any per-thread
// render state (cached template pipelines, thread-local parser instances)
// that must not survive across builds in a long-running process (serve
// mode). Each call to Next starts a new generation; render workers compare
// their cached generation against the current one and rebuild thread-local
// state on mismatch instead of paying setup cost on every single page.
type Generation struct {
	n int64
}

// Next advances to the next generation and returns it.
func (g *Generation) Next() int64 { return atomic.AddInt64(&g.n, 1) }

// Current returns the generation without advancing it.
func (g *Generation) Current() int64 { return atomic.LoadInt64(&g.n) }

// ActiveRenders tracks how many render workers are currently mid-page: the
// orchestrator calls Enter/Leave around each page and Count reads the
// figure. The write-behind collector does not consult it.
type ActiveRenders struct {
	n int64
}

func (a *ActiveRenders) Enter() { atomic.AddInt64(&a.n, 1) }
func (a *ActiveRenders) Leave() { atomic.AddInt64(&a.n, -1) }
func (a *ActiveRenders) Count() int64 { return atomic.LoadInt64(&a.n) }

// OptimalWorkers sizes the render worker pool: it honors an explicit
// maxWorkers override (config.BuildConfig.MaxWorkers) when positive,
// otherwise defaults to the CPU count, in both cases never exceeding the
// number of pages actually queued (no point spinning up more workers than
// there is work).
func OptimalWorkers(pageCount, maxWorkers int) int {
	if pageCount <= 0 {
		return 1
	}
	workers := maxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > pageCount {
		workers = pageCount
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// complexity scores a page's expected render cost, used to order the work
// queue so the longest jobs start first (LPT scheduling): a greedy pool that
// pulls longest-first minimizes the makespan far better than submitting in
// discovery order, since a handful of long pages at the tail otherwise
// strand every other worker idle while one worker finishes them alone.
func complexity(p *content.Page) int {
	score := len(p.RawContent)
	score += len(p.Tags)*50 + len(p.Categories)*50
	if p.IsBundle {
		score += len(p.BundleFiles) * 100
	}
	return score
}

// OrderForRender sorts pages for the render phase: forced/changed sources
// first (so a watch-mode rebuild shows its actual edits as soon as possible
// rather than waiting behind unrelated long pages), then by descending
// complexity within each group (LPT), with SourcePath as a final
// deterministic tiebreaker so two builds of the same unchanged site always
// schedule work in the same order.
func OrderForRender(pages []*content.Page, priority map[string]bool) []*content.Page {
	ordered := make([]*content.Page, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := priority[ordered[i].SourcePath], priority[ordered[j].SourcePath]
		if pi != pj {
			return pi
		}
		ci, cj := complexity(ordered[i]), complexity(ordered[j])
		if ci != cj {
			return ci > cj
		}
		return ordered[i].SourcePath < ordered[j].SourcePath
	})
	return ordered
}

// WriteJob is one unit of write-behind work: rendered bytes bound for a
// single output path, relative to the collector's output root.
type WriteJob struct {
	RelPath string
	Data    []byte
}

// WriteBehindCollector decouples page rendering from disk I/O: render
// workers hand off finished HTML to a small pool of writer goroutines
// instead of blocking on os.WriteFile themselves, so a slow disk doesn't
// stall the CPU-bound render pool. Writes are atomic (tmp file + rename)
// to avoid a reader ever observing a partially-written page during `bengal
// serve`.
type WriteBehindCollector struct {
	outputDir string
	jobs      chan WriteJob
	wg        sync.WaitGroup

	mu      sync.Mutex
	written []string
	errs    []error
}

// NewWriteBehindCollector starts workers writer goroutines under outputDir.
// Precreating directories ahead of the render pass (see PrecreateDirectories)
// is what lets every writer goroutine call os.WriteFile/os.Rename directly
// without each one separately racing to MkdirAll the same parent.
func NewWriteBehindCollector(outputDir string, workers, queueDepth int) *WriteBehindCollector {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 1 {
		queueDepth = workers * 4
	}
	c := &WriteBehindCollector{
		outputDir: outputDir,
		jobs:      make(chan WriteJob, queueDepth),
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go c.writeLoop()
	}
	return c
}

func (c *WriteBehindCollector) writeLoop() {
	defer c.wg.Done()
	for job := range c.jobs {
		err := c.writeAtomic(job)
		c.mu.Lock()
		if err != nil {
			c.errs = append(c.errs, err)
		} else {
			c.written = append(c.written, job.RelPath)
		}
		c.mu.Unlock()
	}
}

func (c *WriteBehindCollector) writeAtomic(job WriteJob) error {
	full := filepath.Join(c.outputDir, job.RelPath)
	tmp := full + ".tmp-write-behind"
	if err := os.WriteFile(tmp, job.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", job.RelPath, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		return fmt.Errorf("renaming %s into place: %w", job.RelPath, err)
	}
	return nil
}

// Submit enqueues job for writing. Blocks if the queue is full, applying
// natural backpressure to render workers outrunning disk throughput.
func (c *WriteBehindCollector) Submit(job WriteJob) {
	c.jobs <- job
}

// PrecreateDirectories creates every parent directory a subsequent Submit
// batch will need, up front and single-threaded, so writer goroutines never
// contend on MkdirAll for the same path.
func (c *WriteBehindCollector) PrecreateDirectories(relPaths []string) error {
	dirs := map[string]bool{}
	for _, rel := range relPaths {
		dirs[filepath.Dir(filepath.Join(c.outputDir, rel))] = true
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("precreating %s: %w", dir, err)
		}
	}
	return nil
}

// Close stops accepting new jobs, waits for every writer to drain, and
// returns every path written plus any write errors encountered.
func (c *WriteBehindCollector) Close() ([]string, []error) {
	close(c.jobs)
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written, c.errs
}
