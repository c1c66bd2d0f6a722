package mcpserver

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bengal-ssg/bengal/internal/server"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// startWatcher starts a file watcher that marks the site context dirty and
// sends resource update notifications when content files change.
func (fs *BengalServer) startWatcher(ctx context.Context) error {
	watchPaths := []string{
		filepath.Join(fs.siteDir, "content"),
		filepath.Join(fs.siteDir, "bengal.yaml"),
		filepath.Join(fs.siteDir, "layouts"),
		filepath.Join(fs.siteDir, "data"),
	}

	watcher := server.NewWatcher(watchPaths, 500*time.Millisecond, func(changed []string) {
		fs.ctx.MarkDirty()
		fs.log.Debug("content change detected, marking site context dirty")
		// Notify clients that resources have changed
		if err := fs.server.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{
			URI: "bengal://content/pages",
		}); err != nil {
			fs.log.Warn("failed to send resource-updated notification", zap.Error(err))
		}
	})

	go func() {
		if err := watcher.Start(); err != nil {
			fs.log.Warn("content watcher stopped", zap.Error(err))
			return
		}
		<-ctx.Done()
		watcher.Stop()
	}()

	return nil
}
