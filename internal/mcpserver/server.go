package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// BengalServer is the MCP server for Bengal.
type BengalServer struct {
	server    *mcp.Server
	siteDir   string
	ctx       *SiteContext
	lastBuild *BuildResultDetail
	version   string
	log       *zap.Logger
}

// New creates a new BengalServer for the given site directory.
func New(siteDir, version string) *BengalServer {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	fs := &BengalServer{
		siteDir: siteDir,
		version: version,
		log:     logger.With(zap.String("component", "mcpserver"), zap.String("site_dir", siteDir)),
	}
	fs.ctx = NewSiteContext(siteDir)

	fs.server = mcp.NewServer(
		&mcp.Implementation{
			Name:    "bengal",
			Version: version,
		},
		nil,
	)

	fs.registerResources()
	fs.registerTools()
	fs.registerPrompts()

	return fs
}

// Run starts the MCP server on the given transport.
func (fs *BengalServer) Run(ctx context.Context, transport mcp.Transport) error {
	fs.log.Info("starting mcp server", zap.String("version", fs.version))
	defer fs.log.Sync() //nolint:errcheck

	if err := fs.startWatcher(ctx); err != nil {
		fs.log.Warn("content watcher failed to start", zap.Error(err))
	}
	if err := fs.server.Run(ctx, transport); err != nil {
		fs.log.Error("mcp server exited with error", zap.Error(err))
		return err
	}
	fs.log.Info("mcp server stopped")
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
