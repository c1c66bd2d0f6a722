package main

import (
	"fmt"
	"os"

	"github.com/bengal-ssg/bengal/internal/build"
	"github.com/bengal-ssg/bengal/internal/builderr"
	"github.com/bengal-ssg/bengal/internal/config"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the static site",
	Long:  "Build transforms your content into a complete static website, rebuilding only what changed when --incremental is set.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. Load config.
		configPath, _ := cmd.Root().PersistentFlags().GetString("config")
		configPath = config.ResolvePath(configPath)
		cfg, err := config.Load(configPath)
		if err != nil {
			return &builderr.Error{Kind: builderr.KindConfig, Err: err}
		}

		// 2. Apply CLI flag overrides.
		overrides := make(map[string]any)
		if baseURL, _ := cmd.Flags().GetString("baseURL"); baseURL != "" {
			overrides["baseURL"] = baseURL
		}
		if minify, _ := cmd.Flags().GetBool("minify"); minify {
			overrides["minify"] = minify
		}
		cfg.WithOverrides(overrides)

		// 3. Build options from flags.
		drafts, _ := cmd.Flags().GetBool("drafts")
		future, _ := cmd.Flags().GetBool("future")
		expired, _ := cmd.Flags().GetBool("expired")
		destination, _ := cmd.Flags().GetString("destination")
		verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
		minify, _ := cmd.Flags().GetBool("minify")

		incrementalFlag, _ := cmd.Flags().GetBool("incremental")
		full, _ := cmd.Flags().GetBool("full")
		explain, _ := cmd.Flags().GetBool("explain")
		strict, _ := cmd.Flags().GetBool("strict")
		parallel, _ := cmd.Flags().GetBool("parallel")
		sequential, _ := cmd.Flags().GetBool("sequential")

		incremental := incrementalFlag || cfg.Build.Incremental
		if full {
			incremental = false
		}

		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining project root: %w", err)
		}

		opts := build.BuildOptions{
			IncludeDrafts:  drafts,
			IncludeFuture:  future,
			IncludeExpired: expired,
			OutputDir:      destination,
			Verbose:        verbose,
			Minify:         minify,
			BaseURL:        cfg.BaseURL,
			ProjectRoot:    projectRoot,
		}

		// 4. Run the phased build.
		orch := build.NewOrchestrator(cfg, opts)
		result, err := orch.Run(build.RunOptions{
			Incremental: incremental,
			Explain:     explain,
			Strict:      strict,
			Parallel:    parallel && !sequential,
			ConfigPath:  configPath,
		})
		if err != nil {
			return err
		}

		// 5. Print build result summary.
		out := cmd.OutOrStdout()
		if result.Skipped {
			fmt.Fprintln(out, "Nothing changed; build skipped.")
		} else {
			fmt.Fprintf(out,
				"Build complete: %d pages rendered, %d files written, %d files copied in %s\n",
				result.PagesRendered,
				result.FilesWritten,
				result.FilesCopied,
				result.Duration.Round(1_000_000), // round to milliseconds
			)
		}
		if explain && result.Filter != nil {
			for _, line := range explainOutputLines(result) {
				fmt.Fprintln(out, "  "+line)
			}
		}
		for _, e := range result.Errors {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", e)
		}
		if strict && len(result.Errors) > 0 {
			return &builderr.Error{
				Kind: builderr.KindRendering,
				Err:  fmt.Errorf("%d error(s) in strict mode", len(result.Errors)),
			}
		}

		return nil
	},
}

// explainOutputLines renders the --explain trail: the filter's decision log
// plus per-page rebuild reasons.
func explainOutputLines(result *build.OrchestratorResult) []string {
	lines := make([]string, 0, len(result.Filter.DecisionLog)+len(result.Filter.Pages))
	for _, entry := range result.Filter.DecisionLog {
		if entry.Details != "" {
			lines = append(lines, entry.Trigger+": "+entry.Details)
		} else {
			lines = append(lines, entry.Trigger)
		}
	}
	for _, src := range result.Filter.Pages {
		reason := result.Filter.Reasons[src]
		if reason.Details != "" {
			lines = append(lines, fmt.Sprintf("%s: %s (%s)", src, reason.Code, reason.Details))
		} else {
			lines = append(lines, fmt.Sprintf("%s: %s", src, reason.Code))
		}
	}
	return lines
}

func init() {
	buildCmd.Flags().Bool("drafts", false, "include draft content")
	buildCmd.Flags().Bool("future", false, "include future-dated content")
	buildCmd.Flags().Bool("expired", false, "include expired content")
	buildCmd.Flags().String("baseURL", "", "override base URL")
	buildCmd.Flags().StringP("destination", "d", "public", "output directory")
	buildCmd.Flags().Bool("minify", false, "minify output")
	buildCmd.Flags().Bool("incremental", false, "rebuild only changed pages")
	buildCmd.Flags().Bool("full", false, "force a full rebuild")
	buildCmd.Flags().Bool("explain", false, "print why each page was rebuilt")
	buildCmd.Flags().Bool("strict", false, "fail the build on any template or rendering error")
	buildCmd.Flags().Bool("parallel", true, "render pages in parallel")
	buildCmd.Flags().Bool("sequential", false, "render pages one at a time")

	rootCmd.AddCommand(buildCmd)
}
