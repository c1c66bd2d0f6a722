package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the output directory and build caches",
	Long:  "Clean deletes the generated site and the .bengal cache directory, forcing the next build to start from scratch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		destination, _ := cmd.Flags().GetString("destination")

		projectRoot, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining project root: %w", err)
		}
		outputDir := destination
		if !filepath.IsAbs(outputDir) {
			outputDir = filepath.Join(projectRoot, outputDir)
		}

		for _, dir := range []string{outputDir, filepath.Join(projectRoot, ".bengal")} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("removing %s: %w", dir, err)
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleaned output directory and build caches.")
		return nil
	},
}

func init() {
	cleanCmd.Flags().StringP("destination", "d", "public", "output directory")
	rootCmd.AddCommand(cleanCmd)
}
