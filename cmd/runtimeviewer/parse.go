package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"runtimeviewer/internal/models"
	"runtimeviewer/internal/runtimes"
)

var parseTreePath string

var parseCmd = &cobra.Command{
	Use:   "parse LOG...",
	Short: "Parse condensed runtime logs into runtime batches",
	Long: `Parses one or more condensed runtime logs and prints the batches as JSON.
With --tree, source files are matched against a repository file list (a git
tree API response or one path per line) to fill in best-guess filenames.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runParse(cmd.OutOrStdout(), parseTreePath, args)
	},
}

func init() {
	parseCmd.Flags().StringVar(&parseTreePath, "tree", "", "repository file list used to resolve source files")
}

func runParse(out io.Writer, treePath string, paths []string) error {
	var index runtimes.FileIndex
	if treePath != "" {
		file, err := os.Open(treePath)
		if err != nil {
			return fmt.Errorf("open file index: %w", err)
		}
		index, err = runtimes.LoadFileIndex(file)
		file.Close()
		if err != nil {
			return err
		}
	}

	results := make([][]models.RuntimeBatch, len(paths))
	var group errgroup.Group
	group.SetLimit(4)
	for i, path := range paths {
		group.Go(func() error {
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			batches, err := runtimes.Parse(string(content))
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			results[i] = batches
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	all := make([]models.RuntimeBatch, 0)
	for _, batches := range results {
		all = append(all, batches...)
	}
	runtimes.Annotate(all, index)

	if logger != nil {
		logger.Debug("parsed runtime logs", zap.Int("files", len(paths)), zap.Int("batches", len(all)))
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(all)
}
