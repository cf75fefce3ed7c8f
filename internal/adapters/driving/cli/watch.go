package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pdfqa/internal/adapters/driving/watcher"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
)

var watchScan bool

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Index documents as they are added to a directory",
	Long: `Watches a directory and indexes supported documents when they are
created or modified. Changes are debounced so a file being copied is indexed
once it is complete. Failures are reported and watching continues.

Use --scan to index the files already in the directory first.`,
	Args:        cobra.ExactArgs(1),
	Annotations: needs(LevelRetrieval),
	RunE:        runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "index existing files before watching")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	dir := args[0]

	if watchScan {
		paths, err := watcher.ListSupported(dir, indexService.Supports)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			reports, err := indexService.IndexFiles(cmd.Context(), paths)
			for i, report := range reports {
				if report != nil {
					cmd.Printf("Indexed %s: %d chunks\n", paths[i], report.Chunks)
				}
			}
			if err != nil {
				cmd.Printf("%s\n", warnStyle.Render(fmt.Sprintf("Warning: %v", err)))
			}
		}
	}

	w := watcher.New(indexService, watcher.WithReporter(func(path string, report *driving.IndexReport, err error) {
		if err != nil {
			cmd.Printf("%s\n", warnStyle.Render(fmt.Sprintf("Failed %s: %v", path, err)))
			return
		}
		cmd.Printf("Indexed %s: %d chunks\n", path, report.Chunks)
	}))

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	return w.Watch(cmd.Context(), dir)
}
