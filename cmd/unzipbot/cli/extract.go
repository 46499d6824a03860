package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/unzipbot"
)

var (
	extractDest  string
	extractOwner string
	extractJobs  int
	extractList  bool
)

var extractCmd = &cobra.Command{
	Use:     "extract <archive>...",
	Short:   "Validate and extract ZIP archives",
	GroupID: "core",
	Long: `Extract validates each archive against the configured safety limits and
unpacks it into <dest>/<owner>/<token>. Entry paths are flattened to sanitized
base names and collisions are renamed, so nothing is written outside the
request directory.

Archives are processed in parallel (see --jobs).

Examples:
  unzipbot extract photos.zip
  unzipbot extract --dest ./out --owner alice a.zip b.zip
  unzipbot extract --max-files 10 --max-total-size 20MB upload.zip`,
	Args:              cobra.MinimumNArgs(1),
	RunE:              runExtract,
	ValidArgsFunction: completeArchives,
}

func init() {
	extractCmd.Flags().StringVarP(&extractDest, "dest", "d", "", "Destination root (default <data-dir>/extracted)")
	extractCmd.Flags().StringVar(&extractOwner, "owner", "cli", "Owner namespace for the request directories")
	extractCmd.Flags().IntVarP(&extractJobs, "jobs", "j", 4, "Number of archives to extract concurrently")
	extractCmd.Flags().BoolVarP(&extractList, "list", "l", false, "Print every extracted file")
	extractCmd.Flags().Int("max-files", 0, "Maximum files per archive")
	extractCmd.Flags().String("max-total-size", "", "Maximum total uncompressed size (e.g. 100MiB)")
	extractCmd.Flags().String("max-file-size", "", "Maximum size of one file (e.g. 50MiB)")
	extractCmd.Flags().Duration("timeout", 0, "Abort an extraction after this long")
	extractCmd.Flags().Bool("rollback", true, "Remove partial output when extraction fails")
	for key, flag := range map[string]string{
		"limits.max-files":      "max-files",
		"limits.max-total-size": "max-total-size",
		"limits.max-file-size":  "max-file-size",
		"extract.timeout":       "timeout",
		"extract.rollback":      "rollback",
	} {
		//nolint:errcheck // flags are defined above
		viper.BindPFlag(key, extractCmd.Flags().Lookup(flag))
	}
	rootCmd.AddCommand(extractCmd)
}

func runExtract(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limits, err := cfg.SafetyLimits()
	if err != nil {
		return err
	}
	dest := extractDest
	if dest == "" {
		dest = cfg.ExtractDir()
	}
	if extractJobs < 1 {
		return fmt.Errorf("--jobs must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger(slog.LevelWarn)
	progress := newExtractProgress(declaredTotal(ctx, args))

	results := make([]unzipbot.ExtractionResult, len(args))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractJobs)
	for i, path := range args {
		opts := []unzipbot.Option{
			unzipbot.WithLimits(limits),
			unzipbot.WithLogger(logger),
			unzipbot.WithTimeout(cfg.Extract.Timeout),
			unzipbot.WithRollback(cfg.Extract.Rollback),
		}
		if track := progress.tracker(); track != nil {
			opts = append(opts, unzipbot.WithProgress(track))
		}
		p, err := unzipbot.NewPipeline(dest, opts...)
		if err != nil {
			return err
		}
		g.Go(func() error {
			results[i] = p.ExtractArchive(gctx, unzipbot.ExtractionRequest{
				SourcePath: path,
				OwnerID:    extractOwner,
			})
			return nil
		})
	}
	//nolint:errcheck // goroutines report through results
	g.Wait()
	progress.finish()

	var errs []error
	for i, res := range results {
		if !res.Success {
			errs = append(errs, fmt.Errorf("%s: %w", args[i], res.Err))
			continue
		}
		printResult(args[i], res)
	}
	return errors.Join(errs...)
}

// declaredTotal sums declared entry sizes for the progress bar. Unreadable
// archives contribute nothing here and fail later with a proper error.
func declaredTotal(ctx context.Context, paths []string) int64 {
	if !shouldShowProgress() {
		return 0
	}
	var total int64
	for _, path := range paths {
		entries, err := unzipbot.Inspect(ctx, path)
		if err != nil {
			continue
		}
		for _, e := range entries {
			total += e.UncompressedSize
		}
	}
	return total
}

func printResult(path string, res unzipbot.ExtractionResult) {
	fmt.Printf("%s: %d files (%d videos, %d images) -> %s\n",
		filepath.Base(path), res.TotalFileCount, len(res.VideoFiles), len(res.ImageFiles), res.ExtractDir)
	if extractList {
		for _, f := range res.ExtractedFiles {
			fmt.Printf("  %s\n", filepath.Base(f))
		}
	}
}

// sizeFlag formats a limit for display; zero means unlimited.
func sizeFlag(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(safeUint64(n))
}
