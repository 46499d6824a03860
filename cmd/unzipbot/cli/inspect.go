package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/internal/archive"
	"github.com/meigma/unzipbot/internal/media"
)

var (
	inspectHuman bool
	inspectCheck bool
)

var inspectCmd = &cobra.Command{
	Use:     "inspect <archive>",
	Aliases: []string{"ls"},
	Short:   "List the entries of a ZIP archive",
	GroupID: "core",
	Long: `Inspect reads only the central directory of an archive and prints its
entries without extracting anything. Sizes are the declared ones.

With --check the listing is also validated against the configured limits.

Examples:
  unzipbot inspect upload.zip
  unzipbot inspect -H --check upload.zip`,
	Args:              cobra.ExactArgs(1),
	RunE:              runInspect,
	ValidArgsFunction: completeArchives,
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectHuman, "human-readable", "H", false, "Print sizes in human-readable format")
	inspectCmd.Flags().BoolVar(&inspectCheck, "check", false, "Validate the archive against the safety limits")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(_ *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	entries, err := unzipbot.Inspect(ctx, args[0])
	if err != nil {
		return err
	}
	printEntries(os.Stdout, entries)

	if !inspectCheck {
		return nil
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limits, err := cfg.SafetyLimits()
	if err != nil {
		return err
	}
	if err := archive.CheckEntries(entries, limits); err != nil {
		return err
	}
	fmt.Printf("OK: within limits (files: %s, total: %s, per file: %s)\n",
		countFlag(limits.MaxFiles), sizeFlag(limits.MaxTotalSize), sizeFlag(limits.MaxFileSize))
	return nil
}

// printEntries prints size, compressed size, kind and name per entry, then a
// summary line.
func printEntries(w io.Writer, entries []unzipbot.ArchiveEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SIZE\tCOMPRESSED\tKIND\tNAME")
	var files int
	var total int64
	for _, e := range entries {
		kind := media.KindOf(e.Name).String()
		switch {
		case e.IsDir:
			kind = "dir"
		case e.Special:
			kind = "skipped"
		}
		if !e.IsDir {
			files++
			total += e.UncompressedSize
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			entrySize(e, e.UncompressedSize),
			entrySize(e, e.CompressedSize),
			kind,
			e.Name)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d files, %s uncompressed\n", files, humanize.IBytes(safeUint64(total)))
}

func entrySize(e unzipbot.ArchiveEntry, n int64) string {
	if e.IsDir {
		return "-"
	}
	if inspectHuman {
		return humanize.IBytes(safeUint64(n))
	}
	return strconv.FormatInt(n, 10)
}

func countFlag(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}
