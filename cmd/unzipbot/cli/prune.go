package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unzipbot/cmd/unzipbot/cli/config"
	"github.com/meigma/unzipbot/internal/workspace"
)

var (
	pruneDir     string
	pruneMaxSize string
	pruneMaxAge  string
	pruneList    bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old or excess extraction directories",
	Long: `Prune the extraction workspace based on age and/or size limits.

Request directories are removed oldest first. Owner directories left empty
are removed too. Without flags the prune settings from the config are used.

Size can be specified with units: B, KB, MB, GB, TB.
Age can be specified with units: s, m, h, d (e.g., 24h, 7d).

Examples:
  unzipbot prune --list
  unzipbot prune --max-age 24h
  unzipbot prune --max-size 500MB --max-age 7d`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().StringVar(&pruneDir, "dir", "", "Workspace directory (default <data-dir>/extracted)")
	pruneCmd.Flags().StringVar(&pruneMaxSize, "max-size", "", "Maximum workspace size (e.g., 1GB)")
	pruneCmd.Flags().StringVar(&pruneMaxAge, "max-age", "", "Maximum request age (e.g., 24h, 7d)")
	pruneCmd.Flags().BoolVarP(&pruneList, "list", "l", false, "List request directories instead of pruning")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := pruneDir
	if dir == "" {
		dir = cfg.ExtractDir()
	}
	ws := workspace.New(dir, newLogger(slog.LevelWarn))

	if pruneList {
		return listWorkspace(ws)
	}

	opts, err := pruneOptions(cfg, cmd.Flags().Changed("max-size") || cmd.Flags().Changed("max-age"))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := ws.Prune(ctx, opts)
	if err != nil {
		return err
	}

	if result.RequestsRemoved == 0 {
		fmt.Println("No requests to prune")
	} else {
		fmt.Printf("Removed %d requests (%s)\n",
			result.RequestsRemoved, humanize.Bytes(safeUint64(result.BytesRemoved)))
	}

	if result.RequestsRemaining > 0 {
		fmt.Printf("Remaining: %d requests (%s)\n",
			result.RequestsRemaining, humanize.Bytes(safeUint64(result.BytesRemaining)))
	}

	return nil
}

// pruneOptions builds options from flags, or from the config when no flag
// was given.
func pruneOptions(cfg config.Config, fromFlags bool) (workspace.PruneOptions, error) {
	var opts workspace.PruneOptions
	maxSize, maxAge := pruneMaxSize, pruneMaxAge
	if !fromFlags {
		maxSize = cfg.Prune.MaxSize
		opts.MaxAge = cfg.Prune.MaxAge
	}

	// Parse max-size flag
	if maxSize != "" {
		size, err := humanize.ParseBytes(maxSize)
		if err != nil {
			return opts, fmt.Errorf("invalid --max-size: %w", err)
		}
		opts.MaxSize = safeInt64(size)
	}

	// Parse max-age flag
	if maxAge != "" {
		age, err := parseDuration(maxAge)
		if err != nil {
			return opts, fmt.Errorf("invalid --max-age: %w", err)
		}
		opts.MaxAge = age
	}

	// Require at least one option
	if opts.MaxSize == 0 && opts.MaxAge == 0 {
		return opts, errors.New("at least one of --max-size or --max-age is required")
	}
	return opts, nil
}

func listWorkspace(ws *workspace.Workspace) error {
	reqs, err := ws.List()
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		fmt.Println("Workspace is empty")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OWNER\tTOKEN\tFILES\tSIZE\tCREATED")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			r.Owner, r.Token, r.Files,
			humanize.Bytes(safeUint64(r.Size)),
			humanize.Time(r.ModTime))
	}
	return tw.Flush()
}

// parseDuration parses a duration string with support for days (d).
func parseDuration(s string) (time.Duration, error) {
	// Handle days suffix
	if s != "" && s[len(s)-1] == 'd' {
		days, err := parseInt(s[:len(s)-1])
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// parseInt parses an integer from a string.
func parseInt(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid integer: %q", s)
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid integer: %s", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// safeUint64 converts int64 to uint64, clamping negative values to 0.
func safeUint64(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// safeInt64 converts uint64 to int64, clamping to max int64 if overflow.
func safeInt64(n uint64) int64 {
	const maxInt64 = int64(^uint64(0) >> 1)
	if n > uint64(maxInt64) {
		return maxInt64
	}
	return int64(n)
}
