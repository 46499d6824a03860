package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/meigma/unzipbot/internal/archive"
)

var (
	backupSource string
	backupOutput string
	backupMethod string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a ZIP backup of the data directory",
	Long: `Backup packs a directory (the data directory by default) into a ZIP file.

Hidden files, cache directories, compiled Python files and non-regular files
are left out. The archive is written to a temporary file and renamed into
place when complete.

Examples:
  unzipbot backup
  unzipbot backup --source ./bot --output bot.zip
  unzipbot backup --method zstd`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVar(&backupSource, "source", "", "Directory to back up (default <data-dir>)")
	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file (default backup_<timestamp>.zip)")
	backupCmd.Flags().StringVar(&backupMethod, "method", string(archive.MethodDeflate), "Compression: deflate, zstd or store")
	//nolint:errcheck // completion registration cannot fail for a defined flag
	backupCmd.RegisterFlagCompletionFunc("method", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{
			string(archive.MethodDeflate),
			string(archive.MethodZstd),
			string(archive.MethodStore),
		}, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.AddCommand(backupCmd)
}

func runBackup(_ *cobra.Command, _ []string) error {
	src := backupSource
	if src == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		src = cfg.DataDir
	}
	out := backupOutput
	if out == "" {
		out = "backup_" + time.Now().Format("20060102_150405") + ".zip"
	}

	ctx, cancel := signalContext()
	defer cancel()

	dir := filepath.Dir(out)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	// Hidden so the builder skips it when out lies inside src.
	tmp, err := os.CreateTemp(dir, ".backup-*.zip")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	result, err := archive.BuildBackup(ctx, src, tmp, archive.Method(backupMethod), newLogger(slog.LevelWarn))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, out); err != nil {
		return err
	}

	fmt.Printf("Backed up %d files (%s) to %s\n",
		result.Files, humanize.Bytes(safeUint64(result.Bytes)), out)
	if result.Skipped > 0 {
		fmt.Printf("Skipped: %d entries\n", result.Skipped)
	}
	return nil
}
