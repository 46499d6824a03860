package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/meigma/unzipbot/cmd/unzipbot/cli/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage unzipbot configuration",
	Long: `View and modify unzipbot configuration.

Without arguments, displays the current effective configuration.
Use subcommands to view the config path, initialize a config file,
or set configuration values.

Every key can also be set through the environment with the UNZIPBOT_
prefix, e.g. UNZIPBOT_BOT_TOKEN or UNZIPBOT_LIMITS_MAX_FILES.`,
	RunE: runConfigShow,
}

func init() {
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE: func(_ *cobra.Command, _ []string) error {
		configPath, err := configFilePath()
		if err != nil {
			return err
		}
		fmt.Println(configPath)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a default configuration file at the XDG config path.

The file will be created at ~/.config/unzipbot/config.yaml (or
$XDG_CONFIG_HOME/unzipbot/config.yaml if set).`,
	RunE: runConfigInit,
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if already exists
	if _, statErr := os.Stat(configPath); statErr == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	// Create directory and write default config
	if mkdirErr := os.MkdirAll(filepath.Dir(configPath), 0o750); mkdirErr != nil {
		return mkdirErr
	}

	d := config.Default()
	defaultConfig := map[string]any{
		"progress": d.Progress,
		"bot": map[string]any{
			// token omitted - typically set via UNZIPBOT_BOT_TOKEN
			"admin-id":      d.Bot.AdminID,
			"poll-timeout":  d.Bot.PollTimeout.String(),
			"max-send-size": d.Bot.MaxSendSize,
			"cleanup":       d.Bot.Cleanup,
		},
		"limits": map[string]any{
			"max-files":      d.Limits.MaxFiles,
			"max-total-size": d.Limits.MaxTotalSize,
			"max-file-size":  d.Limits.MaxFileSize,
		},
		"extract": map[string]any{
			"timeout":  d.Extract.Timeout.String(),
			"rollback": d.Extract.Rollback,
		},
		"prune": map[string]any{
			"max-age": d.Prune.MaxAge.String(),
		},
	}
	data, err := yaml.Marshal(defaultConfig)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if writeErr := os.WriteFile(configPath, data, 0o600); writeErr != nil {
		return writeErr
	}

	fmt.Printf("Created config file: %s\n", configPath)
	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Examples:
  unzipbot config set limits.max-files 50
  unzipbot config set extract.rollback false
  unzipbot config set bot.admin-id 123456789`,
	Args: cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		// Parse boolean and integer values
		var parsedValue any
		switch value {
		case "true":
			parsedValue = true
		case "false":
			parsedValue = false
		default:
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				parsedValue = n
			} else {
				parsedValue = value
			}
		}

		// Set in Viper
		viper.Set(key, parsedValue)

		// Write to config file
		configPath, err := configFilePath()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
			return err
		}
		if err := viper.WriteConfigAs(configPath); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		fmt.Printf("Updated %s = %v\n", key, parsedValue)
		return nil
	},
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	// Show all settings with their effective values
	settings := viper.AllSettings()
	if bot, ok := settings["bot"].(map[string]any); ok {
		if tok, _ := bot["token"].(string); tok != "" {
			bot["token"] = "<redacted>"
		}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// configFilePath returns --config when given, otherwise the XDG path.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	configDir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}
