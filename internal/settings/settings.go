// Package settings holds the bot's runtime-editable settings, persisted as YAML.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/meigma/unzipbot/core"
)

// Errors returned by channel operations.
var (
	ErrInvalidChannel  = errors.New("invalid channel username")
	ErrChannelExists   = errors.New("channel already exists")
	ErrChannelNotFound = errors.New("channel not found")
	ErrInvalidSetting  = errors.New("invalid setting value")
)

// Channel is a chat the bot may require users to join.
type Channel struct {
	Username string `yaml:"username"`
	Title    string `yaml:"title"`
	Required bool   `yaml:"required"`
}

// Settings is the persisted document.
type Settings struct {
	Channels        []Channel `yaml:"channels"`
	BotEnabled      bool      `yaml:"bot_enabled"`
	MaxZipSizeMB    int       `yaml:"max_zip_size_mb"`
	MaxFilesPerZip  int       `yaml:"max_files_per_zip"`
	WelcomeMessage  string    `yaml:"welcome_message"`
	MaintenanceMode bool      `yaml:"maintenance_mode"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		Channels:       []Channel{},
		BotEnabled:     true,
		MaxZipSizeMB:   20,
		MaxFilesPerZip: core.DefaultMaxFiles,
	}
}

// Limits derives extraction limits. Only the file count is editable; size
// limits stay at their defaults.
func (s Settings) Limits() core.SafetyLimits {
	limits := core.DefaultLimits()
	if s.MaxFilesPerZip > 0 {
		limits.MaxFiles = s.MaxFilesPerZip
	}
	return limits
}

// MaxUploadBytes is MaxZipSizeMB in bytes.
func (s Settings) MaxUploadBytes() int64 {
	return int64(s.MaxZipSizeMB) << 20
}

// RequiredChannels returns the channels users must join.
func (s Settings) RequiredChannels() []Channel {
	var out []Channel
	for _, ch := range s.Channels {
		if ch.Required {
			out = append(out, ch)
		}
	}
	return out
}

// NormalizeChannel strips "@" and "https://t.me/" from a channel reference.
func NormalizeChannel(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimPrefix(ref, "https://t.me/")
	ref = strings.TrimPrefix(ref, "http://t.me/")
	ref = strings.TrimPrefix(ref, "t.me/")
	ref = strings.ReplaceAll(ref, "@", "")
	return strings.TrimSpace(ref)
}

// Store guards a Settings document backed by a file. Every mutation is
// written back before it returns.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	cur Settings
}

// Open loads path over the defaults. A missing file yields defaults; a file
// that cannot be parsed is logged and also yields defaults.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Store{path: path, logger: logger, cur: Default()}

	//nolint:gosec // G304: path comes from configuration
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	loaded := Default()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		logger.Warn("settings file unreadable, using defaults", "path", path, "error", err)
		return s, nil
	}
	if loaded.Channels == nil {
		loaded.Channels = []Channel{}
	}
	s.cur = loaded
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.clone()
}

// AddChannel adds a required channel. Duplicates are detected case-insensitively.
func (s *Store) AddChannel(ref, title string) (Channel, error) {
	username := NormalizeChannel(ref)
	if username == "" {
		return Channel{}, ErrInvalidChannel
	}
	if title == "" {
		title = username
	}
	ch := Channel{Username: username, Title: title, Required: true}

	err := s.update(func(cur *Settings) error {
		if indexOf(cur.Channels, username) >= 0 {
			return fmt.Errorf("%w: @%s", ErrChannelExists, username)
		}
		cur.Channels = append(cur.Channels, ch)
		return nil
	})
	return ch, err
}

// RemoveChannel deletes a channel.
func (s *Store) RemoveChannel(ref string) error {
	username := NormalizeChannel(ref)
	return s.update(func(cur *Settings) error {
		i := indexOf(cur.Channels, username)
		if i < 0 {
			return fmt.Errorf("%w: @%s", ErrChannelNotFound, username)
		}
		cur.Channels = append(cur.Channels[:i], cur.Channels[i+1:]...)
		return nil
	})
}

// ToggleChannel flips whether a channel is required and returns the new state.
func (s *Store) ToggleChannel(ref string) (bool, error) {
	username := NormalizeChannel(ref)
	var required bool
	err := s.update(func(cur *Settings) error {
		i := indexOf(cur.Channels, username)
		if i < 0 {
			return fmt.Errorf("%w: @%s", ErrChannelNotFound, username)
		}
		cur.Channels[i].Required = !cur.Channels[i].Required
		required = cur.Channels[i].Required
		return nil
	})
	return required, err
}

// RequiredChannels returns the channels users must join.
func (s *Store) RequiredChannels() []Channel {
	return s.Get().RequiredChannels()
}

// ToggleMaintenance flips maintenance mode and returns the new state.
func (s *Store) ToggleMaintenance() (bool, error) {
	var on bool
	err := s.update(func(cur *Settings) error {
		cur.MaintenanceMode = !cur.MaintenanceMode
		on = cur.MaintenanceMode
		return nil
	})
	return on, err
}

// SetMaxFiles sets the per-archive file limit.
func (s *Store) SetMaxFiles(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: max files must be positive", ErrInvalidSetting)
	}
	return s.update(func(cur *Settings) error {
		cur.MaxFilesPerZip = n
		return nil
	})
}

// SetMaxZipSizeMB sets the upload size limit.
func (s *Store) SetMaxZipSizeMB(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: max zip size must be positive", ErrInvalidSetting)
	}
	return s.update(func(cur *Settings) error {
		cur.MaxZipSizeMB = n
		return nil
	})
}

// Limits derives extraction limits from the current settings.
func (s *Store) Limits() core.SafetyLimits {
	return s.Get().Limits()
}

// update applies fn to a copy and persists it. The in-memory value only
// changes when the write succeeds.
func (s *Store) update(fn func(*Settings) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// save writes via a temp file and rename so readers never see a torn file.
func (s *Store) save(st Settings) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	s.logger.Debug("settings saved", "path", s.path)
	return nil
}

func (s Settings) clone() Settings {
	out := s
	out.Channels = append([]Channel(nil), s.Channels...)
	if out.Channels == nil {
		out.Channels = []Channel{}
	}
	return out
}

func indexOf(channels []Channel, username string) int {
	for i, ch := range channels {
		if strings.EqualFold(ch.Username, username) {
			return i
		}
	}
	return -1
}
