package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"
)

// Stats reports user, settings and workspace statistics to the admin.
func (b *Bot) Stats(u *tele.User) error {
	if !b.requireAdmin(u) {
		return nil
	}
	st, err := b.users.Stats()
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	var size int64
	requests := -1
	if b.workspace != nil {
		if reqs, err := b.workspace.List(); err == nil {
			requests = len(reqs)
			for _, r := range reqs {
				size += r.Size
			}
		}
	}
	b.send(u, statsMessage(st, b.settings.Get(), size, requests))
	return nil
}

// Maintenance toggles maintenance mode.
func (b *Bot) Maintenance(u *tele.User) error {
	if !b.requireAdmin(u) {
		return nil
	}
	on, err := b.settings.ToggleMaintenance()
	if err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	state := "disabled"
	if on {
		state = "enabled"
	}
	b.logger.Info("maintenance mode changed", "enabled", on)
	b.send(u, "🛠 Maintenance mode "+state)
	return nil
}

// AddChannel adds a required channel: /addchannel @name [title].
func (b *Bot) AddChannel(u *tele.User, args []string) error {
	if !b.requireAdmin(u) {
		return nil
	}
	if len(args) == 0 {
		b.send(u, "Usage: /addchannel @channel [title]")
		return nil
	}
	ch, err := b.settings.AddChannel(args[0], strings.Join(args[1:], " "))
	if err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	b.send(u, "✅ Channel @"+html.EscapeString(ch.Username)+" added successfully")
	return nil
}

// RemoveChannel removes a channel: /removechannel @name.
func (b *Bot) RemoveChannel(u *tele.User, args []string) error {
	if !b.requireAdmin(u) {
		return nil
	}
	if len(args) != 1 {
		b.send(u, "Usage: /removechannel @channel")
		return nil
	}
	if err := b.settings.RemoveChannel(args[0]); err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	b.send(u, "✅ Channel removed")
	return nil
}

// ToggleChannel flips whether a channel is required: /togglechannel @name.
func (b *Bot) ToggleChannel(u *tele.User, args []string) error {
	if !b.requireAdmin(u) {
		return nil
	}
	if len(args) != 1 {
		b.send(u, "Usage: /togglechannel @channel")
		return nil
	}
	required, err := b.settings.ToggleChannel(args[0])
	if err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	state := "disabled"
	if required {
		state = "enabled"
	}
	b.send(u, "✅ Channel "+state)
	return nil
}

// SetMaxFiles changes the per-archive file limit: /setmaxfiles N.
func (b *Bot) SetMaxFiles(u *tele.User, args []string) error {
	if !b.requireAdmin(u) {
		return nil
	}
	if len(args) != 1 {
		b.send(u, "Usage: /setmaxfiles N")
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		err = errors.New("not a number")
	} else {
		err = b.settings.SetMaxFiles(n)
	}
	if err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	b.send(u, fmt.Sprintf("✅ Max files per ZIP set to %d", n))
	return nil
}

// SetMaxZipSize changes the upload size limit in MB: /setmaxzipsize N.
func (b *Bot) SetMaxZipSize(u *tele.User, args []string) error {
	if !b.requireAdmin(u) {
		return nil
	}
	if len(args) != 1 {
		b.send(u, "Usage: /setmaxzipsize N")
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		err = errors.New("not a number")
	} else {
		err = b.settings.SetMaxZipSizeMB(n)
	}
	if err != nil {
		b.send(u, "❌ "+html.EscapeString(err.Error()))
		return nil
	}
	b.send(u, fmt.Sprintf("✅ Max ZIP size set to %d MB", n))
	return nil
}

func (b *Bot) requireAdmin(u *tele.User) bool {
	if b.isAdmin(u) {
		return true
	}
	if u != nil {
		b.send(u, adminOnlyMessage)
	}
	return false
}
