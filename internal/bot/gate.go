package bot

import (
	tele "gopkg.in/telebot.v3"

	"github.com/meigma/unzipbot/internal/settings"
)

// channelRecipient addresses a public channel by username.
type channelRecipient string

func (c channelRecipient) Recipient() string { return "@" + string(c) }

// MissingChannels returns the required channels userID has not joined.
// A failed lookup counts as not joined.
func (b *Bot) MissingChannels(userID int64) []settings.Channel {
	var missing []settings.Channel
	for _, ch := range b.settings.RequiredChannels() {
		member, err := b.api.ChatMemberOf(channelRecipient(ch.Username), tele.ChatID(userID))
		if err != nil {
			b.logger.Debug("membership lookup failed", "channel", ch.Username, "user", userID, "error", err)
			missing = append(missing, ch)
			continue
		}
		if !joined(member.Role) {
			missing = append(missing, ch)
		}
	}
	return missing
}

func joined(role tele.MemberStatus) bool {
	switch role {
	case tele.Creator, tele.Administrator, tele.Member:
		return true
	}
	return false
}

// allowed gates an update on channel membership, replying with the join
// list when access is denied. The admin always passes.
func (b *Bot) allowed(u *tele.User) bool {
	if u == nil {
		return false
	}
	if b.isAdmin(u) {
		return true
	}
	missing := b.MissingChannels(u.ID)
	if len(missing) == 0 {
		return true
	}
	b.send(u, forceJoinMessage(missing))
	return false
}
