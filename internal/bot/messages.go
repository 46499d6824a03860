package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tele "gopkg.in/telebot.v3"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/internal/settings"
	"github.com/meigma/unzipbot/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

const defaultWelcome = `🤖 <b>Welcome to ZIP Extractor Bot!</b>

I can help you extract ZIP files quickly and easily.

<b>How to use:</b>
1. Make sure you've joined our channel
2. Send me any ZIP file
3. I'll extract and send you the contents`

const helpMessage = `ℹ️ <b>Help &amp; Instructions</b>

Send any ZIP file and I'll extract its contents for you.

<b>Commands:</b>
/start - Start the bot
/help - Show this help message
/rules - Show the usage rules
/history - Show your recent extractions`

const adminOnlyMessage = "⛔ This command is for admins only."

const maintenanceMessage = "🛠 <b>The bot is under maintenance.</b>\n\nPlease try again later."

const notZipMessage = "❌ Please send a valid ZIP file."

const fallbackMessage = "Please send a ZIP file, or use /help."

func welcomeMessage(st settings.Settings) string {
	if st.WelcomeMessage != "" {
		return st.WelcomeMessage
	}
	return defaultWelcome
}

func rulesMessage(st settings.Settings) string {
	limits := st.Limits()
	return fmt.Sprintf(`📜 <b>Bot Usage Rules</b>

1️⃣ You must join our channels to use this bot
2️⃣ Only ZIP files are supported
3️⃣ Maximum upload size: %dMB
4️⃣ At most %d files and %s uncompressed per archive
5️⃣ Do not upload malicious or illegal content

⚠️ <b>Warning:</b> Violating these rules may result in a ban.`,
		st.MaxZipSizeMB, limits.MaxFiles, humanize.IBytes(uint64(limits.MaxTotalSize)))
}

func forceJoinMessage(missing []settings.Channel) string {
	var b strings.Builder
	b.WriteString("⚠️ <b>Access Denied!</b>\n\nYou must join these channels to use this bot:\n\n")
	for _, ch := range missing {
		fmt.Fprintf(&b, "👉 https://t.me/%s\n", html.EscapeString(ch.Username))
	}
	b.WriteString("\nJoin, then send your file again.")
	return b.String()
}

func tooLargeMessage(size, limit int64) string {
	return fmt.Sprintf("❌ <b>File too large</b>\n\nYour file is %s; the limit is %s.",
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

func failedMessage(res unzipbot.ExtractionResult) string {
	return "❌ <b>Extraction Failed</b>\n\n" + html.EscapeString(res.ErrorMessage)
}

func summaryMessage(res unzipbot.ExtractionResult) string {
	return fmt.Sprintf(`✅ <b>Extraction Complete!</b>

📁 Total Files: <b>%d</b>
🎬 Videos: <b>%d</b>
🖼 Images: <b>%d</b>

📤 <b>Sending your files...</b>`, res.TotalFileCount, len(res.VideoFiles), len(res.ImageFiles))
}

func doneMessage(sent, failed int) string {
	msg := fmt.Sprintf("✅ <b>All Done!</b>\n\n📤 Files sent: <b>%d</b>\n", sent)
	if failed > 0 {
		msg += fmt.Sprintf("⚠️ Failed to send: <b>%d</b> (too large or unsupported)", failed)
	}
	return msg
}

func displayUsername(u *tele.User) string {
	if u.Username == "" {
		return "No username"
	}
	return "@" + u.Username
}

func fullName(u *tele.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func newUserAlert(u *tele.User, total int, now time.Time) string {
	name := html.EscapeString(fullName(u))
	return fmt.Sprintf(`🆕 <b>New User Alert!</b>

📊 Total Users - <b>%d</b>
👤 Full name - <b>%s</b>
🔗 Username - <b>%s</b>
🔗 Profile link - <a href="tg://user?id=%d">%s</a>
📅 Date time - <b>%s</b>`,
		total, name, html.EscapeString(displayUsername(u)), u.ID, name, now.Format(timeLayout))
}

func mediaNotice(u *tele.User, kind, fileName string, now time.Time) string {
	icon := "🖼"
	if kind == "video" {
		icon = "🎬"
	}
	return fmt.Sprintf(`%s <b>Media Detected in ZIP!</b>

👤 User ID: <code>%d</code>
🔗 Username: %s
📁 File name: <code>%s</code>
📅 Date time: %s`,
		icon, u.ID, html.EscapeString(displayUsername(u)), html.EscapeString(fileName), now.Format(timeLayout))
}

func statsMessage(st store.Stats, s settings.Settings, workspaceBytes int64, requests int) string {
	maintenance := "🟢 OFF"
	if s.MaintenanceMode {
		maintenance = "🔴 ON"
	}
	msg := fmt.Sprintf(`📊 <b>Bot Statistics</b>

👥 Total Users: <b>%d</b>
📛 With Username: <b>%d</b>
👤 Without Username: <b>%d</b>
📢 Channels: <b>%d</b> (%d required)
🛠 Maintenance: %s
📦 Max ZIP Size: %dMB
📁 Max Files per ZIP: %d`,
		st.Total, st.WithUsername, st.WithoutUsername,
		len(s.Channels), len(s.RequiredChannels()), maintenance,
		s.MaxZipSizeMB, s.MaxFilesPerZip)
	if requests >= 0 {
		msg += fmt.Sprintf("\n💾 Workspace: %s in %d requests", humanize.IBytes(uint64(workspaceBytes)), requests)
	}
	return msg
}

func historyMessage(recs []store.HistoryRecord) string {
	if len(recs) == 0 {
		return "📜 <b>No extractions yet.</b>"
	}
	var b strings.Builder
	b.WriteString("📜 <b>Recent Extractions</b>\n\n")
	for _, r := range recs {
		status := "✅"
		detail := fmt.Sprintf("%d files", r.Files)
		if !r.Success {
			status = "❌"
			detail = r.ErrorKind
		}
		fmt.Fprintf(&b, "%s <code>%s</code> - %s (%s)\n",
			status, html.EscapeString(r.FileName), detail, humanize.Time(r.At))
	}
	return b.String()
}
