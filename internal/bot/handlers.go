package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/internal/media"
	"github.com/meigma/unzipbot/internal/store"
)

// historyLimit bounds /history output.
const historyLimit = 10

// Start registers the sender and greets them.
func (b *Bot) Start(u *tele.User) error {
	b.register(u)
	if !b.allowed(u) {
		return nil
	}
	b.send(u, welcomeMessage(b.settings.Get()))
	return nil
}

// Help replies with usage instructions.
func (b *Bot) Help(u *tele.User) error {
	if !b.allowed(u) {
		return nil
	}
	b.send(u, helpMessage)
	return nil
}

// Rules replies with the usage rules and current limits.
func (b *Bot) Rules(u *tele.User) error {
	if !b.allowed(u) {
		return nil
	}
	b.send(u, rulesMessage(b.settings.Get()))
	return nil
}

// Text answers free-form messages.
func (b *Bot) Text(u *tele.User) error {
	b.register(u)
	if !b.allowed(u) {
		return nil
	}
	b.send(u, fallbackMessage)
	return nil
}

// History lists the sender's recent extractions.
func (b *Bot) History(u *tele.User) error {
	if !b.allowed(u) {
		return nil
	}
	recs, err := b.users.History(u.ID, historyLimit)
	if err != nil {
		b.logger.Error("load history", "user", u.ID, "error", err)
		return err
	}
	b.send(u, historyMessage(recs))
	return nil
}

// HandleDocument runs an uploaded archive through the pipeline and sends the
// extracted files back.
func (b *Bot) HandleDocument(ctx context.Context, msg *tele.Message) error {
	if msg == nil || msg.Sender == nil || msg.Document == nil {
		return nil
	}
	u := msg.Sender
	var chat tele.Recipient = u
	if msg.Chat != nil {
		chat = msg.Chat
	}

	b.register(u)
	if !b.allowed(u) {
		return nil
	}

	st := b.settings.Get()
	if (st.MaintenanceMode || !st.BotEnabled) && !b.isAdmin(u) {
		b.send(chat, maintenanceMessage)
		return nil
	}

	doc := msg.Document
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".zip") {
		b.send(chat, notZipMessage)
		return nil
	}
	if limit := st.MaxUploadBytes(); limit > 0 && int64(doc.FileSize) > limit {
		b.send(chat, tooLargeMessage(int64(doc.FileSize), limit))
		return nil
	}

	logger := b.logger.With("user", u.ID, "file", doc.FileName)
	status := b.send(chat, "📥 <b>Downloading ZIP file...</b>")

	archivePath, err := b.download(doc)
	if err != nil {
		logger.Error("download failed", "error", err)
		b.edit(status, chat, "❌ <b>Error processing ZIP file</b>\n\nDownload failed, please try again.")
		return nil
	}
	defer func() {
		if err := os.Remove(archivePath); err != nil {
			logger.Warn("failed to remove downloaded archive", "path", archivePath, "error", err)
		}
	}()

	b.edit(status, chat, "📦 <b>Extracting files...</b>")
	res := b.pipeline.ExtractArchive(ctx, unzipbot.ExtractionRequest{
		SourcePath: archivePath,
		OwnerID:    ownerID(u),
	})

	rec := store.HistoryRecord{
		UserID:   u.ID,
		FileName: doc.FileName,
		Digest:   res.ArchiveDigest,
		Success:  res.Success,
		Duration: res.Duration,
	}

	if !res.Success {
		if res.Err != nil {
			rec.ErrorKind = res.Err.Kind.String()
		}
		b.edit(status, chat, failedMessage(res))
		b.record(rec)
		return nil
	}

	b.edit(status, chat, summaryMessage(res))
	sent, failed := b.deliver(chat, res.ExtractedFiles)
	b.edit(status, chat, doneMessage(sent, failed))

	b.forwardToAdmin(u, res.VideoFiles, "video")
	b.forwardToAdmin(u, res.ImageFiles, "image")

	rec.Files = res.TotalFileCount
	rec.Videos = len(res.VideoFiles)
	rec.Images = len(res.ImageFiles)
	rec.Sent = sent
	rec.Failed = failed
	b.record(rec)

	if b.cfg.CleanupAfterDelivery && b.workspace != nil {
		if err := b.workspace.Remove(res.ExtractDir); err != nil {
			logger.Warn("failed to remove request directory", "dir", res.ExtractDir, "error", err)
		}
	}
	logger.Info("archive delivered", "files", res.TotalFileCount, "sent", sent, "failed", failed)
	return nil
}

// download fetches doc into a fresh temp file.
func (b *Bot) download(doc *tele.Document) (string, error) {
	if err := os.MkdirAll(b.cfg.TempDir, 0o750); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(b.cfg.TempDir, "upload-*.zip")
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	if err := b.api.Download(&doc.File, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// deliver sends each file in order. Files above MaxSendSize are skipped and
// counted as failed.
func (b *Bot) deliver(chat tele.Recipient, paths []string) (sent, failed int) {
	for _, path := range paths {
		kind := deliveryKind(path)
		info, err := os.Stat(path)
		if err != nil {
			b.logger.Warn("extracted file missing", "path", path, "error", err)
			b.metrics.ObserveDelivery(kind.String(), "failed")
			failed++
			continue
		}
		if info.Size() > b.cfg.MaxSendSize {
			b.metrics.ObserveDelivery(kind.String(), "skipped")
			failed++
			continue
		}
		if _, err := b.api.Send(chat, outgoing(path, kind, captionFor(path, kind))); err != nil {
			b.logger.Warn("failed to send file", "path", path, "error", err)
			b.metrics.ObserveDelivery(kind.String(), "failed")
			failed++
			continue
		}
		b.metrics.ObserveDelivery(kind.String(), "sent")
		sent++
	}
	return sent, failed
}

// forwardToAdmin sends a notice and a copy of each media file to the admin.
func (b *Bot) forwardToAdmin(u *tele.User, paths []string, kind string) {
	if b.cfg.AdminID == 0 {
		return
	}
	admin := tele.ChatID(b.cfg.AdminID)
	caption := "From user: " + displayUsername(u) + " (" + ownerID(u) + ")"
	for _, path := range paths {
		b.send(admin, mediaNotice(u, kind, filepath.Base(path), b.now()))

		info, err := os.Stat(path)
		if err != nil || info.Size() > b.cfg.MaxSendSize {
			continue
		}
		if _, err := b.api.Send(admin, outgoing(path, deliveryKind(path), caption)); err != nil {
			b.logger.Warn("failed to forward media to admin", "path", path, "error", err)
		}
	}
}

func (b *Bot) record(rec store.HistoryRecord) {
	rec.At = b.now().UTC()
	if err := b.users.RecordExtraction(rec); err != nil {
		b.logger.Error("record history", "user", rec.UserID, "error", err)
	}
}

// Telegram renders only some formats inline; the rest go out as documents.
var (
	photoExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
	videoExts = map[string]bool{".mp4": true, ".avi": true, ".mkv": true, ".mov": true, ".webm": true}
)

// deliveryKind narrows media.KindOf to what the chat renders natively.
func deliveryKind(path string) media.Kind {
	kind := media.KindOf(path)
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case kind == media.KindImage && !photoExts[ext]:
		return media.KindDocument
	case kind == media.KindVideo && !videoExts[ext]:
		return media.KindDocument
	}
	return kind
}

func captionFor(path string, kind media.Kind) string {
	name := filepath.Base(path)
	switch kind {
	case media.KindImage:
		return "📷 " + name
	case media.KindVideo:
		return "🎬 " + name
	case media.KindAudio:
		return "🎵 " + name
	}
	return "📄 " + name
}

// outgoing builds the sendable object for kind.
func outgoing(path string, kind media.Kind, caption string) tele.Sendable {
	file := tele.FromDisk(path)
	name := filepath.Base(path)
	switch kind {
	case media.KindImage:
		return &tele.Photo{File: file, Caption: caption}
	case media.KindVideo:
		return &tele.Video{File: file, FileName: name, Caption: caption}
	case media.KindAudio:
		return &tele.Audio{File: file, FileName: name, Caption: caption}
	}
	return &tele.Document{File: file, FileName: name, Caption: caption}
}
