// Package bot serves the extraction pipeline over Telegram.
//
// Handlers are plain methods taking the sender or message so they can be
// driven without a live bot; Register adapts them to telebot endpoints.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/internal/settings"
	"github.com/meigma/unzipbot/internal/store"
	"github.com/meigma/unzipbot/internal/workspace"
)

// DefaultMaxSendSize is the largest file the Bot API accepts for upload.
const DefaultMaxSendSize = 50 << 20

// API is the subset of *tele.Bot used by the handlers.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	Download(file *tele.File, localFilename string) error
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
}

// Compile-time interface implementation check.
var _ API = (*tele.Bot)(nil)

// Extractor runs one extraction request.
type Extractor interface {
	ExtractArchive(ctx context.Context, req unzipbot.ExtractionRequest) unzipbot.ExtractionResult
}

// DeliveryMetrics counts files sent back to users.
type DeliveryMetrics interface {
	ObserveDelivery(kind, status string)
}

// Router registers handlers; *tele.Bot implements it.
type Router interface {
	Handle(endpoint interface{}, h tele.HandlerFunc, m ...tele.MiddlewareFunc)
}

// Poller starts and stops update polling; *tele.Bot implements it.
type Poller interface {
	Start()
	Stop()
}

// Config holds static bot settings.
type Config struct {
	// AdminID receives notifications and may run admin commands. Zero
	// disables both.
	AdminID int64
	// TempDir holds downloaded archives. Empty means os.TempDir().
	TempDir string
	// MaxSendSize skips extracted files above this size. Zero means
	// DefaultMaxSendSize.
	MaxSendSize int64
	// CleanupAfterDelivery removes the request directory once files are sent.
	// Requires WithWorkspace.
	CleanupAfterDelivery bool
}

// Bot wires chat updates to the pipeline.
type Bot struct {
	api       API
	cfg       Config
	pipeline  Extractor
	settings  *settings.Store
	users     *store.Store
	workspace *workspace.Workspace
	metrics   DeliveryMetrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Bot.
type Option func(*Bot)

// WithLogger sets a logger. By default, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bot) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics records delivery outcomes.
func WithMetrics(m DeliveryMetrics) Option {
	return func(b *Bot) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithWorkspace enables workspace statistics and post-delivery cleanup.
func WithWorkspace(ws *workspace.Workspace) Option {
	return func(b *Bot) {
		b.workspace = ws
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveDelivery(string, string) {}

// New creates a Bot.
func New(api API, pipeline Extractor, st *settings.Store, users *store.Store, cfg Config, opts ...Option) (*Bot, error) {
	switch {
	case api == nil:
		return nil, errors.New("bot api is required")
	case pipeline == nil:
		return nil, errors.New("pipeline is required")
	case st == nil:
		return nil, errors.New("settings store is required")
	case users == nil:
		return nil, errors.New("user store is required")
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxSendSize <= 0 {
		cfg.MaxSendSize = DefaultMaxSendSize
	}

	b := &Bot{
		api:      api,
		cfg:      cfg,
		pipeline: pipeline,
		settings: st,
		users:    users,
		metrics:  noopMetrics{},
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Register binds commands and the document handler. ctx is passed to every
// extraction started by an update.
func (b *Bot) Register(ctx context.Context, r Router) {
	r.Handle("/start", func(c tele.Context) error { return b.Start(c.Sender()) })
	r.Handle("/help", func(c tele.Context) error { return b.Help(c.Sender()) })
	r.Handle("/rules", func(c tele.Context) error { return b.Rules(c.Sender()) })
	r.Handle("/history", func(c tele.Context) error { return b.History(c.Sender()) })
	r.Handle(tele.OnDocument, func(c tele.Context) error { return b.HandleDocument(ctx, c.Message()) })
	r.Handle(tele.OnText, func(c tele.Context) error { return b.Text(c.Sender()) })

	r.Handle("/stats", func(c tele.Context) error { return b.Stats(c.Sender()) })
	r.Handle("/maintenance", func(c tele.Context) error { return b.Maintenance(c.Sender()) })
	r.Handle("/addchannel", func(c tele.Context) error { return b.AddChannel(c.Sender(), c.Args()) })
	r.Handle("/removechannel", func(c tele.Context) error { return b.RemoveChannel(c.Sender(), c.Args()) })
	r.Handle("/togglechannel", func(c tele.Context) error { return b.ToggleChannel(c.Sender(), c.Args()) })
	r.Handle("/setmaxfiles", func(c tele.Context) error { return b.SetMaxFiles(c.Sender(), c.Args()) })
	r.Handle("/setmaxzipsize", func(c tele.Context) error { return b.SetMaxZipSize(c.Sender(), c.Args()) })
}

// Run registers handlers and polls until ctx is done.
func (b *Bot) Run(ctx context.Context, r Router, p Poller) error {
	b.Register(ctx, r)
	go p.Start()
	b.logger.Info("bot started", "admin", b.cfg.AdminID)
	<-ctx.Done()
	p.Stop()
	b.logger.Info("bot stopped")
	return nil
}

// isAdmin reports whether u is the configured admin.
func (b *Bot) isAdmin(u *tele.User) bool {
	return u != nil && b.cfg.AdminID != 0 && u.ID == b.cfg.AdminID
}

// send delivers an HTML message and logs failures. Chat errors never fail
// a handler; the update is already consumed.
func (b *Bot) send(to tele.Recipient, text string) *tele.Message {
	msg, err := b.api.Send(to, text, tele.ModeHTML)
	if err != nil {
		b.logger.Warn("send failed", "to", to.Recipient(), "error", err)
		return nil
	}
	return msg
}

// edit replaces a status message, falling back to a new message when the
// original could not be sent.
func (b *Bot) edit(msg *tele.Message, to tele.Recipient, text string) {
	if msg == nil {
		b.send(to, text)
		return
	}
	if _, err := b.api.Edit(msg, text, tele.ModeHTML); err != nil {
		b.logger.Warn("edit failed", "error", err)
	}
}

// notifyAdmin sends text to the admin when one is configured.
func (b *Bot) notifyAdmin(text string) {
	if b.cfg.AdminID == 0 {
		return
	}
	b.send(tele.ChatID(b.cfg.AdminID), text)
}

// register records u and tells the admin about first contact.
func (b *Bot) register(u *tele.User) {
	if u == nil {
		return
	}
	created, total, err := b.users.Register(store.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
	})
	if err != nil {
		b.logger.Error("register user", "user", u.ID, "error", err)
		return
	}
	if created {
		b.logger.Info("new user", "user", u.ID, "total", total)
		b.notifyAdmin(newUserAlert(u, total, b.now()))
	}
}

func ownerID(u *tele.User) string {
	return strconv.FormatInt(u.ID, 10)
}
