// Package bot is the Telegram front end of the marketplace.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"campusmart/internal/client"
	"campusmart/internal/config"
	"campusmart/internal/feed"
	"campusmart/internal/model"
	"campusmart/internal/session"
	"campusmart/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Marketplace is the listings API as used by the bot.
type Marketplace interface {
	feed.Lister
	session.AuthAPI
	Get(ctx context.Context, id string) (*model.Listing, error)
	Create(ctx context.Context, token string, l client.NewListing, images []client.ImageFile) (*model.Listing, error)
	MyListings(ctx context.Context, token string) ([]model.Listing, error)
	UpdateWhatsApp(ctx context.Context, token, number string) error
}

// chat is the per-chat browsing and auth state.
type chat struct {
	feed    *feed.Controller
	trigger *feed.Trigger
	auth    *session.Provider
	checked bool
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api    telegramAPI
	store  storage.Storage
	market Marketplace
	cfg    *config.Config
	log    *slog.Logger

	mu    sync.Mutex
	chats map[int64]*chat
}

// New creates a Bot with the given Telegram token, storage, listings API and config.
func New(token string, store storage.Storage, market Marketplace, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, market, cfg, log), nil
}

func newBot(api telegramAPI, store storage.Storage, market Marketplace, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		store:  store,
		market: market,
		cfg:    cfg,
		log:    log,
		chats:  make(map[int64]*chat),
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.answer(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() || msg.From == nil {
		return
	}
	if !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(kb.InlineKeyboard) > 0 {
		msg.ReplyMarkup = kb
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// chat returns the state of chatID, creating it on first use.
func (b *Bot) chat(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chats[chatID]; ok {
		return c
	}
	log := b.log.With("chat_id", chatID)
	c := &chat{
		feed: feed.New(b.market, b.cfg.PageSize, log),
		auth: session.NewProvider(b.market, &chatTokens{store: b.store, chatID: chatID}, log),
	}
	c.trigger = feed.NewTrigger(func(ctx context.Context) error {
		return b.loadMore(ctx, chatID, c)
	})
	b.chats[chatID] = c
	return c
}

// session returns the auth provider of chatID, restoring a stored login on first use.
func (b *Bot) session(ctx context.Context, chatID int64) *session.Provider {
	c := b.chat(chatID)
	b.mu.Lock()
	first := !c.checked
	c.checked = true
	b.mu.Unlock()
	if first {
		if err := c.auth.CheckAuth(ctx); err != nil {
			b.log.Info("stored login rejected", "chat_id", chatID, "error", err)
		}
	}
	return c.auth
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	switch cmd {
	case "login", "signup":
		// Never log credentials.
		b.log.Debug("command", "cmd", cmd, "chat_id", chatID)
	default:
		b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "browse":
		b.handleBrowse(ctx, chatID, ParseBrowseArgs(args))
	case "location":
		b.handleSetFilter(ctx, chatID, args, func(f *model.Filters, v string) { f.Location = v })
	case "category":
		b.handleSetFilter(ctx, chatID, args, func(f *model.Filters, v string) { f.Category = v })
	case "clear":
		b.handleBrowse(ctx, chatID, model.Filters{})
	case "categories":
		b.reply(chatID, FormatCategories(model.Categories))
	case "view":
		b.handleView(ctx, chatID, args)
	case "login":
		b.deleteMessage(chatID, msg.MessageID)
		b.handleLogin(ctx, chatID, args)
	case "signup":
		b.deleteMessage(chatID, msg.MessageID)
		b.handleSignup(ctx, chatID, args)
	case "logout":
		b.handleLogout(ctx, chatID)
	case "whoami":
		b.handleWhoAmI(ctx, chatID)
	case "mylistings":
		b.handleMyListings(ctx, chatID)
	case "whatsapp":
		b.handleWhatsApp(ctx, chatID, args)
	case "post":
		b.handlePost(ctx, chatID, args)
	case "watch":
		b.handleWatch(ctx, chatID, args)
	case "watches":
		b.handleWatches(ctx, chatID)
	case "unwatch":
		b.handleUnwatch(ctx, chatID, args)
	case "interval":
		b.handleInterval(ctx, chatID, args)
	case "pause":
		b.handleSetActive(ctx, chatID, args, false)
	case "resume":
		b.handleSetActive(ctx, chatID, args, true)
	case cmdCheck:
		b.handleCheck(ctx, chatID, args)
	case cmdRules:
		b.handleRules(ctx, chatID, args)
	case "include":
		b.handleAddRule(ctx, chatID, args, model.RuleInclude)
	case "exclude":
		b.handleAddRule(ctx, chatID, args, model.RuleExclude)
	case "include_re":
		b.handleAddRule(ctx, chatID, args, model.RuleIncludeRe)
	case "exclude_re":
		b.handleAddRule(ctx, chatID, args, model.RuleExcludeRe)
	case cmdRmRule:
		b.handleRmRule(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

// chatTokens stores the bearer token of one chat.
type chatTokens struct {
	store  storage.Storage
	chatID int64
}

func (t *chatTokens) Token(ctx context.Context) (string, error) {
	token, err := t.store.ChatToken(ctx, t.chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", session.ErrNoToken
	}
	return token, err
}

func (t *chatTokens) SaveToken(ctx context.Context, token string) error {
	return t.store.SaveChatToken(ctx, t.chatID, token)
}

func (t *chatTokens) DeleteToken(ctx context.Context) error {
	return t.store.DeleteChatToken(ctx, t.chatID)
}

// notice turns an API error into a short user-facing explanation.
func notice(err error) string {
	var httpErr *client.HTTPError
	switch client.Classify(err) {
	case client.KindNetwork:
		return "the marketplace is unreachable, check your connection"
	case client.KindUnauthenticated:
		return "you need to log in again"
	case client.KindMalformed:
		return "the marketplace sent an unexpected response"
	case client.KindHTTP:
		errors.As(err, &httpErr)
		if msg := strings.TrimRight(httpErr.Message, "."); msg != "" {
			return msg
		}
		return fmt.Sprintf("the marketplace answered with status %d", httpErr.Status)
	default:
		return err.Error()
	}
}
