package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdCheck  = "check"
	cmdRules  = "rules"
	cmdRmRule = "rmrule"

	cbMore  = "more"
	cbRetry = "retry"
	cbView  = "view"
	cbClose = "close"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	action, arg, _ := strings.Cut(cb.Data, ":")

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbMore:
		b.handleMore(ctx, chatID, cb.ID, arg)
	case cbRetry:
		b.answer(cb.ID, "")
		b.handleBrowse(ctx, chatID, b.chat(chatID).feed.State().Filters)
	case cbView:
		c := b.chat(chatID)
		if !c.feed.SelectForPreview(arg) {
			b.answer(cb.ID, "This listing is no longer in your feed.")
			return
		}
		b.answer(cb.ID, "")
		if p := c.feed.Preview(); p != nil {
			kb := tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Close", cbClose)),
			)
			b.replyWithKeyboard(chatID, FormatPreview(p, b.cfg.PublicURL), kb)
		}
	case cbClose:
		b.answer(cb.ID, "")
		b.chat(chatID).feed.ClearPreview()
		b.deleteMessage(chatID, cb.Message.MessageID)
	case cmdRules:
		b.answer(cb.ID, "")
		b.handleRules(ctx, chatID, arg)
	case cmdCheck:
		b.answer(cb.ID, "")
		b.handleCheck(ctx, chatID, arg)
	case "unwatch_confirm":
		b.answer(cb.ID, "")
		b.confirmUnwatch(ctx, chatID, arg)
	case "unwatch":
		b.answer(cb.ID, "")
		b.handleUnwatch(ctx, chatID, arg)
	case cmdRmRule:
		b.answer(cb.ID, "")
		b.handleRmRule(ctx, chatID, arg)
	default:
		b.answer(cb.ID, "")
	}
}

// handleMore treats a "Load more" tap as the sentinel entering view. Only the
// button of the latest page is live; older ones report that their page is loaded.
func (b *Bot) handleMore(ctx context.Context, chatID int64, callbackID, arg string) {
	c := b.chat(chatID)
	cursor, err := strconv.Atoi(arg)
	if err != nil || cursor != c.feed.State().Cursor {
		b.answer(callbackID, "Already loaded.")
		return
	}
	b.answer(callbackID, "")

	if _, err := c.trigger.Observe(ctx, true); err != nil {
		b.log.Debug("load more from button", "chat_id", chatID, "error", err)
	}
	// The tapped button has scrolled out of view once the next page is rendered.
	c.trigger.Observe(ctx, false)
}

func (b *Bot) confirmUnwatch(ctx context.Context, chatID int64, arg string) {
	w, ok := b.ownWatch(ctx, chatID, arg)
	if !ok {
		return
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("unwatch:%d", w.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "noop"),
		),
	)
	b.replyWithKeyboard(chatID, fmt.Sprintf("Delete #%d \"%s\"? This cannot be undone.", w.ID, w.Name), kb)
}

func moreKeyboard(cursor int, label string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%s:%d", cbMore, cursor)),
		),
	)
}

func retryKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Try again", cbRetry)),
	)
}
