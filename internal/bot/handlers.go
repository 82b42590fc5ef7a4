package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"campusmart/internal/client"
	"campusmart/internal/feed"
	"campusmart/internal/model"
)

const viewButtonsPerRow = 5

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to the campus marketplace!

Buy and sell on campus, right from Telegram.

Quick start:
1. /browse - see the latest listings
2. /location <campus> - only show one campus
3. /signup <name> | <email> | <password> - create an account to sell

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Browsing:
/browse [location] [| category] - show listings, newest first
/location <campus> - filter by location (empty clears it)
/category <slug> - filter by category (empty clears it)
/clear - remove all filters
/categories - list categories
/view <id> - show one listing

Account:
/signup <name> | <email> | <password>
/login <email> <password>
/logout
/whoami
/whatsapp <number> - set your contact number
/mylistings - your listings
/post <title> | <price> | <location> | <category> | [description]

Saved searches:
/watch <name> | [location] | [category] - get notified about new listings
/watches - show saved searches
/unwatch <id> - delete a saved search
/interval <id> <min> - set check interval (1-1440)
/pause <id> - pause notifications
/resume <id> - resume notifications
/check <id> - check now
/rules <id> - show keyword rules
/include <id> [-s scope] <word> - require word/phrase
/exclude <id> [-s scope] <word> - reject word/phrase
/include_re <id> [-s scope] <regex> - require regex
/exclude_re <id> [-s scope] <regex> - reject regex
/rmrule <rule_id> - remove a rule

Scope flag: -s title | description | all (default: all)`)
}

// handleBrowse resets the chat's feed to filters and renders the first page.
func (b *Bot) handleBrowse(ctx context.Context, chatID int64, filters model.Filters) {
	if filters.Category != "" {
		cat, ok := model.LookupCategory(filters.Category)
		if !ok {
			b.reply(chatID, fmt.Sprintf("Unknown category %q, see /categories.", filters.Category))
			return
		}
		filters.Category = cat.Slug
	}

	c := b.chat(chatID)
	err := c.feed.ResetAndLoad(ctx, filters)
	if errors.Is(err, feed.ErrSuperseded) {
		return
	}
	// A fresh first page brings a fresh sentinel.
	c.trigger.Observe(ctx, false)

	if err != nil {
		b.replyWithKeyboard(chatID, "Could not load listings: "+notice(err)+".", retryKeyboard())
		return
	}
	st := c.feed.State()
	if len(st.Items) == 0 {
		b.reply(chatID, FormatEmptyFeed(st.Filters))
		return
	}
	b.sendPage(chatID, st.Items, 1, st)
}

func (b *Bot) handleSetFilter(ctx context.Context, chatID int64, value string, set func(*model.Filters, string)) {
	filters := b.chat(chatID).feed.State().Filters
	set(&filters, value)
	b.handleBrowse(ctx, chatID, filters)
}

// loadMore appends the next page of the chat's feed and renders it.
func (b *Bot) loadMore(ctx context.Context, chatID int64, c *chat) error {
	added, err := c.feed.LoadMore(ctx)
	if errors.Is(err, feed.ErrSuperseded) {
		return nil
	}
	st := c.feed.State()
	if err != nil {
		b.replyWithKeyboard(chatID, "Could not load more listings: "+notice(err)+".", moreKeyboard(st.Cursor, "Try again"))
		return err
	}

	switch {
	case len(added) > 0:
		b.sendPage(chatID, added, len(st.Items)-len(added)+1, st)
	case !st.HasMore:
		b.reply(chatID, "You've reached the end of the listings.")
	case st.Loading == feed.Idle:
		// Every listing on the page was already shown.
		b.replyWithKeyboard(chatID, "No new listings on this page.", moreKeyboard(st.Cursor, "Load more"))
	}
	return nil
}

// sendPage renders items with one preview button per listing and, while the
// feed has more, a "Load more" button acting as the scroll sentinel.
func (b *Bot) sendPage(chatID int64, items []model.Listing, first int, st feed.State) {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, l := range items {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(first+i), cbView+":"+l.ID))
		if len(row) == viewButtonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if st.HasMore {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Load more", fmt.Sprintf("%s:%d", cbMore, st.Cursor)),
		))
	}

	text := FormatPage(items, first, st.Filters)
	if !st.HasMore {
		text += "\n\nThat's everything."
	}
	b.replyWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleView(ctx context.Context, chatID int64, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		b.reply(chatID, "Usage: /view <id>")
		return
	}
	l, err := b.market.Get(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			b.reply(chatID, "Listing not found.")
			return
		}
		b.reply(chatID, "Could not load listing: "+notice(err)+".")
		return
	}
	b.reply(chatID, FormatPreview(feed.NewPreview(l), b.cfg.PublicURL))
}
