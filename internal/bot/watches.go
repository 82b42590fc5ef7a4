package bot

import (
	"context"
	"fmt"
	"slices"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"campusmart/internal/client"
	"campusmart/internal/filter"
	"campusmart/internal/model"
)

const (
	defaultInterval = 15
	checkLimit      = 50
)

// ownWatch loads the watch named by args and reports false, after replying,
// when it does not exist or belongs to another chat.
func (b *Bot) ownWatch(ctx context.Context, chatID int64, args string) (*model.Watch, bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "A watch ID is required, see /watches.")
		return nil, false
	}
	w, err := b.store.GetWatch(ctx, id)
	if err != nil || w.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Watch #%d not found.", id))
		return nil, false
	}
	return w, true
}

func (b *Bot) handleWatch(ctx context.Context, chatID int64, args string) {
	name, filters, err := ParseWatchArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	w := &model.Watch{
		ChatID:          chatID,
		Name:            name,
		Filters:         filters,
		IntervalMinutes: defaultInterval,
		IsActive:        true,
	}
	if err := b.store.CreateWatch(ctx, w); err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to save watch: %v", err))
		return
	}

	text := fmt.Sprintf("Watch added!\n#%d %s (every %d min)", w.ID, w.Name, w.IntervalMinutes)
	if f := describeFilters(w.Filters); f != "" {
		text += "\n" + f
	}
	text += "\nYou will be notified about listings posted from now on. Use /include, /exclude to narrow it down."
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Rules", fmt.Sprintf("%s:%d", cmdRules, w.ID)),
			tgbotapi.NewInlineKeyboardButtonData("Delete", fmt.Sprintf("unwatch_confirm:%d", w.ID)),
		),
	)
	b.replyWithKeyboard(chatID, text, kb)
}

func (b *Bot) handleWatches(ctx context.Context, chatID int64) {
	watches, err := b.store.ListWatches(ctx, chatID)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	counts := make(map[int64][2]int)
	for _, w := range watches {
		rules, err := b.store.ListRules(ctx, w.ID)
		if err != nil {
			continue
		}
		var inc, exc int
		for _, r := range rules {
			switch r.Kind {
			case model.RuleInclude, model.RuleIncludeRe:
				inc++
			case model.RuleExclude, model.RuleExcludeRe:
				exc++
			}
		}
		counts[w.ID] = [2]int{inc, exc}
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, w := range watches {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Check #%d", w.ID), fmt.Sprintf("%s:%d", cmdCheck, w.ID)),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("Rules #%d", w.ID), fmt.Sprintf("%s:%d", cmdRules, w.ID)),
		))
	}
	b.replyWithKeyboard(chatID, FormatWatchList(watches, counts), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) handleUnwatch(ctx context.Context, chatID int64, args string) {
	w, ok := b.ownWatch(ctx, chatID, args)
	if !ok {
		return
	}
	if err := b.store.DeleteWatch(ctx, w.ID); err != nil {
		b.reply(chatID, fmt.Sprintf("Error deleting watch: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Watch #%d \"%s\" deleted.", w.ID, w.Name))
}

func (b *Bot) handleInterval(ctx context.Context, chatID int64, args string) {
	id, mins, err := ParseIntervalArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	w, ok := b.ownWatch(ctx, chatID, fmt.Sprint(id))
	if !ok {
		return
	}
	w.IntervalMinutes = mins
	if err := b.store.UpdateWatch(ctx, w); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Watch #%d interval set to %d min.", w.ID, mins))
}

func (b *Bot) handleSetActive(ctx context.Context, chatID int64, args string, active bool) {
	w, ok := b.ownWatch(ctx, chatID, args)
	if !ok {
		return
	}
	w.IsActive = active
	if err := b.store.UpdateWatch(ctx, w); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	state := "paused"
	if active {
		state = "resumed"
	}
	b.reply(chatID, fmt.Sprintf("Watch #%d \"%s\" %s.", w.ID, w.Name, state))
}

// handleCheck runs a watch immediately and sends the unseen matches.
func (b *Bot) handleCheck(ctx context.Context, chatID int64, args string) {
	w, ok := b.ownWatch(ctx, chatID, args)
	if !ok {
		return
	}

	listings, err := b.market.List(ctx, client.Query{Limit: checkLimit, Filters: w.Filters})
	if err != nil {
		b.reply(chatID, "Failed to fetch listings: "+notice(err)+".")
		return
	}

	rules, err := b.store.ListRules(ctx, w.ID)
	if err != nil {
		b.log.Error("list rules", "watch_id", w.ID, "error", err)
		b.reply(chatID, fmt.Sprintf("Could not load rules for #%d. Try again later.", w.ID))
		return
	}
	m, err := filter.Compile(rules)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Watch #%d has an invalid rule: %v", w.ID, err))
		return
	}

	var fresh []model.Listing
	for _, l := range listings {
		if !m.Match(l) {
			continue
		}
		seen, err := b.store.IsSeen(ctx, w.ID, l.ID)
		if err != nil {
			b.log.Error("check seen", "watch_id", w.ID, "listing_id", l.ID, "error", err)
			continue
		}
		if !seen {
			fresh = append(fresh, l)
		}
	}

	if len(fresh) == 0 {
		b.reply(chatID, fmt.Sprintf("No new matching listings for #%d \"%s\".", w.ID, w.Name))
		return
	}

	// Listings arrive newest first; notify in posting order.
	slices.Reverse(fresh)
	for _, l := range fresh {
		b.reply(chatID, FormatNotification(w.Name, l))
		if err := b.store.MarkSeen(ctx, w.ID, l.ID); err != nil {
			b.log.Error("mark seen", "watch_id", w.ID, "listing_id", l.ID, "error", err)
		}
	}
	b.reply(chatID, fmt.Sprintf("Found %d new listing(s) for #%d \"%s\".", len(fresh), w.ID, w.Name))
}

func (b *Bot) handleRules(ctx context.Context, chatID int64, args string) {
	w, ok := b.ownWatch(ctx, chatID, args)
	if !ok {
		return
	}
	rules, _ := b.store.ListRules(ctx, w.ID)
	b.reply(chatID, FormatRuleList(w, rules))
}

func (b *Bot) handleAddRule(ctx context.Context, chatID int64, args string, kind model.RuleKind) {
	parsed, err := ParseRuleCommand(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	w, ok := b.ownWatch(ctx, chatID, fmt.Sprint(parsed.WatchID))
	if !ok {
		return
	}

	if kind == model.RuleIncludeRe || kind == model.RuleExcludeRe {
		if err := filter.ValidateRegex(parsed.Value); err != nil {
			b.reply(chatID, fmt.Sprintf("Invalid regex: %v", err))
			return
		}
	}

	r := &model.Rule{
		WatchID: w.ID,
		Kind:    kind,
		Scope:   parsed.Scope,
		Value:   parsed.Value,
	}
	if err := b.store.CreateRule(ctx, r); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	b.reply(chatID, fmt.Sprintf("Rule R%d added to #%d \"%s\": %s %s (%s)",
		r.ID, w.ID, w.Name, kind, parsed.Value, scopeLabel(parsed.Scope)))
}

func (b *Bot) handleRmRule(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rmrule <rule_id>")
		return
	}

	r, err := b.store.GetRule(ctx, id)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}

	w, err := b.store.GetWatch(ctx, r.WatchID)
	if err != nil || w.ChatID != chatID {
		b.reply(chatID, fmt.Sprintf("Rule R%d not found.", id))
		return
	}

	if err := b.store.DeleteRule(ctx, id); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Rule R%d removed from #%d \"%s\".", id, w.ID, w.Name))
}
