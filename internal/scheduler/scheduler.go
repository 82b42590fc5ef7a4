// Package scheduler runs saved searches and notifies chats about new listings.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"campusmart/internal/bot"
	"campusmart/internal/client"
	"campusmart/internal/filter"
	"campusmart/internal/model"
	"campusmart/internal/storage"
)

// checkLimit is how many of the newest listings one check looks at.
const checkLimit = 50

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Lister fetches one page of listings.
type Lister interface {
	List(ctx context.Context, q client.Query) ([]model.Listing, error)
}

// Scheduler periodically runs due watches.
type Scheduler struct {
	store  storage.Storage
	lister Lister
	sender Sender
	log    *slog.Logger
	tick   time.Duration
	pause  time.Duration
}

// New creates a Scheduler that checks for due watches every minute.
func New(store storage.Storage, lister Lister, sender Sender, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		lister: lister,
		sender: sender,
		log:    log,
		tick:   time.Minute,
		// Telegram allows roughly 20 messages per second.
		pause: 50 * time.Millisecond,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	watches, err := s.store.ListDueWatches(ctx)
	if err != nil {
		s.log.Error("list due watches", "error", err)
		return
	}

	for _, w := range watches {
		if ctx.Err() != nil {
			return
		}
		s.processWatch(ctx, w)
	}
}

// processWatch notifies the chat about matching listings it has not seen.
// The first check of a watch only records what is already on the market.
func (s *Scheduler) processWatch(ctx context.Context, w model.Watch) {
	s.log.Debug("checking watch", "watch_id", w.ID, "name", w.Name)

	listings, err := s.lister.List(ctx, client.Query{Limit: checkLimit, Filters: w.Filters})
	if err != nil {
		s.log.Error("fetch listings", "watch_id", w.ID, "kind", client.Classify(err), "error", err)
		s.skipCheck(ctx, &w)
		return
	}

	rules, err := s.store.ListRules(ctx, w.ID)
	if err != nil {
		s.log.Error("list rules", "watch_id", w.ID, "error", err)
		return
	}
	matcher, err := filter.Compile(rules)
	if err != nil {
		s.log.Error("compile rules", "watch_id", w.ID, "error", err)
		s.skipCheck(ctx, &w)
		return
	}

	baseline := w.LastCheckAt == nil
	sent := 0
	// Oldest first so notifications arrive in posting order.
	for i := len(listings) - 1; i >= 0; i-- {
		l := listings[i]
		if !matcher.Match(l) {
			continue
		}
		seen, err := s.store.IsSeen(ctx, w.ID, l.ID)
		if err != nil {
			s.log.Error("check seen", "watch_id", w.ID, "listing_id", l.ID, "error", err)
			continue
		}
		if seen {
			continue
		}

		if !baseline {
			s.sender.SendMessage(w.ChatID, bot.FormatNotification(w.Name, l))
			sent++
			time.Sleep(s.pause)
		}

		if err := s.store.MarkSeen(ctx, w.ID, l.ID); err != nil {
			s.log.Error("mark seen", "watch_id", w.ID, "listing_id", l.ID, "error", err)
		}
	}

	if sent > 0 {
		s.log.Info("sent notifications", "watch_id", w.ID, "name", w.Name, "count", sent)
	}

	s.updateLastCheck(ctx, &w)
}

// skipCheck postpones a failed check to the next interval. A watch that has
// never completed a check keeps a nil LastCheckAt so its first success is the baseline.
func (s *Scheduler) skipCheck(ctx context.Context, w *model.Watch) {
	if w.LastCheckAt == nil {
		return
	}
	s.updateLastCheck(ctx, w)
}

func (s *Scheduler) updateLastCheck(ctx context.Context, w *model.Watch) {
	now := time.Now().UTC()
	w.LastCheckAt = &now
	if err := s.store.UpdateWatch(ctx, w); err != nil {
		s.log.Error("update last check", "watch_id", w.ID, "error", err)
	}
}
