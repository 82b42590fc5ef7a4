// Package feed implements the paginated, filterable listing feed behind the browse surface.
//
// A Controller owns the feed state of one viewer. Fetches run without holding the state lock;
// every completion compares the session it was issued in against the current one and is
// dropped when a newer ResetAndLoad has superseded it.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"campusmart/internal/client"
	"campusmart/internal/model"
)

// ErrSuperseded is returned when a response arrived after the feed was reset.
// The response has been discarded and nothing needs rendering.
var ErrSuperseded = errors.New("feed request superseded")

// Lister fetches one page of listings.
type Lister interface {
	List(ctx context.Context, q client.Query) ([]model.Listing, error)
}

// LoadingState tells the rendering layer which request, if any, is in flight.
type LoadingState int

// Loading states.
const (
	Idle LoadingState = iota
	LoadingInitial
	LoadingMore
)

func (s LoadingState) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading_initial"
	case LoadingMore:
		return "loading_more"
	default:
		return fmt.Sprintf("loading_state(%d)", int(s))
	}
}

// State is a snapshot of the feed. Items is a copy and safe to keep.
type State struct {
	Items    []model.Listing
	Cursor   int
	PageSize int
	HasMore  bool
	Loading  LoadingState
	Filters  model.Filters
	// Failed marks a reset whose first page could not be loaded.
	Failed bool
	// Err is the last surfaced error, cleared by the next successful load.
	Err error
}

// Controller fetches pages, merges them without duplicates and tracks pagination.
type Controller struct {
	lister   Lister
	pageSize int
	log      *slog.Logger

	mu       sync.Mutex
	session  uint64
	items    []model.Listing
	index    map[string]struct{}
	cursor   int
	hasMore  bool
	loading  LoadingState
	filters  model.Filters
	failed   bool
	err      error
	selected string
}

// New creates an empty, idle Controller. Page sizes below one are raised to one.
func New(lister Lister, pageSize int, log *slog.Logger) *Controller {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Controller{
		lister:   lister,
		pageSize: pageSize,
		log:      log,
		index:    make(map[string]struct{}),
		hasMore:  true,
	}
}

// ResetAndLoad clears the feed, applies filters and loads the first page.
// Any request still in flight from before the reset will be discarded when it completes.
func (c *Controller) ResetAndLoad(ctx context.Context, filters model.Filters) error {
	filters = filters.Normalize()

	c.mu.Lock()
	c.session++
	snap := c.session
	c.items = nil
	c.index = make(map[string]struct{})
	c.cursor = 0
	c.hasMore = true
	c.loading = LoadingInitial
	c.filters = filters
	c.failed = false
	c.err = nil
	c.selected = ""
	c.mu.Unlock()

	c.log.Debug("feed reset", "location", filters.Location, "category", filters.Category, "session", snap)

	page, err := c.lister.List(ctx, client.Query{Skip: 0, Limit: c.pageSize, Filters: filters})

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrent(snap, filters) {
		c.log.Debug("dropping stale first page", "session", snap, "current", c.session)
		return ErrSuperseded
	}

	c.loading = Idle
	if err != nil {
		c.failed = true
		c.err = err
		c.log.Warn("load first page", "location", filters.Location, "category", filters.Category, "error", err)
		return fmt.Errorf("load first page: %w", err)
	}

	c.apply(page)
	return nil
}

// LoadMore fetches the page at the cursor and appends the listings not already shown.
// It returns the appended listings. It is a no-op without a network call while a
// request is in flight or once the feed is exhausted.
func (c *Controller) LoadMore(ctx context.Context) ([]model.Listing, error) {
	c.mu.Lock()
	if c.loading != Idle || !c.hasMore {
		c.mu.Unlock()
		return nil, nil
	}
	c.loading = LoadingMore
	snap := c.session
	cursor := c.cursor
	filters := c.filters
	c.mu.Unlock()

	page, err := c.lister.List(ctx, client.Query{Skip: cursor, Limit: c.pageSize, Filters: filters})

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isCurrent(snap, filters) {
		c.log.Debug("dropping stale page", "skip", cursor, "session", snap, "current", c.session)
		return nil, ErrSuperseded
	}

	c.loading = Idle
	if err != nil {
		c.err = err
		c.log.Warn("load more", "skip", cursor, "error", err)
		return nil, fmt.Errorf("load page at %d: %w", cursor, err)
	}

	return c.apply(page), nil
}

// SelectForPreview marks a loaded listing as the detail overlay subject.
// It reports false, leaving the selection unchanged, when id is not in the feed.
func (c *Controller) SelectForPreview(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[id]; !ok {
		return false
	}
	c.selected = id
	return true
}

// ClearPreview closes the detail overlay.
func (c *Controller) ClearPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = ""
}

// Preview returns the overlay projection of the selected listing, or nil.
func (c *Controller) Preview() *Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == "" {
		return nil
	}
	for i := range c.items {
		if c.items[i].ID == c.selected {
			return NewPreview(&c.items[i])
		}
	}
	return nil
}

// State returns a snapshot of the feed.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]model.Listing, len(c.items))
	copy(items, c.items)
	return State{
		Items:    items,
		Cursor:   c.cursor,
		PageSize: c.pageSize,
		HasMore:  c.hasMore,
		Loading:  c.loading,
		Filters:  c.filters,
		Failed:   c.failed,
		Err:      c.err,
	}
}

func (c *Controller) isCurrent(snap uint64, filters model.Filters) bool {
	return snap == c.session && filters.Equal(c.filters)
}

// apply merges a page into the feed. Callers hold c.mu.
// The cursor tracks the server-side offset, so it advances by the page length
// even when duplicates are dropped.
func (c *Controller) apply(page []model.Listing) []model.Listing {
	var appended []model.Listing
	for _, l := range page {
		if _, dup := c.index[l.ID]; dup {
			continue
		}
		c.index[l.ID] = struct{}{}
		c.items = append(c.items, l)
		appended = append(appended, l)
	}
	c.cursor += len(page)
	if len(page) == 0 || len(page) < c.pageSize {
		c.hasMore = false
	}
	c.failed = false
	c.err = nil
	return appended
}
