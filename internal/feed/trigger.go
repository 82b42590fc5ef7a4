package feed

import (
	"context"
	"sync"
)

// Trigger is the infinite-scroll sentinel. It calls load once per transition of the
// sentinel into view and re-arms only after the sentinel leaves the view again.
// Repeated duplicate fetches are additionally prevented by the Controller's loading guard.
type Trigger struct {
	load func(ctx context.Context) error

	mu      sync.Mutex
	visible bool
}

// NewTrigger creates an armed Trigger.
func NewTrigger(load func(ctx context.Context) error) *Trigger {
	return &Trigger{load: load}
}

// Observe reports the sentinel's visibility. It returns whether load was invoked
// and the error load returned.
func (t *Trigger) Observe(ctx context.Context, intersecting bool) (bool, error) {
	t.mu.Lock()
	if !intersecting {
		t.visible = false
		t.mu.Unlock()
		return false, nil
	}
	if t.visible {
		t.mu.Unlock()
		return false, nil
	}
	t.visible = true
	t.mu.Unlock()

	return true, t.load(ctx)
}
