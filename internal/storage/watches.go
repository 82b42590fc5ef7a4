package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campusmart/internal/model"
)

const watchColumns = `id, chat_id, name, location, category, interval_minutes, is_active, last_check_at, created_at`

// CreateWatch inserts a new saved search and populates its ID and CreatedAt.
func (s *SQLite) CreateWatch(ctx context.Context, w *model.Watch) error {
	created := now()
	f := w.Filters.Normalize()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO watches (chat_id, name, location, category, interval_minutes, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ChatID, w.Name, f.Location, f.Category, w.IntervalMinutes, boolToInt(w.IsActive), created,
	)
	if err != nil {
		return fmt.Errorf("insert watch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	w.ID = id
	w.Filters = f
	w.CreatedAt = parseTime(created)
	return nil
}

// GetWatch returns a single watch by its ID.
func (s *SQLite) GetWatch(ctx context.Context, id int64) (*model.Watch, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+watchColumns+` FROM watches WHERE id = ?`, id)
	w, err := scanWatch(row)
	if err != nil {
		return nil, notFound(err, "watch")
	}
	return w, nil
}

// ListWatches returns all watches belonging to the given chat.
func (s *SQLite) ListWatches(ctx context.Context, chatID int64) ([]model.Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watchColumns+` FROM watches WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// ListDueWatches returns all active watches whose interval has elapsed.
func (s *SQLite) ListDueWatches(ctx context.Context) ([]model.Watch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+watchColumns+`
		 FROM watches
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))
		 ORDER BY id`,
		now(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due watches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanWatches(rows)
}

// UpdateWatch persists changes to an existing watch.
func (s *SQLite) UpdateWatch(ctx context.Context, w *model.Watch) error {
	var lastCheck *string
	if w.LastCheckAt != nil {
		v := w.LastCheckAt.UTC().Format(timeLayout)
		lastCheck = &v
	}
	f := w.Filters.Normalize()
	_, err := s.db.ExecContext(ctx,
		`UPDATE watches SET name = ?, location = ?, category = ?, interval_minutes = ?, is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		w.Name, f.Location, f.Category, w.IntervalMinutes, boolToInt(w.IsActive), lastCheck, w.ID,
	)
	if err != nil {
		return fmt.Errorf("update watch: %w", err)
	}
	return nil
}

// DeleteWatch removes a watch and its rules and seen listings.
func (s *SQLite) DeleteWatch(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_listings WHERE watch_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_listings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rules WHERE watch_id = ?`, id); err != nil {
		return fmt.Errorf("delete rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM watches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete watch: %w", err)
	}
	return tx.Commit()
}

// CreateRule inserts a new keyword rule and populates its ID and CreatedAt.
func (s *SQLite) CreateRule(ctx context.Context, r *model.Rule) error {
	created := now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (watch_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.WatchID, string(r.Kind), string(r.Scope), r.Value, created,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = parseTime(created)
	return nil
}

// ListRules returns all rules of the given watch.
func (s *SQLite) ListRules(ctx context.Context, watchID int64) ([]model.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, watch_id, kind, scope, value, created_at FROM rules WHERE watch_id = ? ORDER BY id`, watchID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// GetRule returns a single rule by its ID.
func (s *SQLite) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, watch_id, kind, scope, value, created_at FROM rules WHERE id = ?`, id,
	)
	r, err := scanRule(row)
	if err != nil {
		return nil, notFound(err, "rule")
	}
	return &r, nil
}

// DeleteRule removes a rule by its ID.
func (s *SQLite) DeleteRule(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// MarkSeen records that a listing has been announced for a watch.
func (s *SQLite) MarkSeen(ctx context.Context, watchID int64, listingID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_listings (watch_id, listing_id) VALUES (?, ?)`,
		watchID, listingID,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether a listing has already been announced for a watch.
func (s *SQLite) IsSeen(ctx context.Context, watchID int64, listingID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_listings WHERE watch_id = ? AND listing_id = ?`,
		watchID, listingID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

func scanWatch(row scannable) (*model.Watch, error) {
	var w model.Watch
	var isActive int
	var lastCheck sql.NullString
	var created string
	err := row.Scan(&w.ID, &w.ChatID, &w.Name, &w.Filters.Location, &w.Filters.Category,
		&w.IntervalMinutes, &isActive, &lastCheck, &created)
	if err != nil {
		return nil, err
	}
	w.IsActive = isActive == 1
	if lastCheck.Valid {
		t, _ := time.Parse(timeLayout, lastCheck.String)
		w.LastCheckAt = &t
	}
	w.CreatedAt = parseTime(created)
	return &w, nil
}

func scanWatches(rows *sql.Rows) ([]model.Watch, error) {
	var watches []model.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		watches = append(watches, *w)
	}
	return watches, rows.Err()
}

func scanRule(row scannable) (model.Rule, error) {
	var r model.Rule
	var kind, scope, created string
	if err := row.Scan(&r.ID, &r.WatchID, &kind, &scope, &r.Value, &created); err != nil {
		return r, err
	}
	r.Kind = model.RuleKind(kind)
	r.Scope = model.RuleScope(scope)
	r.CreatedAt = parseTime(created)
	return r, nil
}
