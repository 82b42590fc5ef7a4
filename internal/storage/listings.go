package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"campusmart/internal/model"
)

const listingColumns = `id, owner_id, title, description, price, location, category, images, created_at`

// CreateListing inserts a new listing and populates its ID and CreatedAt.
func (s *SQLite) CreateListing(ctx context.Context, l *model.Listing) error {
	if l.Price < 0 {
		return fmt.Errorf("insert listing: negative price %v", l.Price)
	}
	images := l.Images
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}

	id := uuid.NewString()
	created := now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO listings (`+listingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.OwnerID, l.Title, l.Description, l.Price, l.Location, l.Category, string(raw), created,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	l.ID = id
	l.Images = images
	l.CreatedAt = parseTime(created)
	return nil
}

// GetListing returns a single listing by its ID.
func (s *SQLite) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err != nil {
		return nil, notFound(err, "listing")
	}
	return &l, nil
}

// ListListings returns one page of listings, newest first.
// Location and category match case-insensitively; empty values are ignored.
func (s *SQLite) ListListings(ctx context.Context, q ListingQuery) ([]model.Listing, error) {
	f := q.Filters.Normalize()

	var (
		where []string
		args  []any
	)
	if f.Location != "" {
		where = append(where, "location = ? COLLATE NOCASE")
		args = append(args, f.Location)
	}
	if f.Category != "" {
		where = append(where, "category = ? COLLATE NOCASE")
		args = append(args, f.Category)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	skip := q.Skip
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query listings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanListings(rows)
}

// ListListingsByOwner returns every listing posted by the given user, newest first.
func (s *SQLite) ListListingsByOwner(ctx context.Context, ownerID string) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query owner listings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanListings(rows)
}

func scanListing(row scannable) (model.Listing, error) {
	var l model.Listing
	var images, created string
	err := row.Scan(&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Price, &l.Location, &l.Category, &images, &created)
	if err != nil {
		return l, err
	}
	if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
		return l, fmt.Errorf("decode images of %s: %w", l.ID, err)
	}
	l.CreatedAt = parseTime(created)
	return l, nil
}

func scanListings(rows *sql.Rows) ([]model.Listing, error) {
	listings := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
