// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"campusmart/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// ListingQuery selects one page of listings, newest first.
type ListingQuery struct {
	Skip    int
	Limit   int
	Filters model.Filters
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateListing(ctx context.Context, l *model.Listing) error
	GetListing(ctx context.Context, id string) (*model.Listing, error)
	ListListings(ctx context.Context, q ListingQuery) ([]model.Listing, error)
	ListListingsByOwner(ctx context.Context, ownerID string) ([]model.Listing, error)

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateWhatsApp(ctx context.Context, userID, number string) error

	CreateWatch(ctx context.Context, w *model.Watch) error
	GetWatch(ctx context.Context, id int64) (*model.Watch, error)
	ListWatches(ctx context.Context, chatID int64) ([]model.Watch, error)
	ListDueWatches(ctx context.Context) ([]model.Watch, error)
	UpdateWatch(ctx context.Context, w *model.Watch) error
	DeleteWatch(ctx context.Context, id int64) error

	CreateRule(ctx context.Context, r *model.Rule) error
	ListRules(ctx context.Context, watchID int64) ([]model.Rule, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	MarkSeen(ctx context.Context, watchID int64, listingID string) error
	IsSeen(ctx context.Context, watchID int64, listingID string) (bool, error)

	SaveChatToken(ctx context.Context, chatID int64, token string) error
	ChatToken(ctx context.Context, chatID int64) (string, error)
	DeleteChatToken(ctx context.Context, chatID int64) error

	Close() error
}
