// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// Listing represents a single marketplace item.
type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Images      []string  `json:"images"`
	OwnerID     string    `json:"ownerId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Filters narrows the listing feed by location and category.
// Empty fields mean "no constraint".
type Filters struct {
	Location string `json:"location,omitempty"`
	Category string `json:"category,omitempty"`
}

// Normalize trims both values so that whitespace-only input counts as unset.
func (f Filters) Normalize() Filters {
	return Filters{
		Location: strings.TrimSpace(f.Location),
		Category: strings.TrimSpace(f.Category),
	}
}

// Equal reports whether two filter sets select the same listings.
func (f Filters) Equal(o Filters) bool {
	a, b := f.Normalize(), o.Normalize()
	return strings.EqualFold(a.Location, b.Location) && strings.EqualFold(a.Category, b.Category)
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	n := f.Normalize()
	return n.Location == "" && n.Category == ""
}

// User is a registered marketplace account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	WhatsApp     string    `json:"whatsapp,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Watch is a saved search that notifies a chat about new listings.
type Watch struct {
	ID              int64
	ChatID          int64
	Name            string
	Filters         Filters
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// RuleKind defines the type of keyword rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// RuleScope defines which part of a listing a rule matches against.
type RuleScope string

// Supported rule scopes.
const (
	ScopeTitle       RuleScope = "title"
	ScopeDescription RuleScope = "description"
	ScopeAll         RuleScope = "all"
)

// Rule is a single keyword rule attached to a watch.
type Rule struct {
	ID        int64
	WatchID   int64
	Kind      RuleKind
	Scope     RuleScope
	Value     string
	CreatedAt time.Time
}
