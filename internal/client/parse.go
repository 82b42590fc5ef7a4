package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"campusmart/internal/model"
)

// wireListing accepts both our own "id" and the "_id" used by document-store backends.
type wireListing struct {
	ID          string    `json:"id"`
	MongoID     string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Images      []string  `json:"images"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (w wireListing) toModel() model.Listing {
	id := w.ID
	if id == "" {
		id = w.MongoID
	}
	images := w.Images
	if images == nil {
		images = []string{}
	}
	return model.Listing{
		ID:          id,
		Title:       w.Title,
		Description: w.Description,
		Price:       w.Price,
		Location:    w.Location,
		Category:    w.Category,
		Images:      images,
		OwnerID:     w.OwnerID,
		CreatedAt:   w.CreatedAt,
	}
}

// ParseListings normalises a listings response body into one canonical slice.
// The backend may answer with a bare array or with {"listings": [...]}.
func ParseListings(body []byte) ([]model.Listing, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body: %w", ErrMalformedResponse)
	}

	var wire []wireListing
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &wire); err != nil {
			return nil, fmt.Errorf("decode listing array: %v: %w", err, ErrMalformedResponse)
		}
	case '{':
		var envelope struct {
			Listings *[]wireListing `json:"listings"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode listing envelope: %v: %w", err, ErrMalformedResponse)
		}
		if envelope.Listings == nil {
			return nil, fmt.Errorf("object without listings field: %w", ErrMalformedResponse)
		}
		wire = *envelope.Listings
	default:
		return nil, fmt.Errorf("unexpected body shape: %w", ErrMalformedResponse)
	}

	listings := make([]model.Listing, 0, len(wire))
	for i, w := range wire {
		l := w.toModel()
		if l.ID == "" {
			return nil, fmt.Errorf("listing %d has no identifier: %w", i, ErrMalformedResponse)
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// ParseListing decodes a single listing object.
func ParseListing(body []byte) (*model.Listing, error) {
	var w wireListing
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode listing: %v: %w", err, ErrMalformedResponse)
	}
	l := w.toModel()
	if l.ID == "" {
		return nil, fmt.Errorf("listing has no identifier: %w", ErrMalformedResponse)
	}
	return &l, nil
}
