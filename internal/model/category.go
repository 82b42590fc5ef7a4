package model

import "strings"

// Category is an entry of the fixed listing catalogue.
type Category struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Categories is the catalogue offered to sellers and buyers.
var Categories = []Category{
	{Name: "electronics", Slug: "electronics", Description: "Phones, gadgets, accessories and more"},
	{Name: "laptops", Slug: "laptops", Description: "New and used laptops for sale"},
	{Name: "clothing", Slug: "clothing", Description: "Fashion, shoes, and accessories"},
	{Name: "books", Slug: "books", Description: "Textbooks and study materials"},
	{Name: "furniture", Slug: "furniture", Description: "Beds, chairs, desks and more"},
}

// LookupCategory finds a catalogue entry by slug, ignoring case.
func LookupCategory(slug string) (Category, bool) {
	slug = strings.TrimSpace(slug)
	for _, c := range Categories {
		if strings.EqualFold(c.Slug, slug) {
			return c, true
		}
	}
	return Category{}, false
}
