package feed

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"campusmart/internal/model"
)

// PlaceholderImage is shown when a listing has no photos.
const PlaceholderImage = "/placeholder.svg"

// Preview is the read-only projection shown by the detail overlay.
type Preview struct {
	ID          string
	Title       string
	Description string
	Price       string
	Location    string
	Category    string
	Image       string
	DetailPath  string
}

// NewPreview projects l for the overlay. It returns nil for a nil listing.
func NewPreview(l *model.Listing) *Preview {
	if l == nil {
		return nil
	}
	image := PlaceholderImage
	if len(l.Images) > 0 && l.Images[0] != "" {
		image = l.Images[0]
	}
	// Casers keep state between calls and must not be shared.
	caser := cases.Title(language.English)
	return &Preview{
		ID:          l.ID,
		Title:       caser.String(l.Title),
		Description: caser.String(l.Description),
		Price:       FormatPrice(l.Price),
		Location:    caser.String(l.Location),
		Category:    caser.String(l.Category),
		Image:       image,
		DetailPath:  "/listing/" + l.ID,
	}
}

// FormatPrice renders a naira amount with thousands separators.
func FormatPrice(price float64) string {
	return message.NewPrinter(language.English).Sprintf("₦%v", number.Decimal(price, number.MaxFractionDigits(2)))
}
