package server

import (
	"fmt"
	"mime"
	"net/http"
	"path"

	"github.com/gorilla/feeds"

	"campusmart/internal/feed"
	"campusmart/internal/model"
	"campusmart/internal/storage"
)

// handleRSS publishes the newest listings, honouring the same filters as GET /listings.
func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	q, err := parseListingQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	q = storage.ListingQuery{Limit: rssItems, Filters: q.Filters}

	listings, err := s.store.ListListings(r.Context(), q)
	if err != nil {
		s.log.Error("list listings for rss", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error fetching listings.")
		return
	}

	f := &feeds.Feed{
		Title:       "CampusMart listings",
		Link:        &feeds.Link{Href: s.publicURL},
		Description: "Newest items for sale on campus",
	}
	for _, l := range listings {
		f.Items = append(f.Items, s.rssItem(l))
	}
	if len(listings) > 0 {
		f.Created = listings[0].CreatedAt
	}

	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	if err := f.WriteRss(w); err != nil {
		s.log.Error("encode rss", "error", err)
	}
}

func (s *Server) rssItem(l model.Listing) *feeds.Item {
	link := s.publicURL + "/listing/" + l.ID
	item := &feeds.Item{
		Title:       fmt.Sprintf("%s (%s)", l.Title, feed.FormatPrice(l.Price)),
		Link:        &feeds.Link{Href: link},
		Id:          link,
		Description: fmt.Sprintf("%s\n\nLocation: %s\nCategory: %s", l.Description, l.Location, l.Category),
		Created:     l.CreatedAt.UTC(),
	}
	if len(l.Images) > 0 {
		item.Enclosure = &feeds.Enclosure{Url: l.Images[0], Type: imageType(l.Images[0]), Length: "0"}
	}
	return item
}

// imageType guesses an enclosure type from the image URL, defaulting to JPEG.
func imageType(u string) string {
	if t := mime.TypeByExtension(path.Ext(u)); t != "" {
		return t
	}
	return "image/jpeg"
}
