package server

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"campusmart/internal/auth"
	"campusmart/internal/model"
	"campusmart/internal/storage"
	"campusmart/internal/upload"
)

const maxFormMemory = 8 << 20

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	q, err := parseListingQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	listings, err := s.store.ListListings(r.Context(), q)
	if err != nil {
		s.log.Error("list listings", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error fetching listings.")
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func parseListingQuery(r *http.Request) (storage.ListingQuery, error) {
	v := r.URL.Query()
	q := storage.ListingQuery{
		Limit: DefaultLimit,
		Filters: model.Filters{
			Location: v.Get("location"),
			Category: v.Get("category"),
		}.Normalize(),
	}
	if raw := v.Get("skip"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return q, fmt.Errorf("skip must be a non-negative integer")
		}
		q.Skip = n
	}
	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return q, fmt.Errorf("limit must be a positive integer")
		}
		q.Limit = min(n, MaxLimit)
	}
	return q, nil
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.store.GetListing(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "Listing not found")
		return
	}
	if err != nil {
		s.log.Error("get listing", "listing_id", chi.URLParam(r, "id"), "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error fetching listing.")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFiles*upload.MaxFileSize+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	l, err := listingFromForm(r)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	files, err := formImages(r, "images")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	urls, err := s.relay.UploadAll(r.Context(), files)
	if errors.Is(err, upload.ErrInvalidFile) {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("upload listing images", "error", err)
		writeFailure(w, http.StatusBadGateway, "Failed to upload images")
		return
	}
	l.Images = urls
	l.OwnerID = auth.UserID(r.Context())

	if err := s.store.CreateListing(r.Context(), l); err != nil {
		s.log.Error("create listing", "error", err)
		writeFailure(w, http.StatusInternalServerError, "Error creating listing")
		return
	}
	s.log.Info("listing created", "listing_id", l.ID, "owner_id", l.OwnerID, "images", len(urls))
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "listing": l})
}

func listingFromForm(r *http.Request) (*model.Listing, error) {
	l := &model.Listing{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Location:    strings.TrimSpace(r.FormValue("location")),
	}
	if l.Title == "" {
		return nil, errors.New("title is required")
	}
	if l.Location == "" {
		return nil, errors.New("location is required")
	}
	cat, ok := model.LookupCategory(r.FormValue("category"))
	if !ok {
		return nil, fmt.Errorf("unknown category %q", r.FormValue("category"))
	}
	l.Category = cat.Slug

	price, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("price")), 64)
	if err != nil || price < 0 {
		return nil, errors.New("price must be a non-negative number")
	}
	l.Price = price
	return l, nil
}

func formImages(r *http.Request, field string) ([]upload.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var files []upload.File
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, upload.MaxFileSize+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		files = append(files, upload.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func (s *Server) handleUserListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.ListListingsByOwner(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		s.log.Error("list user listings", "error", err)
		writeError(w, http.StatusInternalServerError, "InternalServerError", "Error fetching listings.")
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, model.Categories)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFiles*upload.MaxFileSize+maxFormMemory)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	var files []upload.File
	for _, field := range slices.Sorted(maps.Keys(r.MultipartForm.File)) {
		fs, err := formImages(r, field)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		files = append(files, fs...)
	}
	if len(files) == 0 {
		writeFailure(w, http.StatusBadRequest, "No files uploaded")
		return
	}

	urls, err := s.relay.UploadAll(r.Context(), files)
	if errors.Is(err, upload.ErrInvalidFile) {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error("upload images", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "Failed to upload images",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Images uploaded successfully",
		"urls":    urls,
	})
}
