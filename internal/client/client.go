// Package client talks to the marketplace listings API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"campusmart/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Query selects one page of the listings feed.
type Query struct {
	Skip    int
	Limit   int
	Filters model.Filters
}

// Values encodes the query string. Empty filter values are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("skip", strconv.Itoa(q.Skip))
	v.Set("limit", strconv.Itoa(q.Limit))
	f := q.Filters.Normalize()
	if f.Location != "" {
		v.Set("location", f.Location)
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	return v
}

// NewListing holds the form fields of a listing to create.
type NewListing struct {
	Title       string
	Description string
	Price       float64
	Location    string
	Category    string
}

// ImageFile is one image attached to a new listing.
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// AuthResult is returned by login and signup.
type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// Client is a typed wrapper around the listings API.
type Client struct {
	baseURL string
	http    HTTPClient
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, httpClient HTTPClient) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// List fetches one page of listings.
func (c *Client) List(ctx context.Context, q Query) ([]model.Listing, error) {
	body, err := c.do(ctx, http.MethodGet, "/listings?"+q.Values().Encode(), "", nil, "")
	if err != nil {
		return nil, err
	}
	return ParseListings(body)
}

// Get fetches a single listing by ID.
func (c *Client) Get(ctx context.Context, id string) (*model.Listing, error) {
	body, err := c.do(ctx, http.MethodGet, "/listings/"+url.PathEscape(id), "", nil, "")
	if err != nil {
		return nil, err
	}
	return ParseListing(body)
}

// Create posts a new listing as multipart form data on behalf of token.
func (c *Client) Create(ctx context.Context, token string, l NewListing, images []ImageFile) (*model.Listing, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"title", l.Title},
		{"description", l.Description},
		{"price", strconv.FormatFloat(l.Price, 'f', -1, 64)},
		{"location", l.Location},
		{"category", l.Category},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	for _, img := range images {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images"; filename=%q`, img.Name))
		ct := img.ContentType
		if ct == "" {
			ct = http.DetectContentType(img.Data)
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, fmt.Errorf("write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/listings", token, &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success bool             `json:"success"`
		Message string           `json:"message"`
		Listing *json.RawMessage `json:"listing"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode create response: %v: %w", err, ErrMalformedResponse)
	}
	if !resp.Success || resp.Listing == nil {
		return nil, fmt.Errorf("create listing rejected: %s: %w", resp.Message, ErrMalformedResponse)
	}
	return ParseListing(*resp.Listing)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Signup registers a new account and returns its session token.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*AuthResult, error) {
	return c.authenticate(ctx, "/auth/signup", map[string]string{"name": name, "email": email, "password": password})
}

func (c *Client) authenticate(ctx context.Context, path string, payload map[string]string) (*AuthResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, path, "", bytes.NewReader(raw), "application/json")
	if err != nil {
		return nil, err
	}
	var res AuthResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode auth response: %v: %w", err, ErrMalformedResponse)
	}
	if res.Token == "" {
		return nil, fmt.Errorf("auth response without token: %w", ErrMalformedResponse)
	}
	return &res, nil
}

// Me returns the user owning token.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	body, err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, "")
	if err != nil {
		return nil, err
	}
	var res struct {
		User *model.User `json:"user"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode user: %v: %w", err, ErrMalformedResponse)
	}
	if res.User == nil {
		return nil, fmt.Errorf("response without user: %w", ErrMalformedResponse)
	}
	return res.User, nil
}

// Logout ends the server-side session of token.
func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", token, nil, "")
	return err
}

// MyListings returns the listings posted by the owner of token.
func (c *Client) MyListings(ctx context.Context, token string) ([]model.Listing, error) {
	body, err := c.do(ctx, http.MethodGet, "/user-listings", token, nil, "")
	if err != nil {
		return nil, err
	}
	return ParseListings(body)
}

// UpdateWhatsApp changes the contact number of the owner of token.
func (c *Client) UpdateWhatsApp(ctx context.Context, token, number string) error {
	raw, err := json.Marshal(map[string]string{"whatsapp": number})
	if err != nil {
		return fmt.Errorf("encode whatsapp: %w", err)
	}
	_, err = c.do(ctx, http.MethodPatch, "/auth/whatsapp", token, bytes.NewReader(raw), "application/json")
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "campusmart-client/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrNetwork)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %v: %w", err, ErrNetwork)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrUnauthenticated)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &HTTPError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
