package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type mockHost struct {
	mu    sync.Mutex
	names []string
	fail  string
	delay map[string]time.Duration
}

func (m *mockHost) Upload(ctx context.Context, f File) (string, error) {
	if d := m.delay[f.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Name == m.fail {
		return "", errors.New("host unavailable")
	}
	m.mu.Lock()
	m.names = append(m.names, f.Name)
	m.mu.Unlock()
	return "https://img.example.com/" + f.Name, nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		file     File
		wantType string
		wantErr  bool
	}{
		{name: "declared image", file: File{Name: "a.png", ContentType: "image/png", Data: pngHeader}, wantType: "image/png"},
		{name: "sniffed image", file: File{Name: "a", Data: pngHeader}, wantType: "image/png"},
		{name: "text", file: File{Name: "a.txt", ContentType: "text/plain", Data: []byte("hi")}, wantErr: true},
		{name: "sniffed text", file: File{Name: "a", Data: []byte("hello world")}, wantErr: true},
		{name: "mislabelled text", file: File{Name: "a.png", ContentType: "image/png", Data: []byte("hello world")}, wantErr: true},
		{name: "empty", file: File{Name: "a.png", ContentType: "image/png"}, wantErr: true},
		{name: "too large", file: File{Name: "a.png", ContentType: "image/png", Data: make([]byte, MaxFileSize+1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.file
			err := Validate(&f)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFile) {
					t.Fatalf("expected ErrInvalidFile, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if diff := cmp.Diff(tt.wantType, f.ContentType); diff != "" {
				t.Errorf("content type mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUploadAllKeepsOrder(t *testing.T) {
	host := &mockHost{delay: map[string]time.Duration{"first.png": 20 * time.Millisecond}}
	r := NewRelay(host)

	var files []File
	for _, n := range []string{"first.png", "second.png", "third.png"} {
		files = append(files, File{Name: n, ContentType: "image/png", Data: pngHeader})
	}
	urls, err := r.UploadAll(context.Background(), files)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	want := []string{
		"https://img.example.com/first.png",
		"https://img.example.com/second.png",
		"https://img.example.com/third.png",
	}
	if diff := cmp.Diff(want, urls); diff != "" {
		t.Errorf("urls mismatch (-want +got):\n%s", diff)
	}
}

func TestUploadAllErrors(t *testing.T) {
	t.Run("invalid file uploads nothing", func(t *testing.T) {
		host := &mockHost{}
		_, err := NewRelay(host).UploadAll(context.Background(), []File{
			{Name: "ok.png", ContentType: "image/png", Data: pngHeader},
			{Name: "notes.txt", ContentType: "text/plain", Data: []byte("x")},
		})
		if !errors.Is(err, ErrInvalidFile) {
			t.Fatalf("expected ErrInvalidFile, got %v", err)
		}
		if len(host.names) != 0 {
			t.Errorf("expected no uploads, got %v", host.names)
		}
	})

	t.Run("host failure", func(t *testing.T) {
		host := &mockHost{fail: "bad.png"}
		_, err := NewRelay(host).UploadAll(context.Background(), []File{
			{Name: "ok.png", ContentType: "image/png", Data: pngHeader},
			{Name: "bad.png", ContentType: "image/png", Data: pngHeader},
		})
		if err == nil || !strings.Contains(err.Error(), "bad.png") {
			t.Fatalf("expected error naming bad.png, got %v", err)
		}
	})

	t.Run("too many files", func(t *testing.T) {
		files := make([]File, MaxFiles+1)
		_, err := NewRelay(&mockHost{}).UploadAll(context.Background(), files)
		if !errors.Is(err, ErrInvalidFile) {
			t.Fatalf("expected ErrInvalidFile, got %v", err)
		}
	})

	t.Run("no files", func(t *testing.T) {
		urls, err := NewRelay(&mockHost{}).UploadAll(context.Background(), nil)
		if err != nil || len(urls) != 0 {
			t.Fatalf("got %v, %v", urls, err)
		}
	})
}

// cloudinaryStub answers upload requests the way the Cloudinary API does and keeps the last form.
type cloudinaryStub struct {
	mu     sync.Mutex
	status int
	body   string
	fields map[string]string
	file   []byte
}

func (c *cloudinaryStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.fields = map[string]string{}
	for _, k := range []string{"folder", "api_key"} {
		c.fields[k] = r.FormValue(k)
	}
	c.fields["signed"] = fmt.Sprint(r.FormValue("signature") != "")
	if fh, _, err := r.FormFile("file"); err == nil {
		c.file, _ = io.ReadAll(fh)
		_ = fh.Close()
	}
	c.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.status)
	_, _ = io.WriteString(w, c.body)
}

func newStubbedCloudinary(t *testing.T, stub *cloudinaryStub) *Cloudinary {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	c, err := NewCloudinary("demo", "key-1", "secret-1")
	if err != nil {
		t.Fatalf("new cloudinary: %v", err)
	}
	c.cld.Upload.Config.API.UploadPrefix = srv.URL
	return c
}

func TestCloudinaryUpload(t *testing.T) {
	stub := &cloudinaryStub{status: http.StatusOK, body: `{"secure_url":"https://res.cloudinary.com/demo/image/upload/listings/x.png"}`}
	c := newStubbedCloudinary(t, stub)

	got, err := c.Upload(context.Background(), File{Name: "x.png", ContentType: "image/png", Data: pngHeader})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if diff := cmp.Diff("https://res.cloudinary.com/demo/image/upload/listings/x.png", got); diff != "" {
		t.Errorf("url mismatch (-want +got):\n%s", diff)
	}

	want := map[string]string{"folder": "listings", "api_key": "key-1", "signed": "true"}
	if diff := cmp.Diff(want, stub.fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if !bytes.Equal(pngHeader, stub.file) {
		t.Errorf("file part = %q, want the image bytes", stub.file)
	}
}

func TestCloudinaryError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "api error", status: http.StatusUnauthorized, body: `{"error":{"message":"Invalid Signature"}}`, want: "Invalid Signature"},
		{name: "no url", status: http.StatusOK, body: `{}`, want: "no secure_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStubbedCloudinary(t, &cloudinaryStub{status: tt.status, body: tt.body})
			_, err := c.Upload(context.Background(), File{Name: "x.png", ContentType: "image/png", Data: pngHeader})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in error, got %v", tt.want, err)
			}
		})
	}
}

func TestLocalUpload(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	l, err := NewLocal(dir, "http://localhost:8080")
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	got, err := l.Upload(context.Background(), File{Name: "desk.png", ContentType: "image/png", Data: pngHeader})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(got, "http://localhost:8080/uploads/") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("unexpected url %q", got)
	}
	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(got, "http://localhost:8080/uploads/")))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(pngHeader, data) {
		t.Error("stored bytes differ")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Upload(ctx, File{Name: "x.png", Data: pngHeader}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	if _, err := l.Upload(context.Background(), File{Name: "page.html", ContentType: "text/html", Data: []byte("<html>")}); !errors.Is(err, ErrInvalidFile) {
		t.Errorf("expected ErrInvalidFile for text/html, got %v", err)
	}
}

func TestLocalStoresUnderSniffedExtension(t *testing.T) {
	tests := []struct {
		name     string
		file     File
		wantExt  string
		wantType string
	}{
		{
			name:     "html name on gif data",
			file:     File{Name: "cat.html", ContentType: "text/html", Data: []byte("GIF89a<html><script>alert(1)</script></html>")},
			wantExt:  ".gif",
			wantType: "image/gif",
		},
		{
			name:     "svg name on png data",
			file:     File{Name: "logo.svg", Data: pngHeader},
			wantExt:  ".png",
			wantType: "image/png",
		},
		{
			name:     "no extension",
			file:     File{Name: "photo", Data: []byte("\xff\xd8\xff\xe0\x00\x10JFIF")},
			wantExt:  ".jpg",
			wantType: "image/jpeg",
		},
	}

	dir := t.TempDir()
	files := httptest.NewServer(http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir))))
	t.Cleanup(files.Close)
	host, err := NewLocal(dir, files.URL)
	if err != nil {
		t.Fatalf("new local: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			urls, err := NewRelay(host).UploadAll(context.Background(), []File{tt.file})
			if err != nil {
				t.Fatalf("upload: %v", err)
			}
			if diff := cmp.Diff(tt.wantExt, path.Ext(urls[0])); diff != "" {
				t.Errorf("extension mismatch (-want +got):\n%s", diff)
			}

			resp, err := http.Get(urls[0])
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			_ = resp.Body.Close()
			if diff := cmp.Diff(tt.wantType, resp.Header.Get("Content-Type")); diff != "" {
				t.Errorf("served type mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ExampleRelay_UploadAll() {
	dir, _ := os.MkdirTemp("", "uploads")
	defer os.RemoveAll(dir)
	host, _ := NewLocal(dir, "http://localhost:8080")
	urls, err := NewRelay(host).UploadAll(context.Background(), []File{{Name: "a.png", Data: pngHeader}})
	fmt.Println(len(urls), err)
	// Output: 1 <nil>
}
