// Package upload relays listing images to an image host.
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Limits applied to every file before it reaches a host.
const (
	MaxFileSize = 5 << 20
	MaxFiles    = 10
	parallelism = 4
)

// ErrInvalidFile is returned for files a host must not receive.
var ErrInvalidFile = errors.New("invalid file")

// File is one image to upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Host stores one image and returns its public URL.
type Host interface {
	Upload(ctx context.Context, f File) (string, error)
}

// Relay validates files and uploads them through a Host.
type Relay struct {
	host Host
}

// NewRelay creates a Relay.
func NewRelay(host Host) *Relay {
	return &Relay{host: host}
}

// Validate checks that f is a non-empty image within MaxFileSize.
// The content type is taken from the data, not from what the sender declared.
func Validate(f *File) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidFile, f.Name)
	}
	if len(f.Data) > MaxFileSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidFile, f.Name, MaxFileSize)
	}
	detected := http.DetectContentType(f.Data)
	if !strings.HasPrefix(detected, "image/") {
		return fmt.Errorf("%w: %s is %s, not an image", ErrInvalidFile, f.Name, detected)
	}
	f.ContentType = detected
	return nil
}

// UploadAll uploads files concurrently and returns their URLs in input order.
// Nothing is uploaded when any file fails validation; the first upload error cancels the rest.
func (r *Relay) UploadAll(ctx context.Context, files []File) ([]string, error) {
	if len(files) > MaxFiles {
		return nil, fmt.Errorf("%w: at most %d images", ErrInvalidFile, MaxFiles)
	}
	for i := range files {
		if err := Validate(&files[i]); err != nil {
			return nil, err
		}
	}

	urls := make([]string, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallelism)
	for i, f := range files {
		eg.Go(func() error {
			url, err := r.host.Upload(egCtx, f)
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			urls[i] = url
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}
