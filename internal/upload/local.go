package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Local writes images to a directory served by the listings server.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates dir if needed. Uploaded files are addressed as baseURL/uploads/<name>.
func NewLocal(dir, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

func (l *Local) Upload(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext, ok := imageExt[f.ContentType]
	if !ok {
		return "", fmt.Errorf("%w: %s has unsupported type %q", ErrInvalidFile, f.Name, f.ContentType)
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(l.dir, name), f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return l.baseURL + "/uploads/" + name, nil
}

// imageExt maps sniffed image types to the extension files are stored under.
// The sender's filename never decides how a stored file is served.
var imageExt = map[string]string{
	"image/jpeg":   ".jpg",
	"image/png":    ".png",
	"image/gif":    ".gif",
	"image/webp":   ".webp",
	"image/bmp":    ".bmp",
	"image/x-icon": ".ico",
}
