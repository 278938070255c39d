// Package storage saves uploaded proof and identity documents and returns the
// public path under which they are served.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"hr-portal/internal/config"
)

// ErrUnsupportedType is returned for files whose extension is not accepted.
var ErrUnsupportedType = errors.New("unsupported file type")

// allowedExtensions lists the upload types the portal accepts.
var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".mp4": true, ".mov": true,
}

// Store persists an uploaded file.
type Store interface {
	// Save writes the content under a generated name in folder and returns
	// the public path or URL of the stored object.
	Save(ctx context.Context, folder, filename string, r io.Reader, size int64) (string, error)
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.LocalDir, cfg.PublicPrefix)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// objectName generates a unique object key in folder keeping the original extension.
func objectName(folder, filename string) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	folder = strings.Trim(path.Clean("/"+folder), "/")
	name := uuid.NewString() + ext
	if folder == "" {
		return name, nil
	}
	return folder + "/" + name, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
