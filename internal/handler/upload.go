package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"hr-portal/internal/storage"
)

// maxUploadSize caps a single uploaded file.
const maxUploadSize = 20 << 20

// saveUpload stores one multipart file in folder and returns its public path.
func saveUpload(c *gin.Context, store storage.Store, folder string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > maxUploadSize {
		return "", fmt.Errorf("%w: %s exceeds %d MB", errUploadRejected, fh.Filename, maxUploadSize>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	stored, err := store.Save(c.Request.Context(), folder, fh.Filename, f, fh.Size)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) {
			return "", fmt.Errorf("%w: %v", errUploadRejected, err)
		}
		return "", err
	}
	return stored, nil
}

// saveUploads stores every file under field. Returns nil when none were sent.
func saveUploads(c *gin.Context, store storage.Store, folder, field string) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	paths := make([]string, 0, len(headers))
	for _, fh := range headers {
		p, err := saveUpload(c, store, folder, fh)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// saveOptionalUpload stores the single file under field, or returns nil.
func saveOptionalUpload(c *gin.Context, store storage.Store, folder, field string) (*string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, nil
	}
	p, err := saveUpload(c, store, folder, fh)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var errUploadRejected = errors.New("upload rejected")

func writeUploadError(c *gin.Context, err error) {
	if errors.Is(err, errUploadRejected) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	writeError(c, err)
}
