// Package media reads operator files and camera frames into uploads.
package media

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/johnrirwin/orbitsafe/internal/models"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrNotImage  = errors.New("file is not a supported image")
)

// AcquisitionError reports a file that could not be turned into an upload.
type AcquisitionError struct {
	Path string
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Path, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

var allowedImageContentTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/bmp":  {},
}

// DetectImageContentType sniffs data and reports whether it is an accepted
// image type.
func DetectImageContentType(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}

	contentType := strings.ToLower(strings.TrimSpace(http.DetectContentType(data)))
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}

	_, ok := allowedImageContentTypes[contentType]
	return contentType, ok
}

// ReadFile loads an image from disk.
func ReadFile(path string) (models.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Upload{}, &AcquisitionError{Path: path, Err: err}
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes validates in-memory image data.
func FromBytes(name string, data []byte) (models.Upload, error) {
	if len(data) == 0 {
		return models.Upload{}, &AcquisitionError{Path: name, Err: ErrEmptyFile}
	}
	contentType, ok := DetectImageContentType(data)
	if !ok {
		return models.Upload{}, &AcquisitionError{Path: name, Err: fmt.Errorf("%w: %s", ErrNotImage, contentType)}
	}
	return models.Upload{
		Name:     name,
		MimeType: contentType,
		Data:     data,
	}, nil
}
