package service

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

// Upload is a document received with a request.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadPolicy bounds accepted documents.
type UploadPolicy struct {
	MaxSize      int64
	AllowedMIMEs []string
}

var documentExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Validate checks size, extension and declared MIME type. The extension and
// MIME type must agree.
func (p UploadPolicy) Validate(u *Upload) error {
	if u == nil || u.Reader == nil {
		return appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if u.Size <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if p.MaxSize > 0 && u.Size > p.MaxSize {
		return appErrors.Clone(appErrors.ErrFileTooLarge, fmt.Sprintf("file exceeds %d MB limit", p.MaxSize/(1024*1024)))
	}
	ext := strings.ToLower(filepath.Ext(u.FileName))
	expected, ok := documentExtensions[ext]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "only PDF, DOC and DOCX files are accepted")
	}
	mediaType, _, err := mime.ParseMediaType(u.ContentType)
	if err != nil || mediaType != expected || !p.allows(mediaType) {
		return appErrors.Clone(appErrors.ErrValidation, "file content type does not match a PDF, DOC or DOCX document")
	}
	return nil
}

func (p UploadPolicy) allows(mediaType string) bool {
	if len(p.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range p.AllowedMIMEs {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}
	return false
}

// documentKey builds the object key fyp/<user>/<fyp>/<type>/<random>.<ext>.
func documentKey(userID, fypID, kind, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return fmt.Sprintf("fyp/%s/%s/%s/%s%s", userID, fypID, kind, uuid.NewString(), ext)
}

// cleanFileName keeps only the base name of a client supplied file name.
func cleanFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return "document"
	}
	return base
}
