package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

type downloadTokenParser interface {
	Parse(token string) (resourceID, key string, expiresAt time.Time, err error)
}

type localFileOpener interface {
	Open(key string) (*os.File, error)
}

type submissionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Submission, error)
}

// FileDownload is an open stored document ready to stream.
type FileDownload struct {
	File        *os.File
	FileName    string
	ContentType string
	Size        int64
	ExpiresAt   time.Time
}

// DownloadService resolves signed download tokens into locally stored files.
type DownloadService struct {
	signer      downloadTokenParser
	files       localFileOpener
	submissions submissionFinder
	logger      *zap.Logger
}

// NewDownloadService constructs a DownloadService. files may be nil when the
// remote storage backend is active.
func NewDownloadService(signer downloadTokenParser, files localFileOpener, submissions submissionFinder, logger *zap.Logger) *DownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{signer: signer, files: files, submissions: submissions, logger: logger}
}

// Open validates token and opens the file it grants. The token must still
// match the submission's stored reference.
func (s *DownloadService) Open(ctx context.Context, token string) (*FileDownload, error) {
	if strings.TrimSpace(token) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token is required")
	}
	if s.signer == nil || s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "local file downloads are not enabled")
	}
	submissionID, key, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}

	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	if sub.FileURL == nil || *sub.FileURL != key {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}

	file, err := s.files.Open(key)
	if err != nil {
		s.logger.Warn("stored file unavailable", zap.String("submission_id", sub.ID), zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	info, err := file.Stat()
	if err != nil {
		file.Close() //nolint:errcheck
		return nil, appErrors.Internal(err, "failed to read file metadata")
	}

	name := filepath.Base(key)
	if sub.FileName != nil && *sub.FileName != "" {
		name = *sub.FileName
	}
	contentType, ok := documentExtensions[strings.ToLower(filepath.Ext(key))]
	if !ok {
		contentType = "application/octet-stream"
	}
	return &FileDownload{
		File:        file,
		FileName:    name,
		ContentType: contentType,
		Size:        info.Size(),
		ExpiresAt:   expiresAt,
	}, nil
}
