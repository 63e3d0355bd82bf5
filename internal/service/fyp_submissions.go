package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/swebuk/portal-api/internal/models"
	"github.com/swebuk/portal-api/internal/policy"
	"github.com/swebuk/portal-api/internal/repository"
	"github.com/swebuk/portal-api/internal/workflow"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
	pkgmail "github.com/swebuk/portal-api/pkg/mail"
	"github.com/swebuk/portal-api/pkg/messaging"
	"github.com/swebuk/portal-api/pkg/storage"
)

// SubmitDocument stores a new version of a document. The upload happens
// first; if the versioning transaction fails the stored object is removed.
func (s *FYPService) SubmitDocument(ctx context.Context, actorID string, req SubmissionRequest) (*models.Submission, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "fyp_id, submission_type and title are required")
	}
	kind := models.SubmissionType(req.SubmissionType)
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown submission type %q", req.SubmissionType))
	}
	subject, fyp, err := s.loadForActor(ctx, actorID, req.FYPID)
	if err != nil {
		return nil, err
	}
	if !policy.CanSubmitToFYP(subject, fyp) {
		return nil, denyFYP(subject)
	}

	sub := &models.Submission{FYPID: fyp.ID}
	if req.File != nil {
		if err := s.cfg.Upload.Validate(req.File); err != nil {
			return nil, err
		}
		if sub, err = s.storeDocument(ctx, subject.ID, fyp.ID, kind, req.File); err != nil {
			return nil, err
		}
	}
	sub.FYPID = fyp.ID
	sub.SubmissionType = kind
	sub.Title = req.Title
	sub.Description = req.Description

	if err := s.submissions.CreateVersion(ctx, sub); err != nil {
		s.discard(ctx, sub)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "final year project not found")
		}
		return nil, appErrors.Internal(err, "failed to save submission")
	}

	s.invalidate(ctx)
	s.notify(ctx, EventSubmissionCreated, sub.ID, map[string]interface{}{
		"fyp_id":          fyp.ID,
		"submission_type": sub.SubmissionType,
		"version":         sub.VersionNumber,
		"supervisor_id":   fyp.SupervisorID,
	})
	return sub, nil
}

// History lists submission versions newest first, optionally for one type.
func (s *FYPService) History(ctx context.Context, actorID, fypID, rawType string) ([]models.Submission, error) {
	var kind *models.SubmissionType
	if rawType != "" {
		t := models.SubmissionType(rawType)
		if !t.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown submission type %q", rawType))
		}
		kind = &t
	}
	subject, fyp, err := s.loadForActor(ctx, actorID, fypID)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewFYP(subject, fyp) {
		return nil, denyFYP(subject)
	}
	subs, err := s.submissions.ListHistory(ctx, fyp.ID, kind)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load submissions")
	}
	return subs, nil
}

// Review decides a pending submission. Approving a proposal moves the project
// to proposal_approved in the same transaction.
func (s *FYPService) Review(ctx context.Context, actorID, submissionID string, req ReviewRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be approved, needs_revision or rejected")
	}
	subject, err := loadSubject(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if err := policy.Authorize(subject, policy.ActionFYPReview); err != nil {
		return nil, err
	}

	current, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	target := models.SubmissionStatus(req.Status)
	if err := workflow.SubmissionReview.Transition(current.Status, target); err != nil {
		return nil, err
	}

	review := models.SubmissionReview{
		SubmissionID: current.ID,
		Status:       target,
		Feedback:     req.Feedback,
		ReviewerID:   subject.ID,
		ReviewedAt:   s.now().UTC(),
	}
	if next, ok := workflow.CascadeFor(current.SubmissionType, target); ok {
		review.CascadeStatus = &next
	}
	audit := &models.AuditLog{
		UserID:     &subject.ID,
		Action:     models.AuditActionReview,
		Resource:   "fyp_submission",
		ResourceID: &current.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": current.Status}),
		NewValues:  mustJSON(map[string]interface{}{"status": target, "cascade": review.CascadeStatus}),
		IPAddress:  "system",
		UserAgent:  "fyp-service",
	}

	reviewed, err := s.submissions.Review(ctx, review, audit)
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submission has already been reviewed")
		}
		return nil, appErrors.Internal(err, "failed to review submission")
	}

	s.metrics.RecordReview(string(reviewed.SubmissionType), string(reviewed.Status))
	s.invalidate(ctx)
	s.notifyWith(ctx, s.reviewNotification(ctx, reviewed))
	return reviewed, nil
}

// DownloadURL returns a signed link for locally stored files or the public
// URL of a remote object.
func (s *FYPService) DownloadURL(ctx context.Context, actorID, submissionID string) (*models.SubmissionDownload, error) {
	sub, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Internal(err, "failed to load submission")
	}
	subject, fyp, err := s.loadForActor(ctx, actorID, sub.FYPID)
	if err != nil {
		return nil, err
	}
	if !policy.CanViewFYP(subject, fyp) {
		return nil, denyFYP(subject)
	}
	if sub.FileURL == nil || *sub.FileURL == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission has no attached file")
	}

	download := &models.SubmissionDownload{}
	if sub.FileName != nil {
		download.FileName = *sub.FileName
	}
	ref := *sub.FileURL
	if storage.IsRemote(ref) {
		download.URL = ref
		return download, nil
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file downloads are not configured")
	}
	token, expiresAt, err := s.signer.Generate(sub.ID, ref)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign download link")
	}
	download.URL = s.cfg.DownloadPath + "?token=" + url.QueryEscape(token)
	download.ExpiresAt = &expiresAt
	return download, nil
}

func (s *FYPService) storeDocument(ctx context.Context, userID, fypID string, kind models.SubmissionType, upload *Upload) (*models.Submission, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "document storage is not configured")
	}
	name := cleanFileName(upload.FileName)
	ref, err := s.store.Put(ctx, documentKey(userID, fypID, string(kind), name), upload.Reader, upload.ContentType)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to store document")
	}
	size := upload.Size
	return &models.Submission{FileURL: &ref, FileName: &name, FileSize: &size}, nil
}

// discard removes an uploaded object whose database row was never written.
func (s *FYPService) discard(ctx context.Context, sub *models.Submission) {
	if sub == nil || sub.FileURL == nil || s.store == nil {
		return
	}
	if err := s.store.Delete(context.WithoutCancel(ctx), *sub.FileURL); err != nil {
		s.logger.Error("orphaned upload not removed", zap.String("ref", *sub.FileURL), zap.Error(err))
	}
}

func (s *FYPService) reviewNotification(ctx context.Context, sub *models.Submission) Notification {
	n := Notification{Event: messaging.Event{
		Type: EventSubmissionReviewed,
		Key:  sub.ID,
		Data: map[string]interface{}{
			"fyp_id":          sub.FYPID,
			"submission_type": sub.SubmissionType,
			"status":          sub.Status,
			"version":         sub.VersionNumber,
		},
	}}
	fyp, err := s.projects.FindByID(ctx, sub.FYPID)
	if err != nil {
		return n
	}
	owner, err := s.profiles.FindByID(ctx, fyp.StudentID)
	if err != nil || owner.Email == "" {
		return n
	}
	label := strings.ReplaceAll(string(sub.SubmissionType), "_", " ")
	outcome := strings.ReplaceAll(string(sub.Status), "_", " ")
	body := fmt.Sprintf("Hello %s,\n\nYour %s submission \"%s\" (version %d) was reviewed: %s.", owner.FullName, label, sub.Title, sub.VersionNumber, outcome)
	if sub.SupervisorFeedback != nil && *sub.SupervisorFeedback != "" {
		body += "\n\nFeedback:\n" + *sub.SupervisorFeedback
	}
	n.Email = &pkgmail.Message{
		To:      []mail.Address{{Name: owner.FullName, Address: owner.Email}},
		Subject: fmt.Sprintf("Your %s was reviewed", label),
		Text:    body,
	}
	return n
}
