package workflow

import "github.com/swebuk/portal-api/internal/models"

// SubmissionReview moves a submission version out of pending exactly once.
// needs_revision is terminal for the version; the student submits a new one.
var SubmissionReview = New("submission", map[models.SubmissionStatus][]models.SubmissionStatus{
	models.SubmissionPending: {models.SubmissionApproved, models.SubmissionNeedsRevision, models.SubmissionRejected},
})

// MembershipReview shares its shape with SubmissionReview.
var MembershipReview = New("membership", map[models.MembershipStatus][]models.MembershipStatus{
	models.MembershipPending: {models.MembershipApproved, models.MembershipRejected},
})

// PostModeration governs blog posts.
var PostModeration = New("post", map[models.PostStatus][]models.PostStatus{
	models.PostDraft:    {models.PostPending},
	models.PostPending:  {models.PostPublished, models.PostRejected},
	models.PostRejected: {models.PostPending},
})

// EventLifecycle governs events.
var EventLifecycle = New("event", map[models.EventStatus][]models.EventStatus{
	models.EventDraft:     {models.EventPublished, models.EventCancelled},
	models.EventPublished: {models.EventCancelled, models.EventCompleted},
})

// FYPLifecycle governs manual project status changes.
var FYPLifecycle = New("fyp", map[models.FYPStatus][]models.FYPStatus{
	models.FYPStatusProposalSubmitted: {models.FYPStatusProposalApproved},
	models.FYPStatusProposalApproved:  {models.FYPStatusInProgress},
	models.FYPStatusInProgress:        {models.FYPStatusCompleted},
})

type reviewOutcome struct {
	kind   models.SubmissionType
	status models.SubmissionStatus
}

// reviewCascade maps a review outcome to the status forced onto the parent FYP.
var reviewCascade = map[reviewOutcome]models.FYPStatus{
	{models.SubmissionProposal, models.SubmissionApproved}: models.FYPStatusProposalApproved,
}

// CascadeFor returns the FYP status implied by reviewing a submission of the
// given type with the given outcome.
func CascadeFor(kind models.SubmissionType, status models.SubmissionStatus) (models.FYPStatus, bool) {
	next, ok := reviewCascade[reviewOutcome{kind, status}]
	return next, ok
}
