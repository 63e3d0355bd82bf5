package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/internal/models"
	appErrors "github.com/swebuk/portal-api/pkg/errors"
)

func TestSubmissionReviewTransitions(t *testing.T) {
	cases := []struct {
		from, to models.SubmissionStatus
		ok       bool
	}{
		{models.SubmissionPending, models.SubmissionApproved, true},
		{models.SubmissionPending, models.SubmissionNeedsRevision, true},
		{models.SubmissionPending, models.SubmissionRejected, true},
		{models.SubmissionPending, models.SubmissionPending, false},
		{models.SubmissionApproved, models.SubmissionRejected, false},
		{models.SubmissionNeedsRevision, models.SubmissionApproved, false},
		{models.SubmissionRejected, models.SubmissionPending, false},
	}
	for _, tc := range cases {
		err := SubmissionReview.Transition(tc.from, tc.to)
		if tc.ok {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			continue
		}
		require.Error(t, err, "%s -> %s", tc.from, tc.to)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	}

	for _, s := range []models.SubmissionStatus{models.SubmissionApproved, models.SubmissionNeedsRevision, models.SubmissionRejected} {
		assert.True(t, SubmissionReview.Terminal(s), s)
	}
}

func TestTargetsSorted(t *testing.T) {
	assert.Equal(t, []models.EventStatus{models.EventCancelled, models.EventPublished}, EventLifecycle.Targets(models.EventDraft))
	assert.Empty(t, EventLifecycle.Targets(models.EventCompleted))
}

func TestTransitionErrorNamesAllowedTargets(t *testing.T) {
	err := EventLifecycle.Transition(models.EventDraft, models.EventCompleted)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, "allowed: cancelled, published")

	err = SubmissionReview.Transition(models.SubmissionApproved, models.SubmissionRejected)
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Message, `"approved" is final`)
}

func TestPostModerationAllowsResubmission(t *testing.T) {
	assert.NoError(t, PostModeration.Transition(models.PostRejected, models.PostPending))
	assert.Error(t, PostModeration.Transition(models.PostDraft, models.PostPublished))
	assert.Error(t, PostModeration.Transition(models.PostPublished, models.PostDraft))
}

func TestFYPLifecycleIsLinear(t *testing.T) {
	assert.NoError(t, FYPLifecycle.Transition(models.FYPStatusProposalApproved, models.FYPStatusInProgress))
	assert.Error(t, FYPLifecycle.Transition(models.FYPStatusProposalSubmitted, models.FYPStatusCompleted))
	assert.Error(t, FYPLifecycle.Transition(models.FYPStatusCompleted, models.FYPStatusInProgress))
}

func TestCascadeOnlyForApprovedProposal(t *testing.T) {
	status, ok := CascadeFor(models.SubmissionProposal, models.SubmissionApproved)
	require.True(t, ok)
	assert.Equal(t, models.FYPStatusProposalApproved, status)

	for _, kind := range []models.SubmissionType{models.SubmissionChapter1, models.SubmissionFinalThesis, models.SubmissionProgressReport} {
		_, ok := CascadeFor(kind, models.SubmissionApproved)
		assert.False(t, ok, kind)
	}
	_, ok = CascadeFor(models.SubmissionProposal, models.SubmissionRejected)
	assert.False(t, ok)
}
