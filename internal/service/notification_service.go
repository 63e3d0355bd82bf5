package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swebuk/portal-api/pkg/jobs"
	"github.com/swebuk/portal-api/pkg/mail"
	"github.com/swebuk/portal-api/pkg/messaging"
)

// Domain event types emitted after state changes commit.
const (
	EventProposalSubmitted  = "fyp.proposal_submitted"
	EventSubmissionCreated  = "fyp.submission_created"
	EventSubmissionReviewed = "fyp.submission_reviewed"
	EventGuestRegistered    = "event.guest_registered"
	EventMembershipReviewed = "membership.reviewed"
	EventSessionRolled      = "session.rolled_forward"
)

const (
	jobPublish = "publish"
	jobEmail   = "email"
)

// Notification pairs a domain event with an optional email.
type Notification struct {
	Event messaging.Event
	Email *mail.Message
}

type notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotificationService fans domain events out to Kafka and email on a worker pool.
// Delivery is best effort; Notify never fails the caller.
type NotificationService struct {
	queue     *jobs.Queue
	publisher messaging.Publisher
	mailer    mail.Mailer
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService wires the queue handler to the publisher and mailer.
func NewNotificationService(publisher messaging.Publisher, mailer mail.Mailer, metrics *MetricsService, logger *zap.Logger, opts jobs.Options) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = messaging.NewLogPublisher(logger)
	}
	if mailer == nil {
		mailer = mail.NewLogMailer(logger)
	}
	opts.Logger = logger
	s := &NotificationService{publisher: publisher, mailer: mailer, metrics: metrics, logger: logger, now: time.Now}
	s.queue = jobs.NewQueue("notifications", s.handle, opts)
	return s
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains queued notifications and closes the publisher.
func (s *NotificationService) Stop() {
	s.queue.Stop()
	if err := s.publisher.Close(); err != nil {
		s.logger.Warn("close publisher", zap.Error(err))
	}
}

// Stats reports queue throughput.
func (s *NotificationService) Stats() jobs.Stats {
	return s.queue.Stats()
}

// Notify enqueues the event and, when present, the email as separate jobs so a
// mail retry never republishes the event.
func (s *NotificationService) Notify(_ context.Context, n Notification) {
	if s == nil {
		return
	}
	if n.Event.OccurredAt.IsZero() {
		n.Event.OccurredAt = s.now().UTC()
	}
	if err := s.queue.Enqueue(jobs.Job{Kind: jobPublish, Payload: n.Event}); err != nil {
		s.logger.Warn("notification not queued", zap.String("event", n.Event.Type), zap.Error(err))
	}
	if n.Email == nil || len(n.Email.To) == 0 {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Kind: jobEmail, Payload: emailJob{event: n.Event.Type, msg: *n.Email}}); err != nil {
		s.logger.Warn("email not queued", zap.String("event", n.Event.Type), zap.Error(err))
	}
}

type emailJob struct {
	event string
	msg   mail.Message
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	switch payload := job.Payload.(type) {
	case messaging.Event:
		err := s.publisher.Publish(ctx, payload)
		s.metrics.RecordNotification(payload.Type, err)
		return err
	case emailJob:
		err := s.mailer.Send(ctx, payload.msg)
		s.metrics.RecordNotification(payload.event+".email", err)
		return err
	default:
		return fmt.Errorf("unknown notification job %q", job.Kind)
	}
}
