package service

import (
	"context"
	"errors"
	netmail "net/mail"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swebuk/portal-api/pkg/jobs"
	"github.com/swebuk/portal-api/pkg/mail"
	"github.com/swebuk/portal-api/pkg/messaging"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	fail   int
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail > 0 {
		p.fail--
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// stubNotifier records notifications synchronously for service tests.
type stubNotifier struct {
	sent []Notification
}

func (n *stubNotifier) Notify(_ context.Context, note Notification) {
	n.sent = append(n.sent, note)
}

func (n *stubNotifier) types() []string {
	out := make([]string, 0, len(n.sent))
	for _, note := range n.sent {
		out = append(out, note.Event.Type)
	}
	return out
}

func TestNotificationServicePublishesAndMails(t *testing.T) {
	pub := &recordingPublisher{fail: 1}
	mailer := &recordingMailer{}
	svc := NewNotificationService(pub, mailer, NewMetricsService(), nil, jobs.Options{Workers: 1, MaxRetries: 2, Backoff: time.Millisecond})
	svc.Start(context.Background())
	defer svc.Stop()

	svc.Notify(context.Background(), Notification{
		Event: messaging.Event{Type: EventGuestRegistered, Key: "ev-1"},
		Email: &mail.Message{To: []netmail.Address{{Address: "jane@test.com"}}, Subject: "Registered"},
	})

	require.Eventually(t, func() bool { return pub.count() == 1 && mailer.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, pub.events[0].OccurredAt.IsZero())
}

func TestNotificationServiceNotStartedDoesNotPanic(t *testing.T) {
	svc := NewNotificationService(&recordingPublisher{}, &recordingMailer{}, nil, nil, jobs.Options{})
	svc.Notify(context.Background(), Notification{Event: messaging.Event{Type: EventSessionRolled}})
	assert.Equal(t, uint64(0), svc.Stats().Processed)
}
