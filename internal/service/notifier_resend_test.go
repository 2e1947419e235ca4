package service

import (
	"context"
	"testing"
	"time"

	"github.com/resendlabs/resend-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmailSender struct {
	delay    time.Duration
	err      error
	requests chan *resend.SendEmailRequest
}

func (s *stubEmailSender) Send(request *resend.SendEmailRequest) error {
	time.Sleep(s.delay)
	if s.requests != nil {
		s.requests <- request
	}
	return s.err
}

func TestResendNotifierDisabledWithoutCredentials(t *testing.T) {
	notifier := NewResendNotifier("", "security@example.com", "Acme")
	assert.False(t, notifier.Enabled())

	err := notifier.NotifyMFAChange(context.Background(), "ada@example.com", NotifyMFADisabled)
	assert.ErrorIs(t, err, ErrNotifierNotConfigured)

	assert.True(t, NewResendNotifier("re_test", "security@example.com", "").Enabled())
}

func TestResendNotifierSendsEmail(t *testing.T) {
	sender := &stubEmailSender{requests: make(chan *resend.SendEmailRequest, 1)}
	notifier := &ResendNotifier{send: sender.Send, From: "security@example.com", AppName: "Acme"}

	require.NoError(t, notifier.NotifyMFAChange(context.Background(), "ada@example.com", NotifyRecoveryCodesRegenerated))

	request := <-sender.requests
	assert.Equal(t, []string{"ada@example.com"}, request.To)
	assert.Equal(t, "security@example.com", request.From)
	assert.Equal(t, "Acme: new recovery codes generated", request.Subject)
}

func TestResendNotifierStopsWaitingAtDeadline(t *testing.T) {
	sender := &stubEmailSender{delay: 2 * time.Second}
	notifier := &ResendNotifier{send: sender.Send, From: "security@example.com", AppName: "Acme"}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := notifier.NotifyMFAChange(ctx, "ada@example.com", NotifyMFADisabled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResendNotifierWrapsSendFailure(t *testing.T) {
	sender := &stubEmailSender{err: assert.AnError}
	notifier := &ResendNotifier{send: sender.Send, From: "security@example.com", AppName: "Acme"}

	err := notifier.NotifyMFAChange(context.Background(), "ada@example.com", NotifyMFADisabled)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "send mfa_disabled notification")
}

func TestNotificationContent(t *testing.T) {
	subject, body := notificationContent("Acme", NotifyMFADisabled)
	assert.Equal(t, "Acme: two-factor authentication disabled", subject)
	assert.Contains(t, body, "turned off")

	subject, body = notificationContent("Acme", NotifyRecoveryCodesRegenerated)
	assert.Equal(t, "Acme: new recovery codes generated", subject)
	assert.Contains(t, body, "previous codes no longer work")
}
