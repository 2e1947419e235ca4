package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/resendlabs/resend-go"
)

var ErrNotifierNotConfigured = errors.New("email notifier not configured")

// ResendNotifier tells a user by email that their second factor changed.
type ResendNotifier struct {
	send    func(request *resend.SendEmailRequest) error
	From    string
	AppName string
}

func NewResendNotifier(apiKey string, from string, appName string) *ResendNotifier {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(from) == "" {
		return &ResendNotifier{}
	}
	client := resend.NewClient(apiKey)
	return &ResendNotifier{
		send: func(request *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(request)
			return err
		},
		From:    from,
		AppName: fallbackIssuer(appName),
	}
}

func (n *ResendNotifier) Enabled() bool {
	return n != nil && n.send != nil
}

func (n *ResendNotifier) NotifyMFAChange(ctx context.Context, email string, event NotificationEvent) error {
	if !n.Enabled() {
		return ErrNotifierNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := notificationContent(n.AppName, event)
	request := &resend.SendEmailRequest{
		From:    n.From,
		To:      []string{email},
		Subject: subject,
		Html:    "<p>" + body + "</p>",
		Text:    body,
	}

	// The SDK call takes no context; stop waiting once ctx is done.
	done := make(chan error, 1)
	go func() {
		done <- n.send(request)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send %s notification: %w", event, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s notification: %w", event, err)
		}
		return nil
	}
}

func notificationContent(appName string, event NotificationEvent) (string, string) {
	switch event {
	case NotifyMFADisabled:
		return fmt.Sprintf("%s: two-factor authentication disabled", appName),
			"Two-factor authentication was turned off for your account. If this was not you, reset your password immediately."
	case NotifyRecoveryCodesRegenerated:
		return fmt.Sprintf("%s: new recovery codes generated", appName),
			"A new set of recovery codes was generated for your account. Your previous codes no longer work."
	default:
		return fmt.Sprintf("%s: security settings changed", appName),
			"The security settings of your account changed."
	}
}
