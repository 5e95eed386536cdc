package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// Message is a single outbound email
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers a composed message
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SESClient is the subset of the SES API used by SESMailer
type SESClient interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends emails using AWS SES
type SESMailer struct {
	client      SESClient
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer loads the default AWS credential chain for region
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESMailerWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESMailerWithClient(client SESClient, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody)},
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody)}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body:    body,
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogMailer writes messages to the log instead of delivering them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email (not delivered)",
		slog.String("to", pkglogger.SanitizedEmail(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.TextBody))
	return nil
}

// EmailService composes the application's emails and hands them to a Mailer
type EmailService struct {
	mailer  Mailer
	baseURL string
}

func NewEmailService(mailer Mailer, baseURL string) *EmailService {
	return &EmailService{mailer: mailer, baseURL: baseURL}
}

// ResetLink builds the link the user follows to choose a new password
func (s *EmailService) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, url.QueryEscape(token))
}

// SendPasswordResetEmail sends the reset link for token to the given address
func (s *EmailService) SendPasswordResetEmail(ctx context.Context, to, token string, validFor time.Duration) error {
	link := s.ResetLink(token)
	expiry := humanizeDuration(validFor)

	textBody := fmt.Sprintf(`Password Reset Request

We received a request to reset the password for your account. Use the link below to choose a new password:

%s

This link will expire in %s and can only be used once.

If you didn't request a password reset, you can ignore this email. Your password will not change.
`, link, expiry)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h1>Password Reset Request</h1>
    <p>We received a request to reset the password for your account.</p>
    <p><a href="%s">Reset your password</a></p>
    <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
    <p><strong>This link will expire in %s</strong> and can only be used once.</p>
    <p>If you didn't request a password reset, you can ignore this email. Your password will not change.</p>
</body>
</html>
`, link, link, expiry)

	return s.mailer.Send(ctx, Message{
		To:       to,
		Subject:  "Password Reset Request",
		TextBody: textBody,
		HTMLBody: htmlBody,
	})
}

func humanizeDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int64(d/time.Minute), "minute")
	default:
		return plural(int64(d/time.Second), "second")
	}
}
