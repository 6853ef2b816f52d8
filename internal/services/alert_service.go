package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/ticketwell/authcore/internal/models"
)

// AlertService notifies the operations inbox about security events. Alert
// delivery is best effort: callers log failures and never let them affect
// the authentication outcome.
type AlertService interface {
	LockoutEngaged(ctx context.Context, kind models.SubjectKind, key string, attempts int, until time.Time) error
	SuspiciousSession(ctx context.Context, session *models.Session) error
}

// NoopAlertService is wired when alerting is disabled.
type NoopAlertService struct{}

func (NoopAlertService) LockoutEngaged(context.Context, models.SubjectKind, string, int, time.Time) error {
	return nil
}

func (NoopAlertService) SuspiciousSession(context.Context, *models.Session) error {
	return nil
}

// AWSSESAlertService sends security alerts using AWS SES.
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	opsAddress  string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress, opsAddress string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		opsAddress:  opsAddress,
		logger:      logger,
	}, nil
}

// LockoutEngaged reports a subject crossing its failure threshold.
func (s *AWSSESAlertService) LockoutEngaged(ctx context.Context, kind models.SubjectKind, key string, attempts int, until time.Time) error {
	subject := fmt.Sprintf("[authcore] %s lockout engaged", kind)
	body := fmt.Sprintf(`A brute-force lockout has engaged.

Subject kind:    %s
Subject key:     %s
Failed attempts: %d
Locked until:    %s

The subject will be rejected until the lock lapses or an administrator
unlocks it via the admin API.
`, kind, key, attempts, until.UTC().Format(time.RFC3339))

	return s.send(ctx, subject, body)
}

// SuspiciousSession reports a session first observed from a new IP.
func (s *AWSSESAlertService) SuspiciousSession(ctx context.Context, session *models.Session) error {
	subject := "[authcore] session flagged as suspicious"
	body := fmt.Sprintf(`A session has been flagged for suspicious activity.

Session ID:  %s
User ID:     %s
Origin IP:   %s
Current IP:  %s
Device:      %s / %s (%s)
Created at:  %s

The session remains live; flagging is advisory. Terminate it via the admin
API if the activity looks hostile.
`, session.ID, session.UserID, session.OriginIP, session.CurrentIP,
		session.Browser, session.OS, session.DeviceType,
		session.CreatedAt.UTC().Format(time.RFC3339))

	return s.send(ctx, subject, body)
}

func (s *AWSSESAlertService) send(ctx context.Context, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.opsAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send security alert via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))

	return nil
}
