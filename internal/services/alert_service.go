package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AlertSender delivers an alert message to the security operators
type AlertSender interface {
	SendAlert(ctx context.Context, subject, body string) error
}

// SESAlertSender sends alerts using AWS SES
type SESAlertSender struct {
	sesClient   *ses.Client
	fromAddress string
	toAddresses []string
	logger      *slog.Logger
}

// NewSESAlertSender creates a new AWS SES alert sender
func NewSESAlertSender(ctx context.Context, region, fromAddress string, toAddresses []string, logger *slog.Logger) (*SESAlertSender, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddresses: toAddresses,
		logger:      logger,
	}, nil
}

// SendAlert sends a plain-text alert e-mail
func (s *SESAlertSender) SendAlert(ctx context.Context, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: s.toAddresses,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(body),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("message_id", aws.ToString(result.MessageId)),
		slog.Int("recipients", len(s.toAddresses)))
	return nil
}

// AlertService e-mails operators about high severity events and suspicious
// activity. Delivery happens on a background worker.
type AlertService struct {
	sender AlertSender
	queue  *eventQueue
	logger *slog.Logger
}

// NewAlertService creates a new AlertService and starts its worker
func NewAlertService(sender AlertSender, bufferSize int, logger *slog.Logger) *AlertService {
	s := &AlertService{
		sender: sender,
		logger: logger,
	}
	s.queue = newEventQueue("alerts", bufferSize, 10*time.Second, s.send, logger)
	return s
}

// ShouldAlert reports whether event warrants an operator alert
func ShouldAlert(event models.SecurityEvent) bool {
	return event.Severity == models.SeverityHigh || event.Type == models.EventSuspiciousActivity
}

// Notify queues an alert for event if it warrants one
func (s *AlertService) Notify(event models.SecurityEvent) bool {
	if !ShouldAlert(event) {
		return false
	}
	return s.queue.enqueue(event)
}

func (s *AlertService) send(ctx context.Context, event models.SecurityEvent) error {
	subject, body := FormatAlert(event)
	return s.sender.SendAlert(ctx, subject, body)
}

// Close stops accepting alerts and waits for queued ones to be sent
func (s *AlertService) Close(ctx context.Context) error {
	return s.queue.close(ctx)
}

// FormatAlert renders the subject and plain-text body of an alert. Identifiers
// are masked.
func FormatAlert(event models.SecurityEvent) (string, string) {
	subject := fmt.Sprintf("[security] %s (%s)", event.Type, event.Severity)

	var b strings.Builder
	fmt.Fprintf(&b, "Security event %d\n\n", event.ID)
	fmt.Fprintf(&b, "Type:     %s\n", event.Type)
	fmt.Fprintf(&b, "Severity: %s\n", event.Severity)
	fmt.Fprintf(&b, "Time:     %s\n", event.Timestamp.UTC().Format(time.RFC3339))

	if len(event.Data) > 0 {
		keys := make([]string, 0, len(event.Data))
		for key := range event.Data {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		b.WriteString("\nDetails:\n")
		for _, key := range keys {
			val := fmt.Sprint(event.Data[key])
			if key == "identifier" {
				val = pkglogger.SanitizedIdentifier(val)
			}
			fmt.Fprintf(&b, "  %s: %s\n", key, val)
		}
	}

	b.WriteString("\nThis is an automated message. Please do not reply to this email.\n")
	return subject, b.String()
}
