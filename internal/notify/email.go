package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"forestwatch/internal/pipeline"
)

// EmailConfig holds SMTP settings for alert emails
type EmailConfig struct {
	Enabled    bool
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	To         []string
	UseSSL     bool // Implicit TLS (port 465); STARTTLS otherwise
	Timeout    time.Duration
	SystemName string // Signature at the bottom of the body
}

// EmailSender sends alert snapshots as email attachments over SMTP
type EmailSender struct {
	cfg  EmailConfig
	now  func() time.Time
	dial func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailSender creates an email sender
func NewEmailSender(cfg EmailConfig) (*EmailSender, error) {
	if err := ValidateEmailConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SystemName == "" {
		cfg.SystemName = "Forest Surveillance System"
	}

	s := &EmailSender{cfg: cfg, now: time.Now}
	s.dial = s.dialAndSend
	return s, nil
}

// ValidateEmailConfig validates the email configuration
func ValidateEmailConfig(cfg EmailConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Host == "" {
		return fmt.Errorf("smtp host is required when email is enabled")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("smtp port %d is invalid", cfg.Port)
	}
	if cfg.From == "" {
		return fmt.Errorf("sender address is required when email is enabled")
	}
	if len(cfg.To) == 0 {
		return fmt.Errorf("at least one receiver address is required when email is enabled")
	}
	return nil
}

// Name implements Notifier
func (s *EmailSender) Name() string {
	return "email"
}

// SendAlert implements Notifier
func (s *EmailSender) SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	msg, err := s.BuildAlertMessage(artifact)
	if err != nil {
		return err
	}
	if err := s.dial(ctx, msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	return nil
}

// SendTest implements Notifier
func (s *EmailSender) SendTest(ctx context.Context) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}

	msg, err := s.newMessage(fmt.Sprintf("%s test message", s.cfg.SystemName), s.now())
	if err != nil {
		return err
	}
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Email delivery is working.\n\nTest sent at: %s\n\nRegards,\n%s.\n",
		s.now().Format("2006-01-02 15:04:05"), s.cfg.SystemName))

	if err := s.dial(ctx, msg); err != nil {
		return fmt.Errorf("failed to send test email: %w", err)
	}
	return nil
}

// BuildAlertMessage renders the alert email with the snapshot attached
func (s *EmailSender) BuildAlertMessage(artifact *pipeline.AlertArtifact) (*mail.Msg, error) {
	if artifact == nil || artifact.ImagePath == "" {
		return nil, fmt.Errorf("alert has no snapshot to attach")
	}

	at := artifact.CreatedAt
	if at.IsZero() {
		at = s.now()
	}

	msg, err := s.newMessage(fmt.Sprintf("Person Detected Alert at %s", at.Format("2006-01-02 15:04:05")), at)
	if err != nil {
		return nil, err
	}
	msg.SetBodyString(mail.TypeTextPlain, AlertBody(artifact.Label, at, s.cfg.SystemName))
	msg.AttachFile(artifact.ImagePath)
	return msg, nil
}

func (s *EmailSender) newMessage(subject string, at time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(s.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid receiver address: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(at)
	return msg, nil
}

// AlertBody renders the plain-text body of an alert email
func AlertBody(label string, at time.Time, systemName string) string {
	return fmt.Sprintf(`A %s has been detected by the Raspberry Pi surveillance system.

Type of Life detected: %s
Date: %s
Time: %s

The attached snapshot was captured automatically. Please verify if this activity is authorized.

Regards,
%s.
`, label, lifeType(label), at.Format("2006-01-02"), at.Format("15:04:05"), systemName)
}

func (s *EmailSender) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
	}
	if s.cfg.UseSSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
