package notify

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// SMTPNotifier delivers mail over an authenticated SMTP relay.
type SMTPNotifier struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	siteName string
	logger   *slog.Logger
}

// SMTPConfig carries the relay settings; see config.Config for the
// corresponding environment variables.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// NewSMTP creates an SMTPNotifier. The dialer connects lazily, on first send.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		fromName: cfg.FromName,
		siteName: cfg.FromName,
		logger:   logger,
	}
}

var _ Notifier = (*SMTPNotifier)(nil)

// Send delivers an ad-hoc HTML email with the site-name subject prefix.
func (n *SMTPNotifier) Send(toEmail, toName, subject, htmlBody string) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", n.from, n.fromName)
	msg.SetAddressHeader("To", toEmail, toName)
	msg.SetHeader("Subject", n.siteName+": "+subject)
	msg.SetBody("text/html", htmlBody)

	if err := n.dialer.DialAndSend(msg); err != nil {
		n.logger.Error("email delivery failed",
			slog.String("to", toEmail),
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("notify: sending mail to %s: %w", toEmail, err)
	}
	return nil
}

// SendTemplated renders the stored template with the recipient's fields and
// the call-site extras, then delivers it.
func (n *SMTPNotifier) SendTemplated(r Recipient, templateID string, extra map[string]string, groupID int) error {
	subs := r.substitutions()
	for k, v := range extra {
		subs[k] = v
	}

	subject, body, err := render(templateID, subs)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", n.from, n.fromName)
	msg.SetAddressHeader("To", r.Email, r.Username)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("List-Unsubscribe", n.unsubscribeHeader(groupID))
	msg.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		n.logger.Error("templated email delivery failed",
			slog.String("to", r.Email),
			slog.String("template", templateID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("notify: sending %s to %s: %w", templateID, r.Email, err)
	}
	return nil
}

// SendTemplatedSimple delivers a template addressed only by email.
func (n *SMTPNotifier) SendTemplatedSimple(toEmail, templateID string, groupID int) error {
	subject, body, err := render(templateID, nil)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", n.from, n.fromName)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("List-Unsubscribe", n.unsubscribeHeader(groupID))
	msg.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(msg); err != nil {
		n.logger.Error("templated email delivery failed",
			slog.String("to", toEmail),
			slog.String("template", templateID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("notify: sending %s to %s: %w", templateID, toEmail, err)
	}
	return nil
}

func (n *SMTPNotifier) unsubscribeHeader(groupID int) string {
	return fmt.Sprintf("<mailto:%s?subject=unsubscribe-group-%d>", n.from, groupID)
}
