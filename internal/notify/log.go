package notify

import "log/slog"

// LogNotifier renders mail and logs it instead of delivering. Used when SMTP
// is unconfigured (local development) and as the default in tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Send(toEmail, toName, subject, htmlBody string) error {
	n.logger.Info("email suppressed (no SMTP configured)",
		slog.String("to", toEmail),
		slog.String("subject", subject),
	)
	return nil
}

func (n *LogNotifier) SendTemplated(r Recipient, templateID string, extra map[string]string, groupID int) error {
	subs := r.substitutions()
	for k, v := range extra {
		subs[k] = v
	}
	subject, _, err := render(templateID, subs)
	if err != nil {
		return err
	}
	n.logger.Info("templated email suppressed (no SMTP configured)",
		slog.String("to", r.Email),
		slog.String("template", templateID),
		slog.String("subject", subject),
	)
	return nil
}

func (n *LogNotifier) SendTemplatedSimple(toEmail, templateID string, groupID int) error {
	if _, _, err := render(templateID, nil); err != nil {
		return err
	}
	n.logger.Info("templated email suppressed (no SMTP configured)",
		slog.String("to", toEmail),
		slog.String("template", templateID),
	)
	return nil
}
