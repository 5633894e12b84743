package mailer

import (
	"context"

	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

var _ model.Mailer = (*LogSender)(nil)

// LogSender writes messages to the log instead of delivering them. It is
// used when no SMTP relay is configured.
type LogSender struct {
	logger *logger.Logger
}

func NewLogSender(l *logger.Logger) *LogSender {
	return &LogSender{logger: l}
}

func (s *LogSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.logger.Info("Mailer: message not delivered, no smtp relay configured",
		"to", to, "subject", subject, "body", htmlBody)
	return nil
}
