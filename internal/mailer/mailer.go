//go:generate go run go.uber.org/mock/mockgen -source=mailer.go -destination=../mocks/mock_mailer.go -package=mocks
package mailer

import (
	"context"

	"go.uber.org/zap"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.log.Info("mail queued",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body))
	return nil
}
