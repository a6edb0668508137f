package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/nycmed/hospital-records/internal/core/port"
	"github.com/nycmed/hospital-records/internal/infra/logger"
)

// LogNotifier writes outbound messages to the structured log instead of an
// SMTP relay. It stands in for a real mail integration; recipient addresses
// are masked and bodies (which may carry reset tokens) are never logged.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

// Deliver records the message metadata.
func (n *LogNotifier) Deliver(_ context.Context, msg port.Message) error {
	n.log.Info("notification delivered",
		zap.String("to", logger.MaskEmail(msg.To)),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
