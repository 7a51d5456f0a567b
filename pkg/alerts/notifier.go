package alerts

import (
	"go.uber.org/zap"

	"github.com/yourorg/opsboard/pkg/db/models"
)

// Notifier delivers an alert over a subscription's channel
type Notifier interface {
	Deliver(sub *models.AlertSubscription, alert *models.Alert) error
}

// LogNotifier records deliveries to the log. Email and SMS delivery
// plug in behind the same interface.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Deliver logs the notification
func (n *LogNotifier) Deliver(sub *models.AlertSubscription, alert *models.Alert) error {
	n.logger.Info("alert delivered",
		zap.String("user_id", sub.UserID),
		zap.String("channel", string(sub.Channel)),
		zap.String("alert_id", alert.ID),
		zap.String("priority", string(alert.Priority)))
	return nil
}
