// Package statsd is the degrade-gracefully notify.Notifier used when
// Telegram is disabled. The stats job runs independent of the Telegram
// toggle, so summaries still need a home; this logs them at Info instead
// of dropping them silently.
package statsd

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mcmod-info-mirror/mcim-sync-go/internal/notify"
)

// Notifier logs job summaries instead of delivering them anywhere.
type Notifier struct {
	log *logrus.Entry
}

// New builds a Notifier.
func New(log *logrus.Entry) *Notifier {
	return &Notifier{log: log}
}

// Notify logs summary at Info and always succeeds.
func (n *Notifier) Notify(_ context.Context, summary notify.Summary) error {
	n.log.WithFields(logrus.Fields{
		"job":      summary.Job,
		"platform": summary.Platform,
		"total":    summary.Total,
		"failed":   summary.FailedCount,
		"new":      len(summary.NewProjects),
	}).Info("notify: job summary")
	return nil
}
