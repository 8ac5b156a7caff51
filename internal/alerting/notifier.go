// Package alerting evaluates threshold rules over the metric registry and
// manages alert instance lifecycle: firing, re-notification, acknowledgement,
// silencing, and resolution.
package alerting

import (
	"context"
	"log"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// NotificationKind distinguishes firing notifications from resolutions.
type NotificationKind string

const (
	// NotifyFiring is sent when an alert fires or re-notifies.
	NotifyFiring NotificationKind = "firing"
	// NotifyResolved is sent when an alert condition stops holding.
	NotifyResolved NotificationKind = "resolved"
)

// Notification is one outbound alert notification.
type Notification struct {
	Kind     NotificationKind
	Rule     models.AlertRule
	Instance models.AlertInstance
	Value    float64
	At       time.Time
}

// Notifier delivers alert notifications. Delivery failures are logged by the
// engine and do not affect instance state.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

// Notify logs the notification.
func (LogNotifier) Notify(_ context.Context, n Notification) error {
	switch n.Kind {
	case NotifyResolved:
		log.Printf("[alerting] RESOLVED %s (%s): %s", n.Rule.Name, n.Rule.ID, n.Rule.MetricKey)
	default:
		log.Printf("[alerting] FIRING %s (%s): %s %s %.2f (value %.2f)",
			n.Rule.Name, n.Rule.ID, n.Rule.MetricKey, n.Rule.Comparator, n.Rule.Threshold, n.Value)
	}
	return nil
}
