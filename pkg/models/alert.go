package models

import (
	"fmt"
	"time"
)

// Comparator is the comparison operator of an alert rule condition.
type Comparator string

const (
	CompGreaterThan    Comparator = ">"
	CompGreaterOrEqual Comparator = ">="
	CompLessThan       Comparator = "<"
	CompLessOrEqual    Comparator = "<="
	CompEqual          Comparator = "=="
	CompNotEqual       Comparator = "!="
)

// Eval applies the comparator to a sampled value and a threshold.
func (c Comparator) Eval(value, threshold float64) bool {
	switch c {
	case CompGreaterThan:
		return value > threshold
	case CompGreaterOrEqual:
		return value >= threshold
	case CompLessThan:
		return value < threshold
	case CompLessOrEqual:
		return value <= threshold
	case CompEqual:
		return value == threshold
	case CompNotEqual:
		return value != threshold
	default:
		return false
	}
}

// Valid returns true if the comparator is a known operator.
func (c Comparator) Valid() bool {
	switch c {
	case CompGreaterThan, CompGreaterOrEqual, CompLessThan, CompLessOrEqual, CompEqual, CompNotEqual:
		return true
	default:
		return false
	}
}

// AlertRule is a threshold condition over a metric, with duration hysteresis
// and a minimum re-notification interval.
type AlertRule struct {
	// ID uniquely identifies the rule.
	ID string `json:"rule_id" yaml:"rule_id"`
	// Name is the human-readable rule name.
	Name string `json:"name" yaml:"name"`
	// MetricKey selects the metric to sample.
	MetricKey string `json:"metric_key" yaml:"metric_key"`
	// Comparator combines with Threshold to form the condition.
	Comparator Comparator `json:"comparator" yaml:"comparator"`
	// Threshold is the condition threshold.
	Threshold float64 `json:"threshold" yaml:"threshold"`
	// Duration is how long the condition must hold continuously before firing.
	Duration time.Duration `json:"duration" yaml:"duration"`
	// Frequency is the minimum interval between repeated notifications.
	Frequency time.Duration `json:"frequency" yaml:"frequency"`
	// Enabled toggles evaluation of the rule.
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Validate checks the rule for structural problems.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule_id is required", ErrValidation)
	}
	if r.MetricKey == "" {
		return fmt.Errorf("%w: metric_key is required", ErrValidation)
	}
	if !r.Comparator.Valid() {
		return fmt.Errorf("%w: unknown comparator %q", ErrValidation, r.Comparator)
	}
	if r.Duration < 0 || r.Frequency < 0 {
		return fmt.Errorf("%w: duration and frequency must be non-negative", ErrValidation)
	}
	return nil
}

// AlertInstance is one occurrence of a rule firing. At most one unresolved
// instance exists per rule at any time.
type AlertInstance struct {
	// RuleID links the instance to its rule.
	RuleID string `json:"rule_id"`
	// TriggeredAt is when the instance fired.
	TriggeredAt time.Time `json:"triggered_at"`
	// ResolvedAt is set when the condition stopped holding.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	// AcknowledgedAt is set when an operator acknowledged the alert.
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	// SilencedUntil suppresses notifications (not evaluation) until this time.
	SilencedUntil *time.Time `json:"silenced_until,omitempty"`
	// LastNotifiedAt is when the last notification for this instance was sent.
	LastNotifiedAt time.Time `json:"last_notified_at"`
}

// Active reports whether the instance is still unresolved.
func (a *AlertInstance) Active() bool {
	return a.ResolvedAt == nil
}

// Silenced reports whether notifications are currently suppressed.
func (a *AlertInstance) Silenced(now time.Time) bool {
	return a.SilencedUntil != nil && now.Before(*a.SilencedUntil)
}
