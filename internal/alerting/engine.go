package alerting

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// ruleState is the per-rule evaluation state the engine tracks between ticks.
type ruleState struct {
	rule models.AlertRule
	// holdingSince is when the condition started holding continuously.
	// Zero when the condition does not currently hold.
	holdingSince time.Time
	// instance is the active (unresolved) alert instance, if any.
	instance *models.AlertInstance
}

// Engine evaluates alert rules on a fixed tick. A rule fires after its
// condition holds for the configured duration; an active instance
// re-notifies no more often than the rule's frequency, and resolves once the
// condition stops holding. At most one unresolved instance exists per rule.
type Engine struct {
	metrics  *metrics.Registry
	notifier Notifier
	interval time.Duration
	clock    func() time.Time

	mu       sync.Mutex
	rules    map[string]*ruleState
	resolved []models.AlertInstance
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an Engine evaluating against the given metric registry.
func NewEngine(reg *metrics.Registry, notifier Notifier, interval time.Duration, opts ...Option) *Engine {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	e := &Engine{
		metrics:  reg,
		notifier: notifier,
		interval: interval,
		clock:    time.Now,
		rules:    make(map[string]*ruleState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRules replaces the rule set, keeping evaluation state and active
// instances for rules whose IDs survive the reload.
func (e *Engine) SetRules(rules []models.AlertRule) error {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*ruleState, len(rules))
	for _, rule := range rules {
		if prev, ok := e.rules[rule.ID]; ok {
			prev.rule = rule
			next[rule.ID] = prev
		} else {
			next[rule.ID] = &ruleState{rule: rule}
		}
	}
	e.rules = next
	return nil
}

// Rules returns the current rule set, sorted by ID.
func (e *Engine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.AlertRule, 0, len(e.rules))
	for _, st := range e.rules {
		out = append(out, st.rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Run evaluates rules on the configured interval until the context is
// cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate runs one evaluation pass over all rules.
func (e *Engine) Evaluate(ctx context.Context) {
	now := e.clock().UTC()

	e.mu.Lock()
	states := make([]*ruleState, 0, len(e.rules))
	for _, st := range e.rules {
		states = append(states, st)
	}
	e.mu.Unlock()

	sort.Slice(states, func(i, j int) bool { return states[i].rule.ID < states[j].rule.ID })
	for _, st := range states {
		e.evaluateRule(ctx, st, now)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, st *ruleState, now time.Time) {
	e.mu.Lock()
	rule := st.rule
	e.mu.Unlock()

	if !rule.Enabled {
		return
	}

	sample, ok := e.metrics.Get(rule.MetricKey)
	if !ok {
		// Metric never reported; the condition cannot hold.
		e.resolveIfActive(ctx, st, now)
		return
	}

	holds := rule.Comparator.Eval(sample.Value, rule.Threshold)
	if !holds {
		e.mu.Lock()
		st.holdingSince = time.Time{}
		e.mu.Unlock()
		e.resolveIfActive(ctx, st, now)
		return
	}

	e.mu.Lock()
	if st.holdingSince.IsZero() {
		st.holdingSince = now
	}
	heldFor := now.Sub(st.holdingSince)
	instance := st.instance
	e.mu.Unlock()

	if heldFor < rule.Duration {
		return
	}

	if instance == nil {
		inst := &models.AlertInstance{
			RuleID:         rule.ID,
			TriggeredAt:    now,
			LastNotifiedAt: now,
		}
		e.mu.Lock()
		st.instance = inst
		e.mu.Unlock()

		e.notify(ctx, Notification{Kind: NotifyFiring, Rule: rule, Instance: *inst, Value: sample.Value, At: now})
		return
	}

	// Active instance: re-notify respecting frequency, ack, and silence.
	e.mu.Lock()
	acked := instance.AcknowledgedAt != nil
	silenced := instance.Silenced(now)
	due := rule.Frequency > 0 && now.Sub(instance.LastNotifiedAt) >= rule.Frequency
	if due && !acked && !silenced {
		instance.LastNotifiedAt = now
	}
	snapshot := *instance
	e.mu.Unlock()

	if due && !acked && !silenced {
		e.notify(ctx, Notification{Kind: NotifyFiring, Rule: rule, Instance: snapshot, Value: sample.Value, At: now})
	}
}

// resolveIfActive resolves the rule's active instance when the condition no
// longer holds. A silenced instance stays active until the silence expires;
// resolution is re-checked on the next tick after that.
func (e *Engine) resolveIfActive(ctx context.Context, st *ruleState, now time.Time) {
	e.mu.Lock()
	instance := st.instance
	if instance == nil {
		e.mu.Unlock()
		return
	}
	if instance.Silenced(now) {
		e.mu.Unlock()
		return
	}
	resolved := now
	instance.ResolvedAt = &resolved
	snapshot := *instance
	st.instance = nil
	st.holdingSince = time.Time{}
	e.resolved = append(e.resolved, snapshot)
	rule := st.rule
	e.mu.Unlock()

	e.notify(ctx, Notification{Kind: NotifyResolved, Rule: rule, Instance: snapshot, At: now})
}

func (e *Engine) notify(ctx context.Context, n Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		log.Printf("[alerting] notification delivery failed for rule %s: %v", n.Rule.ID, err)
	}
}

// Acknowledge marks the active instance of a rule as acknowledged, stopping
// re-notifications. Acknowledging an already acknowledged instance is a
// no-op; acknowledging a rule with no active instance is an error.
func (e *Engine) Acknowledge(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.rules[ruleID]
	if !ok {
		return fmt.Errorf("%w: unknown rule %q", models.ErrValidation, ruleID)
	}
	if st.instance == nil {
		return fmt.Errorf("%w: rule %q has no active alert", models.ErrValidation, ruleID)
	}
	if st.instance.AcknowledgedAt == nil {
		now := e.clock().UTC()
		st.instance.AcknowledgedAt = &now
	}
	return nil
}

// Silence suppresses notifications for the rule's active instance until the
// given time. Evaluation continues while silenced, but the instance is not
// resolved until the silence expires. Extending or shortening an existing
// silence is allowed.
func (e *Engine) Silence(ruleID string, until time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.rules[ruleID]
	if !ok {
		return fmt.Errorf("%w: unknown rule %q", models.ErrValidation, ruleID)
	}
	if st.instance == nil {
		return fmt.Errorf("%w: rule %q has no active alert", models.ErrValidation, ruleID)
	}
	st.instance.SilencedUntil = &until
	return nil
}

// Active returns the currently firing instances, sorted by rule ID.
func (e *Engine) Active() []models.AlertInstance {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.AlertInstance, 0, len(e.rules))
	for _, st := range e.rules {
		if st.instance != nil {
			out = append(out, *st.instance)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RuleID < out[j].RuleID })
	return out
}

// History returns resolved instances, oldest first.
func (e *Engine) History() []models.AlertInstance {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AlertInstance(nil), e.resolved...)
}
