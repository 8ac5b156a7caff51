package alerting

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/pkg/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count(kind NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type alertHarness struct {
	engine   *Engine
	registry *metrics.Registry
	notifier *recordingNotifier
	mu       sync.Mutex
	now      time.Time
}

func newAlertHarness(t *testing.T, rules ...models.AlertRule) *alertHarness {
	t.Helper()
	h := &alertHarness{
		registry: metrics.NewRegistry(),
		notifier: &recordingNotifier{},
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h.engine = NewEngine(h.registry, h.notifier, time.Second, WithClock(func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}))
	if err := h.engine.SetRules(rules); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}
	return h
}

func (h *alertHarness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func queueDepthRule() models.AlertRule {
	return models.AlertRule{
		ID:         "queue-depth-high",
		Name:       "Engineer queue depth high",
		MetricKey:  "router.queue_depth.engineer",
		Comparator: models.CompGreaterThan,
		Threshold:  50,
		Duration:   time.Minute,
		Frequency:  5 * time.Minute,
		Enabled:    true,
	}
}

func TestFiresAfterDurationHolds(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)

	// Condition holds but not yet for the full minute.
	h.engine.Evaluate(ctx)
	h.advance(30 * time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 0 {
		t.Fatal("fired before duration held")
	}

	h.advance(31 * time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("expected 1 firing notification, got %d", h.notifier.count(NotifyFiring))
	}

	active := h.engine.Active()
	if len(active) != 1 || active[0].RuleID != "queue-depth-high" {
		t.Fatalf("unexpected active instances: %v", active)
	}
}

func TestDipResetsDurationClock(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(45 * time.Second)

	// Dip below threshold resets the hold clock.
	h.registry.Set("router.queue_depth.engineer", 10)
	h.engine.Evaluate(ctx)

	h.registry.Set("router.queue_depth.engineer", 80)
	h.advance(30 * time.Second)
	h.engine.Evaluate(ctx)
	h.advance(45 * time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 0 {
		t.Fatal("fired despite the hold clock resetting")
	}

	h.advance(20 * time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("expected firing after full hold, got %d", h.notifier.count(NotifyFiring))
	}
}

func TestSingleActiveInstanceWithRenotify(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("expected initial firing, got %d", h.notifier.count(NotifyFiring))
	}

	// Within frequency: no re-notify, still one instance.
	h.advance(time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("re-notified inside frequency window: %d", h.notifier.count(NotifyFiring))
	}
	if len(h.engine.Active()) != 1 {
		t.Fatalf("expected one active instance, got %d", len(h.engine.Active()))
	}

	// Past frequency: one re-notification.
	h.advance(5 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 2 {
		t.Fatalf("expected re-notification, got %d", h.notifier.count(NotifyFiring))
	}
	if len(h.engine.Active()) != 1 {
		t.Fatalf("re-notification created a second instance")
	}
}

func TestResolveNotifies(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)

	h.registry.Set("router.queue_depth.engineer", 5)
	h.advance(time.Second)
	h.engine.Evaluate(ctx)

	if h.notifier.count(NotifyResolved) != 1 {
		t.Fatalf("expected 1 resolution, got %d", h.notifier.count(NotifyResolved))
	}
	if len(h.engine.Active()) != 0 {
		t.Fatal("resolved instance still active")
	}
	history := h.engine.History()
	if len(history) != 1 || history[0].ResolvedAt == nil {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestAcknowledgeStopsRenotification(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)

	if err := h.engine.Acknowledge("queue-depth-high"); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	// Idempotent.
	if err := h.engine.Acknowledge("queue-depth-high"); err != nil {
		t.Fatalf("second Acknowledge failed: %v", err)
	}

	h.advance(10 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("acknowledged alert re-notified: %d", h.notifier.count(NotifyFiring))
	}

	// Resolution still happens for acknowledged alerts.
	h.registry.Set("router.queue_depth.engineer", 5)
	h.advance(time.Second)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyResolved) != 1 {
		t.Fatal("acknowledged alert did not resolve")
	}
}

func TestSilenceSuppressesNotifications(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)

	h.mu.Lock()
	until := h.now.Add(20 * time.Minute)
	h.mu.Unlock()
	if err := h.engine.Silence("queue-depth-high", until); err != nil {
		t.Fatalf("Silence failed: %v", err)
	}

	h.advance(10 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 1 {
		t.Fatalf("silenced alert notified: %d", h.notifier.count(NotifyFiring))
	}

	// Silence expires; re-notification resumes.
	h.advance(15 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyFiring) != 2 {
		t.Fatalf("expected re-notification after silence expiry, got %d", h.notifier.count(NotifyFiring))
	}
}

func TestSilenceDefersResolution(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)

	h.mu.Lock()
	until := h.now.Add(20 * time.Minute)
	h.mu.Unlock()
	if err := h.engine.Silence("queue-depth-high", until); err != nil {
		t.Fatalf("Silence failed: %v", err)
	}

	// The condition stops holding while silenced: no resolution, no
	// resolve notification, instance stays active.
	h.registry.Set("router.queue_depth.engineer", 5)
	h.advance(10 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyResolved) != 0 {
		t.Fatalf("silenced alert resolved: %d", h.notifier.count(NotifyResolved))
	}
	if len(h.engine.Active()) != 1 {
		t.Fatalf("silenced alert dropped from active set")
	}

	// Silence expires; the still-quiet condition now resolves.
	h.advance(15 * time.Minute)
	h.engine.Evaluate(ctx)
	if h.notifier.count(NotifyResolved) != 1 {
		t.Fatalf("expected resolution after silence expiry, got %d", h.notifier.count(NotifyResolved))
	}
	if len(h.engine.Active()) != 0 {
		t.Fatal("resolved instance still active")
	}
}

func TestAckUnknownRule(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())

	if err := h.engine.Acknowledge("nope"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := h.engine.Acknowledge("queue-depth-high"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation for rule with no active alert, got %v", err)
	}
}

func TestReloadKeepsActiveInstances(t *testing.T) {
	h := newAlertHarness(t, queueDepthRule())
	ctx := context.Background()

	h.registry.Set("router.queue_depth.engineer", 80)
	h.engine.Evaluate(ctx)
	h.advance(61 * time.Second)
	h.engine.Evaluate(ctx)
	if len(h.engine.Active()) != 1 {
		t.Fatal("expected active instance before reload")
	}

	updated := queueDepthRule()
	updated.Threshold = 60
	other := models.AlertRule{
		ID:         "latency-high",
		MetricKey:  "router.avg_latency_ms.engineer",
		Comparator: models.CompGreaterOrEqual,
		Threshold:  120000,
		Enabled:    true,
	}
	if err := h.engine.SetRules([]models.AlertRule{updated, other}); err != nil {
		t.Fatalf("SetRules failed: %v", err)
	}

	if len(h.engine.Active()) != 1 {
		t.Fatal("reload dropped the active instance")
	}
	if len(h.engine.Rules()) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(h.engine.Rules()))
	}
}

func TestLoadRulesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	content := `
rules:
  - rule_id: queue-depth-high
    name: Engineer queue depth high
    metric_key: router.queue_depth.engineer
    comparator: ">"
    threshold: 50
    duration: 60s
    frequency: 5m
  - rule_id: disabled-rule
    metric_key: router.tasks_failed
    comparator: ">="
    threshold: 10
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if rules[0].Duration != time.Minute || rules[0].Frequency != 5*time.Minute {
		t.Errorf("durations not parsed: %+v", rules[0])
	}
	if !rules[0].Enabled {
		t.Error("enabled should default to true")
	}
	if rules[1].Enabled {
		t.Error("explicit enabled: false ignored")
	}
}

func TestLoadRulesRejectsBadComparator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.yaml")
	content := `
rules:
  - rule_id: bad
    metric_key: x
    comparator: "~="
    threshold: 1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing rules: %v", err)
	}

	if _, err := LoadRules(path); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
