package metrics

import "testing"

func TestSetAndGet(t *testing.T) {
	r := NewRegistry()

	r.Set("router.queue_depth.engineer", 12)
	if got := r.Value("router.queue_depth.engineer"); got != 12 {
		t.Errorf("expected 12, got %v", got)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("missing key should not exist")
	}
	if got := r.Value("missing"); got != 0 {
		t.Errorf("missing key should read zero, got %v", got)
	}
}

func TestAdd(t *testing.T) {
	r := NewRegistry()

	r.Add("router.tasks_completed", 1)
	r.Add("router.tasks_completed", 1)
	if got := r.Value("router.tasks_completed"); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
}

func TestSnapshotSorted(t *testing.T) {
	r := NewRegistry()
	r.Set("b", 2)
	r.Set("a", 1)
	r.Set("c", 3)

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(snap))
	}
	if snap[0].Key != "a" || snap[1].Key != "b" || snap[2].Key != "c" {
		t.Errorf("snapshot not sorted: %v", snap)
	}
}
