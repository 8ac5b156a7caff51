package router

import (
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

func queuedTask(t *testing.T, id string, priority models.Priority, createdAt time.Time) *models.Task {
	t.Helper()
	task, err := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeImplementation, "work")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	task.ID = id
	task.Priority = priority
	task.CreatedAt = createdAt
	return task
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	q.Push(queuedTask(t, "a", models.PriorityLow, now))
	q.Push(queuedTask(t, "b", models.PriorityCritical, now.Add(time.Second)))
	q.Push(queuedTask(t, "c", models.PriorityMedium, now))

	want := []string{"b", "c", "a"}
	for _, id := range want {
		got := q.Pop(models.RoleEngineer)
		if got == nil || got.ID != id {
			t.Fatalf("expected %s, got %v", id, got)
		}
	}
	if q.Pop(models.RoleEngineer) != nil {
		t.Error("expected empty queue")
	}
}

func TestQueueFIFOWithinPriority(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	q.Push(queuedTask(t, "newer", models.PriorityMedium, now.Add(time.Second)))
	q.Push(queuedTask(t, "older", models.PriorityMedium, now))

	if got := q.Pop(models.RoleEngineer); got.ID != "older" {
		t.Errorf("expected older first, got %s", got.ID)
	}
}

func TestQueueIDTieBreak(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	q.Push(queuedTask(t, "zzz", models.PriorityMedium, now))
	q.Push(queuedTask(t, "aaa", models.PriorityMedium, now))

	if got := q.Pop(models.RoleEngineer); got.ID != "aaa" {
		t.Errorf("expected lexically smaller ID first, got %s", got.ID)
	}
}

func TestQueueRemoveAndDepth(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	q.Push(queuedTask(t, "a", models.PriorityMedium, now))
	q.Push(queuedTask(t, "b", models.PriorityMedium, now))

	if depth := q.Depth(models.RoleEngineer); depth != 2 {
		t.Errorf("expected depth 2, got %d", depth)
	}
	if !q.Remove("a", models.RoleEngineer) {
		t.Error("expected to remove task a")
	}
	if q.Remove("a", models.RoleEngineer) {
		t.Error("double remove should fail")
	}
	if depth := q.Depth(models.RoleEngineer); depth != 1 {
		t.Errorf("expected depth 1, got %d", depth)
	}
}

func TestQueueSeparatesRoles(t *testing.T) {
	q := NewQueue()
	now := time.Now()

	engineerTask := queuedTask(t, "e", models.PriorityMedium, now)
	testerTask := queuedTask(t, "t", models.PriorityMedium, now)
	testerTask.RecipientRole = models.RoleTester

	q.Push(engineerTask)
	q.Push(testerTask)

	if got := q.Pop(models.RoleTester); got.ID != "t" {
		t.Errorf("expected tester task, got %s", got.ID)
	}
	if got := q.Pop(models.RoleEngineer); got.ID != "e" {
		t.Errorf("expected engineer task, got %s", got.ID)
	}
}
