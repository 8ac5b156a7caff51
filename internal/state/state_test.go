package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "quorum.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
}

func TestSaveAndGetTask(t *testing.T) {
	db := openTestDB(t)

	task, err := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeImplementation, "build the widget")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}
	task.Priority = models.PriorityHigh
	task.Context = map[string]any{"repo": "quorum", "attempt": float64(1)}
	task.Attachments = []string{"notes.md"}
	deadline := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	task.Deadline = &deadline
	if err := task.Transition(models.TaskStatusQueued, "router", ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}

	if err := db.SaveTask(task); err != nil {
		t.Fatalf("SaveTask failed: %v", err)
	}

	loaded, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if loaded.Status != models.TaskStatusQueued {
		t.Errorf("status = %s, want queued", loaded.Status)
	}
	if loaded.Priority != models.PriorityHigh {
		t.Errorf("priority = %s, want high", loaded.Priority)
	}
	if loaded.Context["repo"] != "quorum" {
		t.Errorf("context not restored: %v", loaded.Context)
	}
	if len(loaded.Attachments) != 1 || loaded.Attachments[0] != "notes.md" {
		t.Errorf("attachments not restored: %v", loaded.Attachments)
	}
	if loaded.Deadline == nil || !loaded.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v, want %v", loaded.Deadline, deadline)
	}
	if len(loaded.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(loaded.History))
	}
	if loaded.History[1].To != models.TaskStatusQueued || loaded.History[1].Actor != "router" {
		t.Errorf("unexpected history entry: %+v", loaded.History[1])
	}
}

func TestSaveTaskUpsert(t *testing.T) {
	db := openTestDB(t)

	task, _ := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeReview, "review the PR")
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	task.Transition(models.TaskStatusQueued, "router", "")
	task.Transition(models.TaskStatusInProgress, "engineer", "")
	task.RetryCount = 1
	if err := db.SaveTask(task); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	loaded, err := db.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if loaded.Status != models.TaskStatusInProgress {
		t.Errorf("status = %s, want in_progress", loaded.Status)
	}
	if loaded.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", loaded.RetryCount)
	}
	if len(loaded.History) != 3 {
		t.Errorf("history length = %d, want 3", len(loaded.History))
	}
}

func TestGetTaskNotFound(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.GetTask("missing"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestListTasksByStatus(t *testing.T) {
	db := openTestDB(t)

	queued, _ := models.NewTask(models.RoleLead, models.RoleEngineer, models.TaskTypeImplementation, "first")
	queued.Transition(models.TaskStatusQueued, "router", "")
	done, _ := models.NewTask(models.RoleLead, models.RoleTester, models.TaskTypeTestExecution, "second")
	done.Transition(models.TaskStatusQueued, "router", "")
	done.Transition(models.TaskStatusInProgress, "tester", "")
	done.Transition(models.TaskStatusCompleted, "tester", "")

	for _, task := range []*models.Task{queued, done} {
		if err := db.SaveTask(task); err != nil {
			t.Fatalf("SaveTask failed: %v", err)
		}
	}

	got, err := db.ListTasks(models.TaskStatusQueued)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != queued.ID {
		t.Fatalf("unexpected queued tasks: %v", got)
	}

	all, err := db.ListTasks("")
	if err != nil {
		t.Fatalf("ListTasks all failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
}

func TestSaveAndListPools(t *testing.T) {
	db := openTestDB(t)

	pool := &models.WorkerPool{
		Role:              models.RoleEngineer,
		CurrentSize:       4,
		MinSize:           1,
		MaxSize:           10,
		LastScaleActionAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := db.SavePool(pool); err != nil {
		t.Fatalf("SavePool failed: %v", err)
	}

	pool.CurrentSize = 6
	if err := db.SavePool(pool); err != nil {
		t.Fatalf("SavePool update failed: %v", err)
	}

	pools, err := db.ListPools()
	if err != nil {
		t.Fatalf("ListPools failed: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool, got %d", len(pools))
	}
	if pools[0].CurrentSize != 6 {
		t.Errorf("current size = %d, want 6", pools[0].CurrentSize)
	}
	if !pools[0].LastScaleActionAt.Equal(pool.LastScaleActionAt) {
		t.Errorf("last scale action = %v, want %v", pools[0].LastScaleActionAt, pool.LastScaleActionAt)
	}
}

func TestSaveAndListConversations(t *testing.T) {
	db := openTestDB(t)

	created := time.Now().UTC().Truncate(time.Millisecond)
	closed := created.Add(10 * time.Minute)
	conv := &models.BridgeConversation{
		ID:           "conv-1",
		Peer:         "peer-a",
		Version:      "2.0",
		Status:       "closed",
		MessageCount: 3,
		CreatedAt:    created,
		LastActiveAt: created.Add(5 * time.Minute),
		ClosedAt:     &closed,
	}
	if err := db.SaveConversation(conv); err != nil {
		t.Fatalf("SaveConversation failed: %v", err)
	}

	conv.MessageCount = 4
	if err := db.SaveConversation(conv); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.ListConversations("peer-a")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(got))
	}
	if got[0].MessageCount != 4 {
		t.Errorf("message count = %d, want 4", got[0].MessageCount)
	}
	if got[0].ClosedAt == nil || !got[0].ClosedAt.Equal(closed) {
		t.Errorf("closed_at = %v, want %v", got[0].ClosedAt, closed)
	}

	if got, _ := db.ListConversations("peer-b"); len(got) != 0 {
		t.Errorf("expected no conversations for other peer, got %d", len(got))
	}
}

func TestSaveAndListAlertInstances(t *testing.T) {
	db := openTestDB(t)

	triggered := time.Now().UTC().Truncate(time.Millisecond)
	inst := &models.AlertInstance{
		RuleID:         "queue-depth-high",
		TriggeredAt:    triggered,
		LastNotifiedAt: triggered,
	}
	if err := db.SaveAlertInstance(inst); err != nil {
		t.Fatalf("SaveAlertInstance failed: %v", err)
	}

	resolved := triggered.Add(5 * time.Minute)
	inst.ResolvedAt = &resolved
	if err := db.SaveAlertInstance(inst); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := db.ListAlertInstances("queue-depth-high")
	if err != nil {
		t.Fatalf("ListAlertInstances failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 instance, got %d", len(got))
	}
	if got[0].ResolvedAt == nil || !got[0].ResolvedAt.Equal(resolved) {
		t.Errorf("resolved_at = %v, want %v", got[0].ResolvedAt, resolved)
	}

	if got, _ := db.ListAlertInstances("other"); len(got) != 0 {
		t.Errorf("expected no instances for other rule, got %d", len(got))
	}
}
