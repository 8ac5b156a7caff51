package models

import (
	"errors"
	"testing"
	"time"
)

func TestNewTaskDefaults(t *testing.T) {
	task, err := NewTask(RoleLead, RoleEngineer, TaskTypeImplementation, "implement login")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	if task.ID == "" {
		t.Error("expected non-empty task ID")
	}
	if task.Status != TaskStatusCreated {
		t.Errorf("expected status created, got %s", task.Status)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("expected default priority medium, got %s", task.Priority)
	}
	if len(task.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(task.History))
	}
	if task.History[0].To != TaskStatusCreated {
		t.Errorf("initial history entry should record created, got %s", task.History[0].To)
	}
}

func TestNewTaskValidation(t *testing.T) {
	cases := []struct {
		name      string
		sender    Role
		recipient Role
		taskType  TaskType
		desc      string
	}{
		{"missing sender", "", RoleEngineer, TaskTypeImplementation, "x"},
		{"missing recipient", RoleLead, "", TaskTypeImplementation, "x"},
		{"missing type", RoleLead, RoleEngineer, "", "x"},
		{"missing description", RoleLead, RoleEngineer, TaskTypeImplementation, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTask(tc.sender, tc.recipient, tc.taskType, tc.desc)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTransitionHappyPath(t *testing.T) {
	task, err := NewTask(RoleLead, RoleEngineer, TaskTypeImplementation, "work")
	if err != nil {
		t.Fatalf("NewTask failed: %v", err)
	}

	steps := []TaskStatus{
		TaskStatusQueued,
		TaskStatusInProgress,
		TaskStatusWaitingApproval,
		TaskStatusInProgress,
		TaskStatusCompleted,
	}
	for _, next := range steps {
		if err := task.Transition(next, "router", ""); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}

	if task.Status != TaskStatusCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
	// One entry from creation plus one per transition.
	if len(task.History) != len(steps)+1 {
		t.Errorf("expected %d history entries, got %d", len(steps)+1, len(task.History))
	}
	if task.LastEntry().To != task.Status {
		t.Errorf("last history entry %s does not match status %s", task.LastEntry().To, task.Status)
	}
}

func TestTransitionRejected(t *testing.T) {
	task, _ := NewTask(RoleLead, RoleEngineer, TaskTypeImplementation, "work")

	err := task.Transition(TaskStatusCompleted, "router", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if task.Status != TaskStatusCreated {
		t.Errorf("task mutated on failed transition: %s", task.Status)
	}
	if len(task.History) != 1 {
		t.Errorf("history grew on failed transition: %d entries", len(task.History))
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []TaskStatus{
		TaskStatusCreated, TaskStatusQueued, TaskStatusInProgress,
		TaskStatusWaitingApproval, TaskStatusWaitingInfo, TaskStatusBlocked,
		TaskStatusCompleted, TaskStatusRejected, TaskStatusError,
	}
	for _, terminal := range []TaskStatus{TaskStatusCompleted, TaskStatusRejected} {
		for _, next := range all {
			if terminal.CanTransition(next) {
				t.Errorf("terminal state %s allows transition to %s", terminal, next)
			}
		}
	}
}

func TestErrorOnlyRequeues(t *testing.T) {
	for _, next := range []TaskStatus{TaskStatusInProgress, TaskStatusCompleted, TaskStatusRejected, TaskStatusBlocked} {
		if TaskStatusError.CanTransition(next) {
			t.Errorf("error state should not transition to %s", next)
		}
	}
	if !TaskStatusError.CanTransition(TaskStatusQueued) {
		t.Error("error state must allow explicit requeue to queued")
	}
}

func TestCancellationReachesRejected(t *testing.T) {
	// Cancellation resolves through rejected from every non-terminal
	// working state.
	cases := []struct {
		name string
		path []TaskStatus
	}{
		{"in progress", []TaskStatus{TaskStatusQueued, TaskStatusInProgress}},
		{"waiting approval", []TaskStatus{TaskStatusQueued, TaskStatusInProgress, TaskStatusWaitingApproval}},
		{"waiting info", []TaskStatus{TaskStatusQueued, TaskStatusInProgress, TaskStatusWaitingInfo}},
		{"blocked", []TaskStatus{TaskStatusQueued, TaskStatusBlocked}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, _ := NewTask(RoleLead, RoleEngineer, TaskTypeImplementation, "work")
			for _, next := range tc.path {
				if err := task.Transition(next, "router", ""); err != nil {
					t.Fatalf("transition to %s failed: %v", next, err)
				}
			}
			if err := task.Transition(TaskStatusRejected, "router", "cancelled"); err != nil {
				t.Errorf("cancel from %s failed: %v", tc.path[len(tc.path)-1], err)
			}
		})
	}
}

func TestReassign(t *testing.T) {
	task, _ := NewTask(RoleLead, RoleEngineer, TaskTypeImplementation, "work")
	if err := task.Transition(TaskStatusQueued, "router", ""); err != nil {
		t.Fatalf("queue failed: %v", err)
	}

	if err := task.Reassign(RoleArchitect, "operator"); err != nil {
		t.Fatalf("reassign failed: %v", err)
	}
	if task.RecipientRole != RoleArchitect {
		t.Errorf("expected recipient architect, got %s", task.RecipientRole)
	}
	if task.Status != TaskStatusQueued {
		t.Errorf("reassign changed status to %s", task.Status)
	}

	if err := task.Transition(TaskStatusInProgress, "router", ""); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if err := task.Reassign(RoleTester, "operator"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected reassign rejection while in progress, got %v", err)
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityCritical.Rank() <= PriorityHigh.Rank() {
		t.Error("critical should outrank high")
	}
	if PriorityHigh.Rank() <= PriorityMedium.Rank() {
		t.Error("high should outrank medium")
	}
	if PriorityMedium.Rank() <= PriorityLow.Rank() {
		t.Error("medium should outrank low")
	}
	if Priority("bogus").Valid() {
		t.Error("unknown priority should not be valid")
	}
}

func TestComparatorEval(t *testing.T) {
	cases := []struct {
		comp      Comparator
		value     float64
		threshold float64
		want      bool
	}{
		{CompGreaterThan, 5, 3, true},
		{CompGreaterThan, 3, 3, false},
		{CompGreaterOrEqual, 3, 3, true},
		{CompLessThan, 2, 3, true},
		{CompLessOrEqual, 3, 3, true},
		{CompEqual, 3, 3, true},
		{CompNotEqual, 2, 3, true},
		{Comparator("~="), 2, 3, false},
	}
	for _, tc := range cases {
		if got := tc.comp.Eval(tc.value, tc.threshold); got != tc.want {
			t.Errorf("%s(%v, %v) = %v, want %v", tc.comp, tc.value, tc.threshold, got, tc.want)
		}
	}
}

func TestAlertRuleValidate(t *testing.T) {
	good := AlertRule{
		ID:         "queue-depth-high",
		MetricKey:  "router.queue_depth.engineer",
		Comparator: CompGreaterThan,
		Threshold:  50,
		Duration:   time.Minute,
		Frequency:  5 * time.Minute,
		Enabled:    true,
	}
	if err := good.Validate(); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}

	bad := good
	bad.Comparator = "<<"
	if err := bad.Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for bad comparator, got %v", err)
	}
}
