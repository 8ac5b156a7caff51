package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/server"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Act on a specific task",
}

var taskRejectReason string
var taskReassignRole string
var taskInfoAnswer string

func init() {
	approve := &cobra.Command{
		Use:   "approve <task-id>",
		Short: "Approve a task waiting for sign-off",
		Args:  cobra.ExactArgs(1),
		RunE:  taskAction("approve", nil),
	}

	reject := &cobra.Command{
		Use:   "reject <task-id>",
		Short: "Reject a task",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction("reject", func() map[string]any {
			return map[string]any{"comment": taskRejectReason}
		}),
	}
	reject.Flags().StringVar(&taskRejectReason, "reason", "", "Rejection reason")

	requeue := &cobra.Command{
		Use:   "requeue <task-id>",
		Short: "Requeue an errored task with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE:  taskAction("requeue", nil),
	}

	cancel := &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		RunE:  taskAction("cancel", nil),
	}

	reassign := &cobra.Command{
		Use:   "reassign <task-id>",
		Short: "Move a task to a different role",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction("reassign", func() map[string]any {
			return map[string]any{"recipient_role": taskReassignRole}
		}),
	}
	reassign.Flags().StringVar(&taskReassignRole, "to", "", "New recipient role (required)")
	reassign.MarkFlagRequired("to")

	info := &cobra.Command{
		Use:   "info <task-id>",
		Short: "Answer a task's information request",
		Args:  cobra.ExactArgs(1),
		RunE: taskAction("info", func() map[string]any {
			return map[string]any{"answer": taskInfoAnswer}
		}),
	}
	info.Flags().StringVar(&taskInfoAnswer, "answer", "", "The answer (required)")
	info.MarkFlagRequired("answer")

	show := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and its history",
		Args:  cobra.ExactArgs(1),
		RunE:  runTaskShow,
	}

	taskCmd.AddCommand(approve, reject, requeue, cancel, reassign, info, show)
}

func taskAction(action string, body func() map[string]any) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		client, err := newAPIClient(cfg)
		if err != nil {
			return err
		}

		payload := map[string]any{}
		if body != nil {
			payload = body()
		}
		var task server.TaskResponse
		if err := client.do("POST", "/tasks/"+args[0]+"/"+action, payload, &task); err != nil {
			return err
		}
		fmt.Printf("%s %s -> %s\n", action, task.ID, task.Status)
		return nil
	}
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	var task server.TaskResponse
	if err := client.do("GET", "/tasks/"+args[0], nil, &task); err != nil {
		return err
	}

	fmt.Printf("Task %s\n", task.ID)
	fmt.Printf("  Type: %s\n", task.TaskType)
	fmt.Printf("  Route: %s -> %s\n", task.SenderRole, task.RecipientRole)
	fmt.Printf("  Priority: %s\n", task.Priority)
	fmt.Printf("  Status: %s\n", task.Status)
	fmt.Printf("  Retries: %d\n", task.RetryCount)
	fmt.Printf("  %s\n", task.Description)
	if len(task.History) > 0 {
		fmt.Println("History:")
		for _, h := range task.History {
			line := fmt.Sprintf("  %s  %s: %s -> %s", h.Timestamp.Format("15:04:05"), h.Actor, h.From, h.To)
			if h.Comment != "" {
				line += " (" + h.Comment + ")"
			}
			fmt.Println(line)
		}
	}
	return nil
}
