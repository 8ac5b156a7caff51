package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/server"
)

var (
	submitSender    string
	submitRecipient string
	submitType      string
	submitPriority  string
	submitContext   []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a task to the running daemon",
	Long: `Submit a task for routing.

Examples:
  quorum submit --to engineer --type implementation "Build the export endpoint"
  quorum submit --to tester --type test_execution --priority critical "Regression suite for checkout"`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitSender, "from", "operator", "Sender role")
	submitCmd.Flags().StringVar(&submitRecipient, "to", "", "Recipient role (required)")
	submitCmd.Flags().StringVar(&submitType, "type", "implementation", "Task type")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "medium", "Priority: low, medium, high, critical")
	submitCmd.Flags().StringArrayVar(&submitContext, "context", nil, "Context entry as key=value (repeatable)")
	submitCmd.MarkFlagRequired("to")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	req := server.SubmitTaskRequest{
		SenderRole:    submitSender,
		RecipientRole: submitRecipient,
		TaskType:      submitType,
		Description:   args[0],
		Priority:      submitPriority,
	}
	for _, kv := range submitContext {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid context entry %q, want key=value", kv)
		}
		if req.Context == nil {
			req.Context = map[string]any{}
		}
		req.Context[key] = value
	}

	var task server.TaskResponse
	if err := client.do("POST", "/tasks", req, &task); err != nil {
		return err
	}
	fmt.Printf("submitted %s (%s -> %s, %s)\n", task.ID, task.SenderRole, task.RecipientRole, task.Status)
	return nil
}
