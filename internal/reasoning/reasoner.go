package reasoning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/quorum/internal/router"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Reasoner executes tasks by a single reasoning call per attempt. It
// implements the router's Executor interface: the model may finish the task,
// ask for approval, or ask a clarifying question via response markers.
type Reasoner struct {
	client    *Client
	maxTokens int64
}

// NewReasoner creates a Reasoner on top of an existing client.
func NewReasoner(client *Client) *Reasoner {
	return &Reasoner{
		client:    client,
		maxTokens: 4096,
	}
}

// Execute performs one reasoning attempt for the task. Context deadline
// expiry maps to ErrReasoningTimeout so the router's retry policy applies.
func (r *Reasoner) Execute(ctx context.Context, task *models.Task) (*router.Outcome, error) {
	resp, err := r.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.client.Model(),
		MaxTokens: r.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(task.RecipientRole)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(taskPrompt(task))),
		},
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: task %s", models.ErrReasoningTimeout, task.ID)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrReasoning, err)
	}

	r.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}
	return ParseOutcome(text.String()), nil
}

// systemPrompt returns the role charter for the worker executing the task.
func systemPrompt(role models.Role) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s on a software delivery team. ", strings.ReplaceAll(string(role), "_", " "))
	b.WriteString("Complete the task you are given and reply with your result.\n\n")
	b.WriteString("If the result needs human sign-off before it can be applied, start your reply with a line:\n")
	b.WriteString("NEEDS_APPROVAL: <one-line summary of what should be approved>\n")
	b.WriteString("If you are missing information you cannot proceed without, reply with only a line:\n")
	b.WriteString("NEEDS_INFO: <the question>\n")
	return b.String()
}

// taskPrompt renders the task, its context, and any prior info answer.
func taskPrompt(task *models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task type: %s\nPriority: %s\nFrom: %s\n\n%s\n", task.Type, task.Priority, task.SenderRole, task.Description)

	if len(task.Context) > 0 {
		keys := make([]string, 0, len(task.Context))
		for k := range task.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nContext:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, task.Context[k])
		}
	}
	if len(task.Attachments) > 0 {
		b.WriteString("\nAttachments:\n")
		for _, a := range task.Attachments {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return b.String()
}

const (
	markerApproval = "NEEDS_APPROVAL:"
	markerInfo     = "NEEDS_INFO:"
)

// ParseOutcome interprets the response markers. A NEEDS_INFO line turns the
// whole attempt into a question; a NEEDS_APPROVAL first line marks the rest
// of the reply as a result awaiting sign-off.
func ParseOutcome(text string) *router.Outcome {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, markerInfo) {
		question := strings.TrimSpace(strings.TrimPrefix(trimmed, markerInfo))
		return &router.Outcome{NeedsInfo: true, Question: question}
	}

	if strings.HasPrefix(trimmed, markerApproval) {
		first, rest, _ := strings.Cut(trimmed, "\n")
		summary := strings.TrimSpace(strings.TrimPrefix(first, markerApproval))
		return &router.Outcome{
			Result:          strings.TrimSpace(rest),
			NeedsApproval:   true,
			ApprovalSummary: summary,
		}
	}

	return &router.Outcome{Result: trimmed}
}
