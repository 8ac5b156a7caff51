// Package server exposes the Quorum HTTP API: task submission and control,
// pool and alert visibility, and a metrics snapshot.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/ShayCichocki/quorum/internal/alerting"
	"github.com/ShayCichocki/quorum/internal/metrics"
	"github.com/ShayCichocki/quorum/internal/router"
	"github.com/ShayCichocki/quorum/internal/scaling"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// Config wires the API to the running subsystems.
type Config struct {
	Router   *router.Router
	Scaler   *scaling.Controller
	Alerts   *alerting.Engine
	Metrics  *metrics.Registry
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrTaskNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, models.ErrInvalidTransition):
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, models.ErrValidation):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

// New returns an HTTP handler exposing the Quorum API.
func New(cfg Config) http.Handler {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	mux := chi.NewRouter()
	mux.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Quorum API", "0.1.0")
	api := humachi.New(mux, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerTasks(group, cfg.Router)
	registerPools(group, cfg.Scaler)
	registerAlerts(group, cfg.Alerts)
	registerMetrics(group, cfg.Metrics)

	return mux
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerTasks(api huma.API, rt *router.Router) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Submit a task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SubmitTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := models.NewTask(
			models.Role(input.Body.SenderRole),
			models.Role(input.Body.RecipientRole),
			models.TaskType(input.Body.TaskType),
			input.Body.Description,
		)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Priority != "" {
			task.Priority = models.Priority(input.Body.Priority)
		}
		task.Context = input.Body.Context
		task.Attachments = input.Body.Attachments
		task.Deadline = input.Body.Deadline

		if err := rt.Submit(task); err != nil {
			return nil, handleError(err)
		}
		created, err := rt.Get(task.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(created)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Role   string `query:"role"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		tasks := rt.List()
		filtered := tasks[:0:0]
		for _, t := range tasks {
			if input.Status != "" && string(t.Status) != input.Status {
				continue
			}
			if input.Role != "" && string(t.RecipientRole) != input.Role {
				continue
			}
			filtered = append(filtered, t)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(filtered)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := rt.Get(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	type taskAction func(ctx context.Context, taskID string, body struct {
		Comment string `json:"comment,omitempty"`
	}) error

	registerAction := func(opID, pathSuffix, summary string, action taskAction) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/tasks/{id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *struct {
			ID   string `path:"id"`
			Body struct {
				Comment string `json:"comment,omitempty"`
			} `json:"body"`
		}) (*struct {
			Body TaskResponse `json:"body"`
		}, error) {
			if err := action(ctx, input.ID, input.Body); err != nil {
				return nil, handleError(err)
			}
			task, err := rt.Get(input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body TaskResponse `json:"body"`
			}{Body: taskResponse(task)}, nil
		})
	}

	registerAction("approve-task", "approve", "Approve a waiting task", func(ctx context.Context, id string, _ struct {
		Comment string `json:"comment,omitempty"`
	}) error {
		return rt.Approve(id, actorFromContext(ctx))
	})
	registerAction("reject-task", "reject", "Reject a task", func(ctx context.Context, id string, body struct {
		Comment string `json:"comment,omitempty"`
	}) error {
		return rt.Reject(id, actorFromContext(ctx), body.Comment)
	})
	registerAction("requeue-task", "requeue", "Requeue an errored task", func(ctx context.Context, id string, _ struct {
		Comment string `json:"comment,omitempty"`
	}) error {
		return rt.Requeue(id, actorFromContext(ctx))
	})
	registerAction("cancel-task", "cancel", "Cancel a task", func(ctx context.Context, id string, _ struct {
		Comment string `json:"comment,omitempty"`
	}) error {
		return rt.Cancel(id, actorFromContext(ctx))
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/reassign",
		Summary:     "Reassign a task to a different role",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			RecipientRole string `json:"recipient_role" example:"engineer"`
		} `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.RecipientRole == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "recipient_role is required", nil)
		}
		if err := rt.Reassign(input.ID, models.Role(input.Body.RecipientRole), actorFromContext(ctx)); err != nil {
			return nil, handleError(err)
		}
		task, err := rt.Get(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "provide-task-info",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/info",
		Summary:     "Answer a task's information request",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Answer string `json:"answer"`
		} `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if input.Body.Answer == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "answer is required", nil)
		}
		if err := rt.ProvideInfo(input.ID, actorFromContext(ctx), input.Body.Answer); err != nil {
			return nil, handleError(err)
		}
		task, err := rt.Get(input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})
}

func registerPools(api huma.API, scaler *scaling.Controller) {
	huma.Register(api, huma.Operation{
		OperationID: "list-pools",
		Method:      http.MethodGet,
		Path:        "/pools",
		Summary:     "List worker pools",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []PoolResponse `json:"body"`
	}, error) {
		pools := scaler.Pools()
		out := make([]PoolResponse, 0, len(pools))
		for _, p := range pools {
			out = append(out, poolResponse(p))
		}
		return &struct {
			Body []PoolResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAlerts(api huma.API, engine *alerting.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-alerts",
		Method:      http.MethodGet,
		Path:        "/alerts",
		Summary:     "List active alerts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AlertInstanceResponse `json:"body"`
	}, error) {
		return &struct {
			Body []AlertInstanceResponse `json:"body"`
		}{Body: mapAlerts(engine.Active())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "alert-history",
		Method:      http.MethodGet,
		Path:        "/alerts/history",
		Summary:     "List resolved alerts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []AlertInstanceResponse `json:"body"`
	}, error) {
		return &struct {
			Body []AlertInstanceResponse `json:"body"`
		}{Body: mapAlerts(engine.History())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{rule_id}/ack",
		Summary:     "Acknowledge an active alert",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
	}) (*struct{}, error) {
		if err := engine.Acknowledge(input.RuleID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "silence-alert",
		Method:      http.MethodPost,
		Path:        "/alerts/{rule_id}/silence",
		Summary:     "Silence an active alert until a given time",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RuleID string `path:"rule_id"`
		Body   struct {
			Until time.Time `json:"until"`
		} `json:"body"`
	}) (*struct{}, error) {
		if input.Body.Until.IsZero() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "until is required", nil)
		}
		if err := engine.Silence(input.RuleID, input.Body.Until); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerMetrics(api huma.API, reg *metrics.Registry) {
	huma.Register(api, huma.Operation{
		OperationID: "metrics-snapshot",
		Method:      http.MethodGet,
		Path:        "/metrics",
		Summary:     "Current metric values",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []MetricResponse `json:"body"`
	}, error) {
		samples := reg.Snapshot()
		out := make([]MetricResponse, 0, len(samples))
		for _, s := range samples {
			out = append(out, MetricResponse{Key: s.Key, Value: s.Value, At: s.At})
		}
		return &struct {
			Body []MetricResponse `json:"body"`
		}{Body: out}, nil
	})
}
