package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"missionline/internal/domain"
	"missionline/internal/engine"
	"missionline/internal/eventlog"
	"missionline/internal/repo"
	"missionline/internal/whiteboard"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Board    whiteboard.View
	Log      *eventlog.Store
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"mission m1 not approved (status proposed)"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Missionline API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
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

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo, cfg.Logger))
	hcfg := huma.DefaultConfig("Missionline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMissions(group, cfg.Engine, cfg.Board)
	registerStreams(group, cfg.Log)
	registerAPIKeys(group, cfg.Repo)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine, cfg.Log, cfg.Logger)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps the engine's error taxonomy onto the envelope.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	var transition *engine.InvalidTransitionError
	if errors.As(err, &transition) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{
			"mission_id": transition.MissionID,
			"status":     transition.Status,
		})
	}
	var tool *engine.ToolError
	if errors.As(err, &tool) {
		return newAPIError(http.StatusUnprocessableEntity, "tool_failure", err.Error(), map[string]any{"tool": tool.Tool})
	}
	var persistence *engine.PersistenceError
	if errors.As(err, &persistence) {
		return newAPIError(http.StatusInternalServerError, "persistence_failure", err.Error(), nil)
	}
	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_transition"
	case http.StatusUnprocessableEntity:
		return "tool_failure"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Missionline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
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

func registerMissions(api huma.API, e *engine.Engine, board whiteboard.View) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Propose a mission",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body domain.MissionProjection `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Objective) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "objective is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		source := input.Body.Source
		if source == "" {
			source = "api:" + actorID
		}
		proj, err := e.CreateMission(ctx, input.Body.Objective, source, input.Body.Metadata)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionProjection `json:"body"`
		}{Body: proj}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List mission projections",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"proposed,approved,active,completed,failed,"`
	}) (*struct {
		Body MissionListResponse `json:"body"`
	}, error) {
		items, err := board.List(ctx, domain.Status(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionListResponse `json:"body"`
		}{Body: MissionListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{mission_id}",
		Summary:     "Get mission projection",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body domain.MissionProjection `json:"body"`
	}, error) {
		proj, err := board.Get(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionProjection `json:"body"`
		}{Body: proj}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/approve",
		Summary:     "Approve a proposed mission",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body ApproveResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := e.Approve(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApproveResponse `json:"body"`
		}{Body: approveResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/execute",
		Summary:     "Execute an approved mission",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		MissionID string `path:"mission_id"`
	}) (*struct {
		Body ExecuteResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := e.Execute(ctx, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ExecuteResponse `json:"body"`
		}{Body: executeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "plan-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{mission_id}/plan",
		Summary:     "Attach a plan to a mission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		MissionID string      `path:"mission_id"`
		Body      PlanRequest `json:"body"`
	}) (*struct {
		Body domain.MissionProjection `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Summary == "" && len(input.Body.Steps) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "plan summary or steps required", nil)
		}
		proj, err := e.AddPlan(ctx, input.MissionID, domain.Plan{
			Summary: input.Body.Summary,
			Steps:   input.Body.Steps,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.MissionProjection `json:"body"`
		}{Body: proj}, nil
	})
}

func registerStreams(api huma.API, store *eventlog.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "tail-stream",
		Method:      http.MethodGet,
		Path:        "/streams/{stream}/records",
		Summary:     "Tail raw records from a stream",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Stream string `path:"stream" enum:"missions,artifacts,signals"`
		Limit  int    `query:"limit" default:"50"`
	}) (*struct {
		Body StreamTailResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 500 {
			limit = 50
		}
		lines, err := store.Stream(input.Stream).Tail(ctx, limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StreamTailResponse `json:"body"`
		}{Body: StreamTailResponse{Stream: input.Stream, Records: lines}}, nil
	})
}

func registerAPIKeys(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		key, secret, err := MintAPIKey(ctx, r, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{ID: key.ID, ActorID: key.ActorID, Name: key.Name, Key: secret, CreatedAt: key.CreatedAt}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke an API key",
		Errors:      []int{http.StatusNotFound, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := r.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
