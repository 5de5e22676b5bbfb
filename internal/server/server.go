package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"workinbox/internal/domain"
	"workinbox/internal/inbox"
	"workinbox/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Aggregator inbox.Aggregator
	BasePath   string
	Logger     *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"unknown category \"Ticket\""`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"category\":\"Ticket\"}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the work inbox API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Aggregator.Config == nil {
		return nil, errors.New("server: aggregator config is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	hcfg := huma.DefaultConfig("Work Inbox API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerInbox(group, cfg.Aggregator)
	registerAggregate(group, cfg.Aggregator)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.LogAttrs(r.Context(), slog.LevelDebug, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("elapsed", time.Since(start)),
			)
		})
	}
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

// providerError marks a failure of the upstream record source.
type providerError struct{ err error }

func (e providerError) Error() string { return e.err.Error() }
func (e providerError) Unwrap() error { return e.err }

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe providerError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusBadGateway, "provider_unavailable", "record provider failed", map[string]any{"error": pe.Error()})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusBadGateway:
		return "provider_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Work Inbox API Docs</title>
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

func registerInbox(api huma.API, agg inbox.Aggregator) {
	huma.Register(api, huma.Operation{
		OperationID: "get-inbox",
		Method:      http.MethodGet,
		Path:        "/inbox",
		Summary:     "Aggregated work queue",
		Description: "Aggregates the configured provider's current records into one ranked queue.",
		Errors:      []int{http.StatusBadRequest, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category" doc:"Comma separated categories to keep"`
		MinRisk  string `query:"min_risk" doc:"Lowest risk level to keep"`
		Limit    int    `query:"limit" minimum:"0"`
		Explain  bool   `query:"explain" doc:"Include the score breakdown of every item"`
	}) (*struct {
		Body InboxResponse `json:"body"`
	}, error) {
		q, err := parseQuery(input.Category, input.MinRisk, input.Limit)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		res, err := agg.Collect(ctx, nil)
		if err != nil {
			return nil, handleError(providerError{err: err})
		}
		return &struct {
			Body InboxResponse `json:"body"`
		}{Body: inboxResponse(agg, res, q, input.Explain)}, nil
	})
}

func registerAggregate(api huma.API, agg inbox.Aggregator) {
	huma.Register(api, huma.Operation{
		OperationID: "aggregate-inbox",
		Method:      http.MethodPost,
		Path:        "/inbox/aggregate",
		Summary:     "Aggregate a supplied snapshot",
		Description: "Ranks the records in the request body without touching the configured provider.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Category string `query:"category"`
		MinRisk  string `query:"min_risk" doc:"Lowest risk level to keep"`
		Limit    int    `query:"limit" minimum:"0"`
		Explain  bool   `query:"explain"`
		Body     AggregateRequest
	}) (*struct {
		Body InboxResponse `json:"body"`
	}, error) {
		q, err := parseQuery(input.Category, input.MinRisk, input.Limit)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		b := input.Body.Bundle()
		res, err := agg.Collect(ctx, &b)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InboxResponse `json:"body"`
		}{Body: inboxResponse(agg, res, q, input.Explain)}, nil
	})
}

func parseQuery(categories, minRisk string, limit int) (inbox.Query, error) {
	q := inbox.Query{Limit: limit}
	for _, raw := range strings.Split(categories, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		c, ok := domain.ParseCategory(raw)
		if !ok {
			return q, fmt.Errorf("unknown category %q", strings.TrimSpace(raw))
		}
		q.Categories = append(q.Categories, c)
	}
	if strings.TrimSpace(minRisk) != "" {
		lvl, ok := domain.ParseRiskLevel(minRisk)
		if !ok {
			return q, fmt.Errorf("unknown risk level %q", minRisk)
		}
		q.MinRisk = lvl
	}
	return q, nil
}
