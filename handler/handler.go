package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"content-transformer/internal/metrics"
	"content-transformer/internal/usecase"
)

// Service is the orchestrator the handler dispatches to.
type Service interface {
	Transform(ctx context.Context, in usecase.TransformInput) (usecase.TransformOutput, error)
	History(ctx context.Context, in usecase.HistoryInput) (usecase.HistoryOutput, error)
}

type transformRequest struct {
	Prompt         string `json:"prompt"`
	Mode           string `json:"mode,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// Handler turns API Gateway HTTP API events into orchestrator calls. Every
// call yields exactly one response; errors never escape to the Lambda runtime.
type Handler struct {
	svc        Service
	ownerClaim string
	logger     *slog.Logger
}

type Option func(*Handler)

// WithOwnerClaim selects the authorizer claim holding the owner identity.
func WithOwnerClaim(claim string) Option {
	return func(h *Handler) {
		if c := strings.TrimSpace(claim); c != "" {
			h.ownerClaim = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(svc Service, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("handler: service must not be nil")
	}
	h := &Handler{svc: svc, ownerClaim: defaultOwnerClaim, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	correlationID := correlationIDFrom(req.Headers)
	method := strings.ToUpper(req.RequestContext.HTTP.Method)
	log := h.logger.With("correlation_id", correlationID, "method", method, "path", req.RawPath)

	resp := h.route(ctx, req, method, correlationID, log)
	metrics.RequestsTotal.WithLabelValues(methodLabel(method), strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

// route gates on identity first, so an unauthenticated caller gets 401
// whatever the method or body.
func (h *Handler) route(ctx context.Context, req events.APIGatewayV2HTTPRequest, method, correlationID string, log *slog.Logger) events.APIGatewayV2HTTPResponse {
	owner, err := ownerFromRequest(req, h.ownerClaim)
	if err != nil {
		return h.fail(ctx, log, err, correlationID)
	}

	switch method {
	case http.MethodGet:
		return h.history(ctx, req, owner, correlationID, log)
	case http.MethodPost:
		return h.transform(ctx, req, owner, correlationID, log)
	default:
		return h.fail(ctx, log, &usecase.Error{Code: usecase.ErrorMethodNotAllowed, Reason: usecase.ReasonUnsupportedMethod}, correlationID)
	}
}

func (h *Handler) history(ctx context.Context, req events.APIGatewayV2HTTPRequest, owner, correlationID string, log *slog.Logger) events.APIGatewayV2HTTPResponse {
	in := usecase.HistoryInput{Owner: owner, Cursor: strings.TrimSpace(req.QueryStringParameters["cursor"])}
	if raw := strings.TrimSpace(req.QueryStringParameters["limit"]); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return h.fail(ctx, log, usecase.NewInvalidInput(usecase.ReasonInvalidLimit), correlationID)
		}
		in.Limit = limit
	}

	out, err := h.svc.History(ctx, in)
	if err != nil {
		return h.fail(ctx, log, err, correlationID)
	}

	resp := jsonResponse(http.StatusOK, correlationID, historyItems(out.Records))
	if out.NextCursor != "" {
		resp.Headers[headerNextCursor] = out.NextCursor
	}
	return resp
}

func (h *Handler) transform(ctx context.Context, req events.APIGatewayV2HTTPRequest, owner, correlationID string, log *slog.Logger) events.APIGatewayV2HTTPResponse {
	body, err := decodeBody(req)
	if err != nil {
		return h.fail(ctx, log, err, correlationID)
	}

	out, err := h.svc.Transform(ctx, usecase.TransformInput{
		Owner:          owner,
		Prompt:         body.Prompt,
		Mode:           body.Mode,
		TargetLanguage: body.TargetLanguage,
	})
	if err != nil {
		return h.fail(ctx, log, err, correlationID)
	}

	log.InfoContext(ctx, "transform completed", "request_id", out.RequestID, "latency_ms", out.LatencyMs)
	return jsonResponse(http.StatusOK, correlationID, transformResponse{
		RequestID: out.RequestID,
		Output:    out.Output,
		LatencyMs: out.LatencyMs,
	})
}

func decodeBody(req events.APIGatewayV2HTTPRequest) (transformRequest, error) {
	raw := req.Body
	if req.IsBase64Encoded && raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return transformRequest{}, usecase.NewInvalidInput(usecase.ReasonInvalidJSON)
		}
		raw = string(decoded)
	}
	if strings.TrimSpace(raw) == "" {
		return transformRequest{}, usecase.NewInvalidInput(usecase.ReasonMissingBody)
	}

	var body transformRequest
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return transformRequest{}, usecase.NewInvalidInput(usecase.ReasonInvalidJSON)
	}
	return body, nil
}

func (h *Handler) fail(ctx context.Context, log *slog.Logger, err error, correlationID string) events.APIGatewayV2HTTPResponse {
	status, message := classify(err)
	code, reason := usecase.ErrorInternal, usecase.ReasonUnexpected
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		code, reason = ucErr.Code, ucErr.Reason
	}
	attrs := []any{"status", status, "code", code, "reason", reason, "err", err}
	if status >= http.StatusInternalServerError {
		log.ErrorContext(ctx, "request failed", attrs...)
	} else {
		log.WarnContext(ctx, "request rejected", attrs...)
	}
	return errorResponseFor(status, message, correlationID)
}

// correlationIDFrom reuses an incoming X-Correlation-Id (any case) or mints one.
func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, headerCorrelationID) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func methodLabel(method string) string {
	switch method {
	case http.MethodGet, http.MethodPost:
		return method
	default:
		return "OTHER"
	}
}
