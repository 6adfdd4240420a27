package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"content-transformer/internal/domain"
	"content-transformer/internal/usecase"
)

type stubService struct {
	transformOut usecase.TransformOutput
	transformErr error
	transformIn  usecase.TransformInput
	transforms   int

	historyOut usecase.HistoryOutput
	historyErr error
	historyIn  usecase.HistoryInput
	histories  int
}

func (s *stubService) Transform(_ context.Context, in usecase.TransformInput) (usecase.TransformOutput, error) {
	s.transforms++
	s.transformIn = in
	return s.transformOut, s.transformErr
}

func (s *stubService) History(_ context.Context, in usecase.HistoryInput) (usecase.HistoryOutput, error) {
	s.histories++
	s.historyIn = in
	return s.historyOut, s.historyErr
}

func makeEvent(method, path, owner, body string) events.APIGatewayV2HTTPRequest {
	req := events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Headers: map[string]string{"content-type": "application/json"},
		Body:    body,
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: method, Path: path},
		},
	}
	if owner != "" {
		req.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
			JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
				Claims: map[string]string{"sub": owner},
			},
		}
	}
	return req
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func mustHandler(t *testing.T, svc Service, opts ...Option) *Handler {
	t.Helper()
	h, err := NewHandler(svc, opts...)
	require.NoError(t, err)
	return h
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_TransformHappyPath(t *testing.T) {
	svc := &stubService{transformOut: usecase.TransformOutput{RequestID: "1772359200000", Output: "A fox moves quickly.", LatencyMs: 431}}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "user-1", `{"prompt":"Summarize: fox"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
	require.Equal(t, usecase.TransformInput{Owner: "user-1", Prompt: "Summarize: fox"}, svc.transformIn)

	require.JSONEq(t, `{"requestId":"1772359200000","output":"A fox moves quickly.","latencyMs":431}`, resp.Body)
}

func TestHandle_TransformPassesMode(t *testing.T) {
	svc := &stubService{}
	h := mustHandler(t, svc)

	_, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "user-1", `{"prompt":"hola","mode":"translate","targetLanguage":"English"}`))
	require.NoError(t, err)
	require.Equal(t, usecase.TransformInput{Owner: "user-1", Prompt: "hola", Mode: "translate", TargetLanguage: "English"}, svc.transformIn)
}

func TestHandle_TransformBase64Body(t *testing.T) {
	svc := &stubService{}
	h := mustHandler(t, svc)

	event := makeEvent(http.MethodPost, "/transform", "user-1", base64.StdEncoding.EncodeToString([]byte(`{"prompt":"encoded"}`)))
	event.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "encoded", svc.transformIn.Prompt)
}

func TestHandle_TransformBodyErrors(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		base64  bool
		message string
	}{
		{name: "missing body", body: "", message: "Missing request body"},
		{name: "whitespace body", body: "  \n", message: "Missing request body"},
		{name: "not json", body: "not-json", message: "Request body must be valid JSON"},
		{name: "prompt not a string", body: `{"prompt":42}`, message: "Request body must be valid JSON"},
		{name: "bad base64", body: "%%%", base64: true, message: "Request body must be valid JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{}
			h := mustHandler(t, svc)
			event := makeEvent(http.MethodPost, "/transform", "user-1", tc.body)
			event.IsBase64Encoded = tc.base64

			resp, err := h.Handle(context.Background(), event)
			require.NoError(t, err)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, tc.message, parseBody[errorResponse](t, resp.Body).Error)
			require.Zero(t, svc.transforms)
		})
	}
}

func TestHandle_MapsServiceErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "empty prompt", err: usecase.NewInvalidInput(usecase.ReasonEmptyPrompt), status: http.StatusBadRequest, message: "Prompt is required"},
		{name: "too long", err: usecase.NewInvalidInput(usecase.ReasonPromptTooLong), status: http.StatusBadRequest, message: "Prompt is too long"},
		{name: "unknown reason", err: usecase.NewInvalidInput("something_new"), status: http.StatusBadRequest, message: "Bad Request"},
		{name: "model failure", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: usecase.ReasonModelError, Err: errors.New("AccessDeniedException: arn:aws:iam::123")}, status: http.StatusInternalServerError, message: "Internal server error"},
		{name: "store failure", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: usecase.ReasonHistoryWriteError}, status: http.StatusInternalServerError, message: "Internal server error"},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, message: "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := mustHandler(t, &stubService{transformErr: tc.err})
			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "user-1", `{"prompt":"x"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.message, parseBody[errorResponse](t, resp.Body).Error)
		})
	}
}

func TestHandle_LogsFailureCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want []string
	}{
		{name: "untyped error", err: errors.New("boom"), want: []string{`"level":"ERROR"`, `"code":"INTERNAL_ERROR"`, `"reason":"unexpected_error"`}},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: usecase.ReasonModelError}, want: []string{`"level":"ERROR"`, `"code":"UPSTREAM_ERROR"`}},
		{name: "validation", err: usecase.NewInvalidInput(usecase.ReasonEmptyPrompt), want: []string{`"level":"WARN"`, `"reason":"empty_prompt"`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := mustHandler(t, &stubService{transformErr: tc.err}, WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))
			event := makeEvent(http.MethodPost, "/transform", "user-1", `{"prompt":"x"}`)
			event.Headers["X-Correlation-Id"] = "corr-log"

			_, err := h.Handle(context.Background(), event)
			require.NoError(t, err)
			for _, w := range tc.want {
				require.Contains(t, buf.String(), w)
			}
			require.Contains(t, buf.String(), `"correlation_id":"corr-log"`)
		})
	}
}

func TestHandle_UnauthenticatedIs401ForEveryMethod(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPut} {
		t.Run(method, func(t *testing.T) {
			svc := &stubService{}
			h := mustHandler(t, svc)
			resp, err := h.Handle(context.Background(), makeEvent(method, "/transform", "", `{"prompt":"x"}`))
			require.NoError(t, err)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			require.Equal(t, "Unauthorized", parseBody[errorResponse](t, resp.Body).Error)
			require.Zero(t, svc.transforms)
			require.Zero(t, svc.histories)
		})
	}
}

func TestHandle_BlankClaimIsUnauthorized(t *testing.T) {
	h := mustHandler(t, &stubService{})
	event := makeEvent(http.MethodGet, "/history", "", "")
	event.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
		JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{Claims: map[string]string{"sub": "  "}},
	}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandle_LambdaAuthorizerContextAndCustomClaim(t *testing.T) {
	svc := &stubService{}
	h := mustHandler(t, svc, WithOwnerClaim("username"))
	event := makeEvent(http.MethodGet, "/history", "", "")
	event.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
		Lambda: map[string]interface{}{"username": "carol"},
	}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "carol", svc.historyIn.Owner)
}

func TestHandle_UnsupportedMethodIs405WithoutSideEffects(t *testing.T) {
	for _, method := range []string{http.MethodDelete, http.MethodPut, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			svc := &stubService{}
			h := mustHandler(t, svc)
			resp, err := h.Handle(context.Background(), makeEvent(method, "/transform", "user-1", `{"prompt":"x"}`))
			require.NoError(t, err)
			require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			require.Equal(t, "Method not allowed", parseBody[errorResponse](t, resp.Body).Error)
			require.Zero(t, svc.transforms)
			require.Zero(t, svc.histories)
		})
	}
}

func TestHandle_HistoryRendersAttributeTypedItems(t *testing.T) {
	svc := &stubService{historyOut: usecase.HistoryOutput{
		Records: []domain.TransformationRecord{{
			Owner: "user-1", CreatedAt: "2026-03-01T10:00:00.000Z", RequestID: "1", ModelID: "m",
			Prompt: "p", Response: "r", LatencyMs: 12, Status: "SUCCESS", Mode: "summarize",
		}},
		NextCursor: "next-page",
	}}
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/history", "user-1", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "next-page", resp.Headers["X-Next-Cursor"])
	require.JSONEq(t, `[{
		"userId":{"S":"user-1"},
		"createdAt":{"S":"2026-03-01T10:00:00.000Z"},
		"requestId":{"S":"1"},
		"modelId":{"S":"m"},
		"prompt":{"S":"p"},
		"response":{"S":"r"},
		"latencyMs":{"N":"12"},
		"status":{"S":"SUCCESS"},
		"mode":{"S":"summarize"}
	}]`, resp.Body)
}

func TestHandle_HistoryEmptyIsArray(t *testing.T) {
	h := mustHandler(t, &stubService{historyOut: usecase.HistoryOutput{}})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/history", "user-1", ""))
	require.NoError(t, err)
	require.Equal(t, "[]", resp.Body)
	require.NotContains(t, resp.Headers, "X-Next-Cursor")
}

func TestHandle_HistoryPaging(t *testing.T) {
	svc := &stubService{}
	h := mustHandler(t, svc)
	event := makeEvent(http.MethodGet, "/history", "user-1", "")
	event.QueryStringParameters = map[string]string{"limit": "25", "cursor": "abc"}

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.HistoryInput{Owner: "user-1", Limit: 25, Cursor: "abc"}, svc.historyIn)
}

func TestHandle_HistoryInvalidLimit(t *testing.T) {
	for _, limit := range []string{"0", "-3", "ten"} {
		svc := &stubService{}
		h := mustHandler(t, svc)
		event := makeEvent(http.MethodGet, "/history", "user-1", "")
		event.QueryStringParameters = map[string]string{"limit": limit}

		resp, err := h.Handle(context.Background(), event)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
		require.Zero(t, svc.histories)
	}
}

func TestHandle_HistoryStoreFailure(t *testing.T) {
	h := mustHandler(t, &stubService{historyErr: &usecase.Error{Code: usecase.ErrorUpstream, Reason: usecase.ReasonHistoryReadError}})
	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/history", "user-1", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "Internal server error", parseBody[errorResponse](t, resp.Body).Error)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h := mustHandler(t, &stubService{})
	event := makeEvent(http.MethodPost, "/transform", "user-1", `{"prompt":"x"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}

// ---------------------------------------------------------------------------
// End to end through the real orchestrator
// ---------------------------------------------------------------------------

type fixedInvoker struct {
	text  string
	err   error
	calls int
}

func (f *fixedInvoker) Invoke(_ context.Context, _ domain.InvocationRequest) (domain.Completion, error) {
	f.calls++
	return domain.Completion{Text: f.text}, f.err
}

type sliceStore struct {
	records []domain.TransformationRecord
}

func (s *sliceStore) PutRecord(_ context.Context, rec domain.TransformationRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func (s *sliceStore) QueryByOwner(_ context.Context, owner string, _ domain.PageRequest) (domain.HistoryPage, error) {
	var out []domain.TransformationRecord
	for _, r := range s.records {
		if r.Owner == owner {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return domain.HistoryPage{Records: out}, nil
}

type historyItem map[string]map[string]string

func TestEndToEnd_TransformThenHistory(t *testing.T) {
	inv := &fixedInvoker{text: "A fox moves quickly."}
	store := &sliceStore{}
	svc, err := usecase.NewTransformService(inv, store, usecase.Config{ModelID: "amazon.nova-lite-v1:0"})
	require.NoError(t, err)
	h := mustHandler(t, svc)
	ctx := context.Background()

	prompt := "Summarize the following text clearly and concisely:\n\nThe quick brown fox..."
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	require.NoError(t, err)

	resp, err := h.Handle(ctx, makeEvent(http.MethodPost, "/transform", "alice", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := parseBody[transformResponse](t, resp.Body)
	require.Equal(t, "A fox moves quickly.", out.Output)

	require.Len(t, store.records, 1)
	require.Equal(t, prompt, store.records[0].Prompt)
	require.Equal(t, out.Output, store.records[0].Response)
	require.Equal(t, out.LatencyMs, store.records[0].LatencyMs)
	require.Equal(t, out.RequestID, store.records[0].RequestID)

	// A second owner's records must not show up for alice.
	_, err = h.Handle(ctx, makeEvent(http.MethodPost, "/transform", "bob", `{"prompt":"bob only"}`))
	require.NoError(t, err)

	resp, err = h.Handle(ctx, makeEvent(http.MethodGet, "/history", "alice", ""))
	require.NoError(t, err)
	items := parseBody[[]historyItem](t, resp.Body)
	require.Len(t, items, 1)
	require.Equal(t, prompt, items[0]["prompt"]["S"])
	require.Equal(t, "alice", items[0]["userId"]["S"])
}

func TestEndToEnd_LongArticleIsAccepted(t *testing.T) {
	inv := &fixedInvoker{text: "summary"}
	store := &sliceStore{}
	svc, err := usecase.NewTransformService(inv, store, usecase.Config{ModelID: "m"})
	require.NoError(t, err)
	h := mustHandler(t, svc)

	prompt := "Summarize the following text clearly and concisely:\n\n" + strings.Repeat("Lorem ipsum dolor sit amet. ", 450)
	body, err := json.Marshal(map[string]string{"prompt": prompt})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "alice", string(body)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
	require.Equal(t, 1, inv.calls)
	require.Len(t, store.records, 1)
	require.Equal(t, prompt, store.records[0].Prompt)
}

func TestEndToEnd_EmptyPromptPersistsNothing(t *testing.T) {
	inv := &fixedInvoker{text: "unused"}
	store := &sliceStore{}
	svc, err := usecase.NewTransformService(inv, store, usecase.Config{ModelID: "m"})
	require.NoError(t, err)
	h := mustHandler(t, svc)

	for _, body := range []string{`{}`, `{"prompt":""}`, `null`} {
		resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "alice", body))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "body=%s", body)
	}
	require.Zero(t, inv.calls)
	require.Empty(t, store.records)
}

func TestEndToEnd_ModelFailurePersistsNothing(t *testing.T) {
	inv := &fixedInvoker{err: errors.New("ModelTimeoutException")}
	store := &sliceStore{}
	svc, err := usecase.NewTransformService(inv, store, usecase.Config{ModelID: "m"})
	require.NoError(t, err)
	h := mustHandler(t, svc)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/transform", "alice", `{"prompt":"x"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.NotContains(t, resp.Body, "ModelTimeoutException")
	require.Empty(t, store.records)
}
