package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"

	"content-transformer/internal/domain"
	"content-transformer/internal/usecase"
)

const (
	headerContentType   = "Content-Type"
	headerCorrelationID = "X-Correlation-Id"
	headerNextCursor    = "X-Next-Cursor"
)

type errorResponse struct {
	Error string `json:"error"`
}

type transformResponse struct {
	RequestID string `json:"requestId"`
	Output    string `json:"output"`
	LatencyMs int64  `json:"latencyMs"`
}

var reasonMessages = map[string]string{
	usecase.ReasonMissingIdentity:   "Unauthorized",
	usecase.ReasonUnsupportedMethod: "Method not allowed",
	usecase.ReasonMissingBody:       "Missing request body",
	usecase.ReasonInvalidJSON:       "Request body must be valid JSON",
	usecase.ReasonEmptyPrompt:       "Prompt is required",
	usecase.ReasonPromptTooLong:     "Prompt is too long",
	usecase.ReasonInvalidMode:       "Unsupported mode",
	usecase.ReasonMissingLanguage:   "targetLanguage is required for translate",
	usecase.ReasonInvalidLimit:      "limit must be between 1 and 1000",
	usecase.ReasonInvalidCursor:     "Invalid cursor",
}

func statusForCode(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorUnauthorized:
		return http.StatusUnauthorized
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	case usecase.ErrorMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case usecase.ErrorUpstream, usecase.ErrorInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// classify maps any error to a status and a message safe to return. 5xx
// messages never carry upstream detail.
func classify(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, "Internal server error"
	}
	status := statusForCode(ucErr.Code)
	if status >= http.StatusInternalServerError {
		return status, "Internal server error"
	}
	if msg, ok := reasonMessages[ucErr.Reason]; ok {
		return status, msg
	}
	return status, http.StatusText(status)
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayV2HTTPResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		raw = []byte(`{"error":"Internal server error"}`)
	}
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			headerContentType:   "application/json",
			headerCorrelationID: correlationID,
		},
		Body: string(raw),
	}
}

func errorResponseFor(status int, message, correlationID string) events.APIGatewayV2HTTPResponse {
	return jsonResponse(status, correlationID, errorResponse{Error: message})
}

// historyItems renders records in the store's attribute-typed JSON form, the
// shape history consumers read (e.g. item.prompt.S).
func historyItems(records []domain.TransformationRecord) []map[string]events.DynamoDBAttributeValue {
	items := make([]map[string]events.DynamoDBAttributeValue, 0, len(records))
	for _, r := range records {
		item := map[string]events.DynamoDBAttributeValue{
			"userId":    events.NewStringAttribute(r.Owner),
			"createdAt": events.NewStringAttribute(r.CreatedAt),
			"requestId": events.NewStringAttribute(r.RequestID),
			"modelId":   events.NewStringAttribute(r.ModelID),
			"prompt":    events.NewStringAttribute(r.Prompt),
			"response":  events.NewStringAttribute(r.Response),
			"latencyMs": events.NewNumberAttribute(strconv.FormatInt(r.LatencyMs, 10)),
			"status":    events.NewStringAttribute(r.Status),
		}
		if r.Mode != "" {
			item["mode"] = events.NewStringAttribute(r.Mode)
		}
		if r.TargetLanguage != "" {
			item["targetLanguage"] = events.NewStringAttribute(r.TargetLanguage)
		}
		if r.TTL > 0 {
			item["ttl"] = events.NewNumberAttribute(strconv.FormatInt(r.TTL, 10))
		}
		items = append(items, item)
	}
	return items
}
