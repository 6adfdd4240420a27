// Package bedrock invokes Amazon Bedrock models that speak the Nova
// messages format through the InvokeModel API.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"content-transformer/internal/domain"
)

const jsonContentType = "application/json"

// runtimeAPI is the minimal Bedrock runtime interface required by Client.
// *bedrockruntime.Client satisfies it.
type runtimeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type contentBlock struct {
	Text string `json:"text"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type inferenceConfig struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"topP"`
}

type invokeRequest struct {
	Messages        []message       `json:"messages"`
	InferenceConfig inferenceConfig `json:"inferenceConfig"`
}

type invokeResponse struct {
	Output struct {
		Message message `json:"message"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
	} `json:"usage"`
}

// Client sends single-shot InvokeModel calls. It is created once per process
// and shared by all requests.
type Client struct {
	api runtimeAPI
}

func New(api runtimeAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Invoke calls the model once and returns the text of the first content
// block of the output message.
func (c *Client) Invoke(ctx context.Context, req domain.InvocationRequest) (domain.Completion, error) {
	if strings.TrimSpace(req.ModelID) == "" {
		return domain.Completion{}, errors.New("bedrock: model id must not be empty")
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return domain.Completion{}, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.ModelID),
		ContentType: aws.String(jsonContentType),
		Accept:      aws.String(jsonContentType),
		Body:        body,
	})
	if err != nil {
		return domain.Completion{}, fmt.Errorf("bedrock: invoke model %q: %w", req.ModelID, err)
	}
	if out == nil || len(out.Body) == 0 {
		return domain.Completion{}, errors.New("bedrock: empty response body")
	}

	var payload invokeResponse
	if err := json.Unmarshal(out.Body, &payload); err != nil {
		return domain.Completion{}, fmt.Errorf("bedrock: decode response: %w", err)
	}
	if len(payload.Output.Message.Content) == 0 {
		return domain.Completion{}, errors.New("bedrock: response has no message content")
	}

	return domain.Completion{
		Text:         payload.Output.Message.Content[0].Text,
		InputTokens:  payload.Usage.InputTokens,
		OutputTokens: payload.Usage.OutputTokens,
	}, nil
}

func buildRequest(req domain.InvocationRequest) invokeRequest {
	msgs := make([]message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, message{
			Role:    m.Role,
			Content: []contentBlock{{Text: m.Content}},
		})
	}
	return invokeRequest{
		Messages: msgs,
		InferenceConfig: inferenceConfig{
			MaxTokens:   req.Params.MaxTokens,
			Temperature: req.Params.Temperature,
			TopP:        req.Params.TopP,
		},
	}
}
