package domain

// ChatMessage is the provider-agnostic chat message shape used by the
// orchestrator and model integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the sampling settings sent with every invocation.
// They are deployment constants and never come from the caller.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// InvocationRequest is a single model call.
type InvocationRequest struct {
	ModelID  string
	Messages []ChatMessage
	Params   GenerationParams
}

// Completion is the generated text extracted from a model response.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
