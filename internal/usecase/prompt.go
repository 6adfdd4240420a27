package usecase

import (
	"fmt"
	"strings"

	"content-transformer/internal/domain"
)

// Mode names a server-composed transformation. An empty mode means the prompt
// was already composed by the caller and is sent verbatim.
type Mode string

const (
	ModeNone      Mode = ""
	ModeSummarize Mode = "summarize"
	ModeRewrite   Mode = "rewrite"
	ModeTranslate Mode = "translate"
)

func parseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeNone:
		return ModeNone, true
	case ModeSummarize:
		return ModeSummarize, true
	case ModeRewrite:
		return ModeRewrite, true
	case ModeTranslate:
		return ModeTranslate, true
	}
	return ModeNone, false
}

// composePrompt prefixes the instruction for mode onto text. The prefixes match
// what the web client has always sent, so records stay comparable whichever
// side composed them.
func composePrompt(mode Mode, targetLanguage, text string) string {
	switch mode {
	case ModeSummarize:
		return "Summarize the following text clearly and concisely:\n\n" + text
	case ModeRewrite:
		return "Rewrite the following text in a more professional and polished tone:\n\n" + text
	case ModeTranslate:
		return fmt.Sprintf("Translate the following text into %s:\n\n%s", targetLanguage, text)
	default:
		return text
	}
}

func buildInvocation(modelID string, params domain.GenerationParams, prompt string) domain.InvocationRequest {
	return domain.InvocationRequest{
		ModelID: modelID,
		Messages: []domain.ChatMessage{
			{Role: "user", Content: prompt},
		},
		Params: params,
	}
}
