package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"content-transformer/internal/domain"
	"content-transformer/internal/metrics"
)

const (
	defaultMaxTokens    = 2000
	defaultTemperature  = 0.7
	defaultTopP         = 0.9
	maxHistoryLimit     = 1000
)

type ModelInvoker interface {
	Invoke(ctx context.Context, req domain.InvocationRequest) (domain.Completion, error)
}

type HistoryStore interface {
	PutRecord(ctx context.Context, rec domain.TransformationRecord) error
	QueryByOwner(ctx context.Context, owner string, page domain.PageRequest) (domain.HistoryPage, error)
}

// Config holds the deployment constants of the service. A negative
// temperature selects the default; zero is a valid setting. MaxPromptLen <= 0
// means prompts are not length checked.
type Config struct {
	ModelID      string
	Params       domain.GenerationParams
	MaxPromptLen int
}

// TransformService runs both the history read path and the transform write
// path. It holds no per-request state and is safe for concurrent use.
type TransformService struct {
	invoker      ModelInvoker
	store        HistoryStore
	modelID      string
	params       domain.GenerationParams
	maxPromptLen int
	now          func() time.Time
}

type TransformInput struct {
	Owner          string
	Prompt         string
	Mode           string
	TargetLanguage string
}

type TransformOutput struct {
	RequestID string
	Output    string
	LatencyMs int64
}

type HistoryInput struct {
	Owner  string
	Limit  int
	Cursor string
}

type HistoryOutput struct {
	Records    []domain.TransformationRecord
	NextCursor string
}

func NewTransformService(invoker ModelInvoker, store HistoryStore, cfg Config) (*TransformService, error) {
	if invoker == nil {
		return nil, errors.New("usecase: model invoker must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		return nil, errors.New("usecase: model id must not be empty")
	}
	params := cfg.Params
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaultMaxTokens
	}
	if params.Temperature < 0 {
		params.Temperature = defaultTemperature
	}
	if params.TopP <= 0 || params.TopP > 1 {
		params.TopP = defaultTopP
	}
	maxPromptLen := cfg.MaxPromptLen
	if maxPromptLen < 0 {
		maxPromptLen = 0
	}
	return &TransformService{
		invoker:      invoker,
		store:        store,
		modelID:      modelID,
		params:       params,
		maxPromptLen: maxPromptLen,
		now:          time.Now,
	}, nil
}

// Transform validates the prompt, invokes the model once and persists the
// result. No record is written unless the model call succeeds.
func (s *TransformService) Transform(ctx context.Context, in TransformInput) (TransformOutput, error) {
	if strings.TrimSpace(in.Owner) == "" {
		return TransformOutput{}, newError(ErrorUnauthorized, ReasonMissingIdentity, nil)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return TransformOutput{}, newError(ErrorInvalidInput, ReasonEmptyPrompt, nil)
	}
	mode, ok := parseMode(in.Mode)
	if !ok {
		return TransformOutput{}, newError(ErrorInvalidInput, ReasonInvalidMode, nil)
	}
	language := strings.TrimSpace(in.TargetLanguage)
	if mode == ModeTranslate && language == "" {
		return TransformOutput{}, newError(ErrorInvalidInput, ReasonMissingLanguage, nil)
	}
	if mode != ModeTranslate {
		language = ""
	}

	prompt := composePrompt(mode, language, in.Prompt)
	if s.maxPromptLen > 0 && utf8.RuneCountInString(prompt) > s.maxPromptLen {
		return TransformOutput{}, newError(ErrorInvalidInput, ReasonPromptTooLong, nil)
	}

	start := s.now()
	requestID := strconv.FormatInt(start.UnixMilli(), 10)

	completion, err := s.invoker.Invoke(ctx, buildInvocation(s.modelID, s.params, prompt))
	elapsed := s.now().Sub(start)
	metrics.ObserveInvocation(s.modelID, elapsed, completion.InputTokens, completion.OutputTokens, err)
	if err != nil {
		return TransformOutput{}, newError(ErrorUpstream, ReasonModelError, err)
	}
	latencyMs := elapsed.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	rec := domain.TransformationRecord{
		Owner:          in.Owner,
		CreatedAt:      domain.FormatCreatedAt(s.now()),
		RequestID:      requestID,
		ModelID:        s.modelID,
		Prompt:         prompt,
		Response:       completion.Text,
		LatencyMs:      latencyMs,
		Status:         domain.StatusSuccess,
		Mode:           string(mode),
		TargetLanguage: language,
	}
	err = s.store.PutRecord(ctx, rec)
	metrics.ObserveHistory("put", err)
	if err != nil {
		return TransformOutput{}, newError(ErrorUpstream, ReasonHistoryWriteError, err)
	}

	return TransformOutput{
		RequestID: requestID,
		Output:    completion.Text,
		LatencyMs: latencyMs,
	}, nil
}

// History returns the owner's records newest first. A zero limit with no
// cursor returns the complete history.
func (s *TransformService) History(ctx context.Context, in HistoryInput) (HistoryOutput, error) {
	if strings.TrimSpace(in.Owner) == "" {
		return HistoryOutput{}, newError(ErrorUnauthorized, ReasonMissingIdentity, nil)
	}
	if in.Limit < 0 || in.Limit > maxHistoryLimit {
		return HistoryOutput{}, newError(ErrorInvalidInput, ReasonInvalidLimit, nil)
	}

	page, err := s.store.QueryByOwner(ctx, in.Owner, domain.PageRequest{Limit: in.Limit, Cursor: in.Cursor})
	metrics.ObserveHistory("query", err)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCursor) {
			return HistoryOutput{}, newError(ErrorInvalidInput, ReasonInvalidCursor, err)
		}
		return HistoryOutput{}, newError(ErrorUpstream, ReasonHistoryReadError, err)
	}
	records := page.Records
	if records == nil {
		records = []domain.TransformationRecord{}
	}
	return HistoryOutput{Records: records, NextCursor: page.NextCursor}, nil
}
