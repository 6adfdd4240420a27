// Package app assembles the transform service from configuration. Both
// binaries under cmd/ share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsbedrock "github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"content-transformer/internal/config"
	"content-transformer/internal/integrations/bedrock"
	"content-transformer/internal/integrations/openai"
	"content-transformer/internal/integrations/paramstore"
	"content-transformer/internal/usecase"
)

// modelIDParam overrides MODEL_ID when present under PARAM_PREFIX.
const modelIDParam = "/config/model_id"

type parameterLookup interface {
	Lookup(ctx context.Context, name string) (string, bool, error)
}

// NewService builds the model invoker selected by cfg.Provider and wires it
// to store.
func NewService(ctx context.Context, cfg config.Config, awsCfg aws.Config, store usecase.HistoryStore, logger *slog.Logger) (*usecase.TransformService, error) {
	var params *paramstore.Client
	if cfg.ParamPrefix != "" {
		var err error
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: create paramstore client: %w", err)
		}
	}

	invoker, err := newInvoker(cfg, awsCfg, params)
	if err != nil {
		return nil, err
	}

	modelID := cfg.ModelID
	if params != nil {
		modelID, err = resolveModelID(ctx, params, cfg.ParamPrefix, cfg.ModelID)
		if err != nil {
			return nil, err
		}
	}
	logger.Info("model configured", "provider", cfg.Provider, "model_id", modelID)

	return usecase.NewTransformService(invoker, store, usecase.Config{
		ModelID:      modelID,
		Params:       cfg.Params,
		MaxPromptLen: cfg.MaxPromptLen,
	})
}

func newInvoker(cfg config.Config, awsCfg aws.Config, params *paramstore.Client) (usecase.ModelInvoker, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if params == nil {
			return nil, fmt.Errorf("app: openai provider needs PARAM_PREFIX")
		}
		var opts []openai.Option
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		c, err := openai.NewClient(params, cfg.ParamPrefix, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: create openai client: %w", err)
		}
		return c, nil
	default:
		c, err := bedrock.New(awsbedrock.NewFromConfig(awsCfg))
		if err != nil {
			return nil, fmt.Errorf("app: create bedrock client: %w", err)
		}
		return c, nil
	}
}

func resolveModelID(ctx context.Context, params parameterLookup, prefix, def string) (string, error) {
	name := strings.TrimRight(prefix, "/") + modelIDParam
	v, found, err := params.Lookup(ctx, name)
	if err != nil {
		return "", fmt.Errorf("app: read %s: %w", name, err)
	}
	if !found || strings.TrimSpace(v) == "" {
		return def, nil
	}
	return strings.TrimSpace(v), nil
}
