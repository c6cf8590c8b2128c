package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/medibot/internal/config"
	"github.com/wolfman30/medibot/internal/llm"
	"github.com/wolfman30/medibot/pkg/logging"
)

// BuildTiers returns the reply providers in call order. Providers without
// credentials are skipped; awsCfg may be nil when Bedrock is not configured.
func BuildTiers(cfg *appconfig.Config, awsCfg *aws.Config) []llm.Tier {
	if cfg == nil {
		return nil
	}
	var tiers []llm.Tier

	if token := strings.TrimSpace(cfg.HFAPIToken); token != "" {
		baseURL := cfg.HFBaseURL
		tiers = append(tiers, llm.Tier{
			Name: "huggingface",
			Client: llm.NewLazyClient(func() (llm.Client, error) {
				return llm.NewHuggingFaceClient(token, baseURL), nil
			}),
			Model:                cfg.HFModel,
			Timeout:              cfg.HFTimeout,
			GroundedConfidence:   0.85,
			UngroundedConfidence: 0.6,
			Reasoning:            fmt.Sprintf("Response generated using Hugging Face Inference API (model=%s).", cfg.HFModel),
		})
	}

	if key := strings.TrimSpace(cfg.OpenAIAPIKey); key != "" {
		baseURL := cfg.OpenAIBaseURL
		tiers = append(tiers, llm.Tier{
			Name: "openai",
			Client: llm.NewLazyClient(func() (llm.Client, error) {
				return llm.NewOpenAIClientFromKey(key, baseURL), nil
			}),
			Model:                cfg.OpenAIModel,
			Timeout:              cfg.LLMTimeout,
			GroundedConfidence:   0.8,
			UngroundedConfidence: 0.55,
			Reasoning:            fmt.Sprintf("Response generated using OpenAI (model=%s).", cfg.OpenAIModel),
		})
	}

	if key := strings.TrimSpace(cfg.GeminiAPIKey); key != "" {
		tiers = append(tiers, llm.Tier{
			Name: "gemini",
			Client: llm.NewLazyClient(func() (llm.Client, error) {
				client, err := llm.NewGeminiClient(context.Background(), key)
				if err != nil {
					return nil, err
				}
				return client, nil
			}),
			Model:                cfg.GeminiModel,
			Timeout:              cfg.LLMTimeout,
			GroundedConfidence:   0.8,
			UngroundedConfidence: 0.55,
			Reasoning:            fmt.Sprintf("Response generated using Gemini (model=%s).", cfg.GeminiModel),
		})
	}

	if model := strings.TrimSpace(cfg.BedrockModelID); model != "" && awsCfg != nil {
		tiers = append(tiers, llm.Tier{
			Name:                 "bedrock",
			Client:               llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg)),
			Model:                model,
			Timeout:              cfg.LLMTimeout,
			GroundedConfidence:   0.8,
			UngroundedConfidence: 0.55,
			Reasoning:            fmt.Sprintf("Response generated using Amazon Bedrock (model=%s).", model),
		})
	}
	return tiers
}

// BuildSynthesizer wires the provider cascade behind the reply synthesizer.
// With no tiers the synthesizer answers from its offline templates.
func BuildSynthesizer(cfg *appconfig.Config, awsCfg *aws.Config, observer llm.LatencyObserver, logger *logging.Logger) *llm.Synthesizer {
	if logger == nil {
		logger = logging.Default()
	}
	cascade := llm.NewCascade(BuildTiers(cfg, awsCfg), observer, logger)
	if names := cascade.Tiers(); len(names) > 0 {
		logger.Info("reply cascade configured", "tiers", strings.Join(names, ","))
	} else {
		logger.Warn("no reply providers configured; using offline templates")
	}

	budget := 0
	if cfg != nil {
		budget = cfg.ContextTokenBudget
	}
	return llm.NewSynthesizer(cascade, llm.NewTokenBudget(budget, logger), logger)
}
