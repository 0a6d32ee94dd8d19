// Package planner implements the Model Gateway (spec.md §4.7): one
// structured-output call per agent per tick that turns a market snapshot
// and portfolio state into a proposed domain.Decision, adapted from the
// teacher's pkg/llm.Client.ChatStructured onto the openai-go SDK.
package planner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/zeromicro/go-zero/core/logx"
	"gopkg.in/yaml.v3"

	"github.com/moltiarena/core/internal/domain"
	"github.com/moltiarena/core/pkg/retry"
)

// Config holds runtime settings for the Model Gateway's client.
type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	MaxRetries   int
	Temperature  *float64
}

// Client calls the configured model and decodes its response into a
// domain.Decision.
type Client struct {
	cfg          Config
	openaiClient *openai.Client
	retry        *retry.Handler
}

// NewClient constructs a Client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("planner: api key required")
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		return nil, errors.New("planner: default model required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	oaClient := openai.NewClient(opts...)

	return &Client{
		cfg:          cfg,
		openaiClient: &oaClient,
		retry:        retry.New(retry.Config{MaxRetries: cfg.MaxRetries}),
	}, nil
}

// rawConfig mirrors Config's on-disk YAML shape, keeping APIKey and
// Timeout off the wire the same way the teacher's pkg/llm/config.go keeps
// its own api_key and timeout fields out of the decoded struct tags.
type rawConfig struct {
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	DefaultModel string  `yaml:"default_model"`
	Timeout      string  `yaml:"timeout"`
	MaxRetries   int     `yaml:"max_retries"`
	Temperature  *float64 `yaml:"temperature"`
}

// LoadConfig reads a YAML planner config file, resolving the API key from
// the environment variable it names rather than storing the secret on
// disk, grounded on pkg/llm/config.go's LoadConfig/LoadConfigFromReader
// split.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open planner config: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse planner config: %w", err)
	}

	cfg := &Config{
		BaseURL:      raw.BaseURL,
		DefaultModel: raw.DefaultModel,
		MaxRetries:   raw.MaxRetries,
		Temperature:  raw.Temperature,
	}
	if raw.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(raw.APIKeyEnv)
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse planner config timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

// decisionSchema mirrors domain.Decision's shape in a planner-local struct
// so that Reason carries a description hint for the model, and Action is
// constrained to the three accepted strings up front.
type decisionSchema struct {
	Action     string  `json:"action" description:"one of BUY, SELL, HOLD"`
	SizePct    float64 `json:"size_pct" description:"fraction (0 to 1) of available balance to trade; 0 for HOLD"`
	Confidence float64 `json:"confidence" description:"model's confidence in this decision, 0 to 1"`
	Reason     string  `json:"reason" description:"one-sentence rationale"`
}

// DecideTrade runs one structured-output call for a single agent/arena/tick
// and returns the proposed (unguarded) decision.
func (c *Client) DecideTrade(ctx context.Context, in Input) (domain.Decision, error) {
	system, user := BuildPrompt(in)

	schema, err := GenerateSchema(decisionSchema{})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("planner: build schema: %w", err)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.DefaultModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "trade_decision",
					Schema: schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if c.cfg.Temperature != nil {
		params.Temperature = openai.Float(*c.cfg.Temperature)
	}

	start := time.Now()
	var completion *openai.ChatCompletion
	err = c.retry.Do(ctx, func() error {
		resp, callErr := c.openaiClient.Chat.Completions.New(ctx, params)
		if callErr != nil {
			return callErr
		}
		completion = resp
		return nil
	})
	if err != nil {
		logx.WithContext(ctx).Errorf("planner: model call failed agent=%d arena=%d tick=%d err=%v",
			in.Agent.ID, in.Arena.ID, in.Tick, err)
		return domain.Decision{}, fmt.Errorf("planner: model call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return domain.Decision{}, errors.New("planner: empty model response")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	var parsed decisionSchema
	if err := DecodeJSONObject(content, &parsed); err != nil {
		logx.WithContext(ctx).Errorf("planner: unparseable response agent=%d arena=%d tick=%d err=%v",
			in.Agent.ID, in.Arena.ID, in.Tick, err)
		return domain.Decision{}, fmt.Errorf("planner: decode response: %w", err)
	}

	logx.WithContext(ctx).Infof("planner: decision agent=%d arena=%d tick=%d action=%s size_pct=%.4f duration_ms=%d",
		in.Agent.ID, in.Arena.ID, in.Tick, parsed.Action, parsed.SizePct, time.Since(start).Milliseconds())

	return domain.Decision{
		Action:     domain.ParseAction(parsed.Action),
		SizePct:    parsed.SizePct,
		Confidence: parsed.Confidence,
		Reason:     parsed.Reason,
	}, nil
}
