package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/moltiarena/core/internal/domain"
)

// ArenaInput is one agent's per-arena block for a multi-arena planner call
// (spec.md §4.5 step 5: "an ordered list of per-arena market+portfolio
// blocks").
type ArenaInput struct {
	Arena     domain.Arena
	Portfolio domain.Portfolio
	Snapshot  domain.MarketSnapshot
}

// multiDecisionSchema wraps N decisionSchema entries so the model returns
// exactly one array, in input order, for all of an agent's arenas in a
// single call.
type multiDecisionSchema struct {
	Decisions []decisionSchema `json:"decisions"`
}

// modelErrorReason is the canonical fallback reason spec.md §4.5 step 5
// requires when the model's response can't be trusted: "any mismatch or
// parse failure produces N HOLD-with-reason=model_error decisions."
const modelErrorReason = "model_error"

// BuildMultiPrompt renders the system/user messages for one agent across
// all of its arenas in one call, generalizing BuildPrompt's single-arena
// framing to an ordered list of arena blocks.
func BuildMultiPrompt(agent domain.Agent, tick int64, arenas []ArenaInput) (system, user string) {
	system = "You are an autonomous trading agent. For each market listed below, decide BUY, SELL, or HOLD. " +
		"Respect the agent's stated goal, style, and constraints. " +
		"Prefer HOLD when signals are weak or conflicting. " +
		"Respond with JSON only: {\"decisions\":[{\"action\":...,\"size_pct\":...,\"confidence\":...,\"reason\":...}, ...]} " +
		"in the same order as the markets are listed, with exactly one decision per market."

	var b strings.Builder
	fmt.Fprintf(&b, "agent:\n%s\n\n", formatAgent(agent, tick))
	for i, a := range arenas {
		fmt.Fprintf(&b, "market[%d] (arena=%d):\n%s\n\nportfolio[%d]:\n%s\n\n",
			i, a.Arena.ID, formatSnapshot(a.Snapshot), i, formatPortfolio(a.Portfolio, a.Snapshot.Price))
	}
	user = b.String()
	return system, user
}

// DecideTrades runs one structured-output call covering every arena in
// arenas and returns exactly len(arenas) decisions in input order. Any
// model failure, empty response, unparseable content, or decision-count
// mismatch degrades to len(arenas) HOLD decisions reasoned "model_error"
// rather than propagating an error, per spec.md §4.5 step 5.
func (c *Client) DecideTrades(ctx context.Context, agent domain.Agent, tick int64, arenas []ArenaInput) []domain.Decision {
	if len(arenas) == 0 {
		return nil
	}

	fallback := func() []domain.Decision {
		out := make([]domain.Decision, len(arenas))
		for i := range out {
			out[i] = domain.Decision{Action: domain.ActionHold, Reason: modelErrorReason}
		}
		return out
	}

	system, user := BuildMultiPrompt(agent, tick, arenas)

	schema, err := GenerateSchema(multiDecisionSchema{})
	if err != nil {
		logx.WithContext(ctx).Errorf("planner: build multi schema failed agent=%d err=%v", agent.ID, err)
		return fallback()
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
					Name:   "trade_decisions",
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
		logx.WithContext(ctx).Errorf("planner: multi model call failed agent=%d tick=%d err=%v", agent.ID, tick, err)
		return fallback()
	}
	if len(completion.Choices) == 0 {
		logx.WithContext(ctx).Errorf("planner: multi model call returned no choices agent=%d tick=%d", agent.ID, tick)
		return fallback()
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	var parsed multiDecisionSchema
	if err := DecodeJSONObject(content, &parsed); err != nil {
		logx.WithContext(ctx).Errorf("planner: multi unparseable response agent=%d tick=%d err=%v", agent.ID, tick, err)
		return fallback()
	}
	if len(parsed.Decisions) != len(arenas) {
		logx.WithContext(ctx).Errorf("planner: multi decision count mismatch agent=%d tick=%d want=%d got=%d",
			agent.ID, tick, len(arenas), len(parsed.Decisions))
		return fallback()
	}

	out := make([]domain.Decision, len(parsed.Decisions))
	for i, d := range parsed.Decisions {
		out[i] = domain.Decision{
			Action:     domain.ParseAction(d.Action),
			SizePct:    d.SizePct,
			Confidence: d.Confidence,
			Reason:     d.Reason,
		}
	}
	logx.WithContext(ctx).Infof("planner: multi decisions agent=%d tick=%d count=%d duration_ms=%d",
		agent.ID, tick, len(out), time.Since(start).Milliseconds())
	return out
}
