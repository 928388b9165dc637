// Package anthropic wraps the Anthropic Messages API behind a small interface
// so extraction code can be tested without the network.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// StopMaxTokens is the stop reason reported when the answer hit MaxTokens.
const StopMaxTokens = "max_tokens"

// Client sends single-turn prompts.
type Client interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Prompt is one system instruction plus one user turn.
type Prompt struct {
	Model       string
	System      string
	User        string
	MaxTokens   int64
	Temperature *float64
}

// Completion is the text answer to a Prompt.
type Completion struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      Usage
}

// Truncated reports whether the answer was cut off by the token limit.
func (c *Completion) Truncated() bool {
	return c.StopReason == StopMaxTokens
}

// Usage is the token count billed for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

type rate struct {
	input, output float64 // USD per million tokens
}

var modelRates = map[string]rate{
	"claude-haiku-4-5-20251001":  {input: 1.00, output: 5.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-5-20251101":   {input: 5.00, output: 25.00},
}

// Cost estimates the USD cost of u on model. Unknown models cost 0.
func (u Usage) Cost(model string) float64 {
	r, ok := modelRates[model]
	if !ok {
		return 0
	}
	return float64(u.InputTokens)/1e6*r.input + float64(u.OutputTokens)/1e6*r.output
}

// Log records token usage and estimated cost for one document.
func (u Usage) Log(model, document string) {
	zap.L().Info("anthropic: usage",
		zap.String("model", model),
		zap.String("document", document),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client backed by the SDK. SDK retries are off; a
// failed call is reported to the caller once. opts are applied after the
// defaults, so they may override them.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(all...)}
}

func (c *sdkClient) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.Model),
		MaxTokens: p.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(p.User))},
	}
	if p.System != "" {
		params.System = []sdk.TextBlockParam{{Text: p.System}}
	}
	if p.Temperature != nil {
		params.Temperature = sdk.Float(*p.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}

	return &Completion{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
		},
	}, nil
}
