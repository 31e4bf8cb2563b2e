// Package anthropic provides a Planner implementation using the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/browsermesh/planner"
)

// Options configures the Anthropic planner (model id, temperature, max
// tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Planner plans tasks through the Anthropic Messages API.
type Planner struct {
	client *anthropic.Client
	opts   Options
}

var _ planner.Planner = (*Planner)(nil)

// NewPlanner creates a new Anthropic planner using the official client.
func NewPlanner(optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   1500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Planner{client: &client, opts: opts}
}

// NewPlannerFromClient creates a new Anthropic planner from an existing
// client.
func NewPlannerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   1500,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{client: client, opts: opts}
}

// Plan implements planner.Planner. Model output that cannot be parsed
// degrades to a single-ping plan rather than failing the run.
func (p *Planner) Plan(ctx context.Context, task string) (*planner.Plan, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: planner.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(planner.BuildPrompt(task))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.AsText().Text)
		}
	}
	return planner.NormalizeModelOutput(out.String()), nil
}
