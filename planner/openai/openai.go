// Package openai provides a Planner implementation using the OpenAI Chat
// Completions API. It sends the shared few-shot planning prompt and
// normalizes the model output into a validated plan.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/browsermesh/planner"
)

// Options configure the OpenAI planner. Fields mirror a minimal subset of
// Chat Completion parameters; extend via functional options without breaking
// callers.
type Options struct {
	Model       string
	Temperature float64
}

// Planner plans tasks through the OpenAI Chat Completions API.
type Planner struct {
	client *openai.Client
	opts   Options
}

var _ planner.Planner = (*Planner)(nil)

// NewPlanner creates a new OpenAI planner using the official client, which
// reads OPENAI_API_KEY from the environment.
func NewPlanner(optFns ...func(o *Options)) *Planner {
	client := openai.NewClient()
	return NewPlannerFromClient(&client, optFns...)
}

// NewPlannerFromClient creates a new OpenAI planner from an existing client.
func NewPlannerFromClient(client *openai.Client, optFns ...func(o *Options)) *Planner {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.1,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Planner{client: client, opts: opts}
}

// Plan implements planner.Planner. Model output that cannot be parsed
// degrades to a single-ping plan rather than failing the run.
func (p *Planner) Plan(ctx context.Context, task string) (*planner.Plan, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       p.opts.Model,
		Temperature: openai.Float(p.opts.Temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(planner.SystemPrompt),
			openai.UserMessage(planner.BuildPrompt(task)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return planner.NormalizeModelOutput(resp.Choices[0].Message.Content), nil
}
