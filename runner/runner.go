package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/browsermesh/controller"
	"github.com/hupe1980/browsermesh/logging"
	"github.com/hupe1980/browsermesh/planner"
	"github.com/hupe1980/browsermesh/protocol"
)

// Result is the aggregate outcome of a plan run.
type Result struct {
	OK         bool                `json:"ok"`
	Results    []protocol.Envelope `json:"results,omitempty"`
	FailedStep *planner.Command    `json:"failed_step,omitempty"`
	Resp       protocol.Envelope   `json:"resp,omitempty"`
	Error      string              `json:"error,omitempty"`
	Hint       string              `json:"hint,omitempty"`
}

// Options configure a Runner.
type Options struct {
	// StepTimeout bounds each individual command round trip.
	StepTimeout time.Duration
	// ReadyTimeout bounds the initial adapter readiness wait.
	ReadyTimeout time.Duration
	// PollInterval is the pause between readiness status polls.
	PollInterval time.Duration
	// FollowLinks opens the first href returned by a query step in a new
	// tab automatically.
	FollowLinks bool
	// LinkBase resolves relative hrefs before following them.
	LinkBase string
	// Logger receives per-step progress events.
	Logger logging.Logger
}

// Runner executes plans over a connected controller client.
type Runner struct {
	client *controller.Client
	opts   Options
	logger logging.Logger
}

// New constructs a Runner with optional overrides.
func New(client *controller.Client, optFns ...func(o *Options)) *Runner {
	opts := Options{
		StepTimeout:  30 * time.Second,
		ReadyTimeout: 45 * time.Second,
		PollInterval: 250 * time.Millisecond,
		FollowLinks:  true,
		LinkBase:     "https://huggingface.co",
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{client: client, opts: opts, logger: opts.Logger}
}

// Run executes the plan. It returns an error only for transport or
// correlation faults; failed steps and an absent adapter are reported
// through the Result.
func (r *Runner) Run(ctx context.Context, plan *planner.Plan) (*Result, error) {
	if err := r.client.AwaitAdapter(ctx, r.opts.ReadyTimeout, r.opts.PollInterval); err != nil {
		if errors.Is(err, controller.ErrAdapterNotConnected) {
			return &Result{
				OK:    false,
				Error: "adapter_not_connected",
				Hint:  "start the adapter (browser extension) and point it at the relay",
			}, nil
		}
		return nil, err
	}

	var results []protocol.Envelope
	followed := false
	for _, step := range plan.Steps {
		resp, err := r.runStep(ctx, step)
		if err != nil {
			return nil, err
		}
		if !resp.OK() {
			failed := step
			return &Result{OK: false, FailedStep: &failed, Resp: resp, Results: results}, nil
		}
		results = append(results, resp)

		if r.opts.FollowLinks && !followed {
			for _, extra := range r.followups(results) {
				followed = true
				resp, err := r.runStep(ctx, extra)
				if err != nil {
					return nil, err
				}
				results = append(results, resp)
			}
		}
	}
	return &Result{OK: true, Results: results}, nil
}

func (r *Runner) runStep(ctx context.Context, step planner.Command) (protocol.Envelope, error) {
	r.logger.Debug("running step", "id", step.ID, "cmd", step.Cmd)
	resp, err := r.client.SendAndAwait(ctx, step.Envelope(), r.opts.StepTimeout)
	if err != nil {
		return nil, fmt.Errorf("step %s (%s): %w", step.ID, step.Cmd, err)
	}
	return resp, nil
}

// followups inspects the latest result for a queried href and produces an
// openTab step for it. Relative hrefs are resolved against LinkBase.
func (r *Runner) followups(results []protocol.Envelope) []planner.Command {
	last := results[len(results)-1]
	if !last.OK() {
		return nil
	}
	data, _ := last["data"].(map[string]any)
	arr, _ := data["results"].([]any)
	if len(arr) == 0 {
		return nil
	}
	href, ok := arr[0].(string)
	if !ok || href == "" {
		return nil
	}
	// Only values shaped like links are followed; plain text results (e.g.
	// sender names) must not open tabs.
	if !strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
		return nil
	}

	target := href
	if strings.HasPrefix(href, "/") {
		base, err := url.Parse(r.opts.LinkBase)
		if err != nil {
			return nil
		}
		ref, err := url.Parse(href)
		if err != nil {
			return nil
		}
		target = base.ResolveReference(ref).String()
	}

	r.logger.Info("following queried href", "url", target)
	return []planner.Command{{
		ID:   "autotab",
		Cmd:  "openTab",
		Args: map[string]any{"url": target, "active": true},
	}}
}
