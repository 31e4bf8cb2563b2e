// Package browsermesh provides a high-level façade over the relay protocol
// stack: a planner turns a natural-language task into a command plan and a
// runner drives that plan through the relay to the connected browser
// adapter. Most applications interact with this package by:
//  1. Creating a BrowserMesh via New() (optionally overriding the relay URL,
//     planner or timeouts)
//  2. Running a task end to end with Run(), or splitting planning and
//     execution via Plan() and Execute()
//
// The façade delegates the wire work to the controller and runner packages
// while keeping setup ergonomics concise. The defaults (rule-based planner,
// local relay URL, NoOp logger) are safe for local development and tests;
// production setups typically supply an LLM-backed planner and a structured
// logger.
package browsermesh

import (
	"context"
	"time"

	"github.com/hupe1980/browsermesh/controller"
	"github.com/hupe1980/browsermesh/logging"
	"github.com/hupe1980/browsermesh/planner"
	"github.com/hupe1980/browsermesh/runner"
)

// DefaultRelayURL is where a locally started relay listens.
const DefaultRelayURL = "ws://127.0.0.1:8765"

// Options configures the BrowserMesh instance.
type Options struct {
	// RelayURL is the WebSocket address of the relay.
	RelayURL string
	// Planner turns tasks into plans (defaults to the rule-based planner).
	Planner planner.Planner
	// StepTimeout bounds each command round trip.
	StepTimeout time.Duration
	// ReadyTimeout bounds the adapter readiness wait before the first step.
	ReadyTimeout time.Duration
	// PollInterval is the pause between readiness status polls.
	PollInterval time.Duration
	// FollowLinks opens queried hrefs in a new tab automatically.
	FollowLinks bool
	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// BrowserMesh is the high-level façade aggregating planner, controller
// client and runner.
type BrowserMesh struct {
	opts Options
}

// New creates a new BrowserMesh instance with optional overrides.
func New(optFns ...func(o *Options)) *BrowserMesh {
	opts := Options{
		RelayURL:     DefaultRelayURL,
		Planner:      planner.NewRulePlanner(),
		StepTimeout:  30 * time.Second,
		ReadyTimeout: 45 * time.Second,
		PollInterval: 250 * time.Millisecond,
		FollowLinks:  true,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &BrowserMesh{opts: opts}
}

// Plan turns a natural-language task into a command plan without executing
// it.
func (m *BrowserMesh) Plan(ctx context.Context, task string) (*planner.Plan, error) {
	return m.opts.Planner.Plan(ctx, task)
}

// Execute connects to the relay as the controller, waits for the adapter
// and runs the plan. The connection lives for the duration of the run.
func (m *BrowserMesh) Execute(ctx context.Context, plan *planner.Plan) (*runner.Result, error) {
	client, err := controller.Dial(ctx, m.opts.RelayURL, func(o *controller.Options) {
		o.Logger = m.opts.Logger
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	run := runner.New(client, func(o *runner.Options) {
		o.StepTimeout = m.opts.StepTimeout
		o.ReadyTimeout = m.opts.ReadyTimeout
		o.PollInterval = m.opts.PollInterval
		o.FollowLinks = m.opts.FollowLinks
		o.Logger = m.opts.Logger
	})
	return run.Run(ctx, plan)
}

// Run is the end-to-end helper: plan the task, then execute the plan.
func (m *BrowserMesh) Run(ctx context.Context, task string) (*planner.Plan, *runner.Result, error) {
	plan, err := m.Plan(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	result, err := m.Execute(ctx, plan)
	if err != nil {
		return plan, nil, err
	}
	return plan, result, nil
}
