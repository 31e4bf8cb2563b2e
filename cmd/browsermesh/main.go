// Command browsermesh bundles the relay daemon and the task orchestrator.
//
//	browsermesh serve [-addr host:port] [-config config.toml]
//	browsermesh run [-provider rule|openai|anthropic] [-model name]
//	                [-relay ws://...] [-raw] [-silent] "task text"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/browsermesh"
	"github.com/hupe1980/browsermesh/logging"
	"github.com/hupe1980/browsermesh/planner"
	"github.com/hupe1980/browsermesh/planner/anthropic"
	"github.com/hupe1980/browsermesh/planner/openai"
	"github.com/hupe1980/browsermesh/relay"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runTask(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: browsermesh serve [flags]")
	fmt.Fprintln(os.Stderr, "       browsermesh run [flags] \"task\"")
}

func parseLevel(s string) logging.LogLevel {
	switch s {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (overrides config)")
	configPath := fs.String("config", "", "path to a TOML config file")
	_ = fs.Parse(args)

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			log.Fatalf("browsermesh serve: %v", err)
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := logging.NewSlogLogger(parseLevel(cfg.LogLevel), "text", false)
	srv := relay.New(func(o *relay.Options) {
		o.Addr = cfg.Addr
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("browsermesh serve: %v", err)
	}
}

func runTask(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	relayURL := fs.String("relay", "", "relay WebSocket URL (overrides config)")
	provider := fs.String("provider", "", "planner provider: rule, openai or anthropic")
	model := fs.String("model", "", "model name (e.g. gpt-4o-mini)")
	raw := fs.Bool("raw", false, "print only the raw JSON result")
	silent := fs.Bool("silent", false, "no output; just execute")
	configPath := fs.String("config", "", "path to a TOML config file")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "browsermesh run: exactly one task argument is required (quotes recommended)")
		os.Exit(2)
	}
	task := fs.Arg(0)

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			log.Fatalf("browsermesh run: %v", err)
		}
	}
	if *relayURL != "" {
		cfg.RelayURL = *relayURL
	}
	if *provider != "" {
		cfg.Provider = *provider
	}
	if *model != "" {
		cfg.Model = *model
	}

	p, err := buildPlanner(cfg)
	if err != nil {
		log.Fatalf("browsermesh run: %v", err)
	}

	var runLog *logging.RunLog
	if cfg.RunLogPath != "" {
		if runLog, err = logging.OpenRunLog(cfg.RunLogPath); err != nil {
			log.Fatalf("browsermesh run: %v", err)
		}
		defer func() { _ = runLog.Close() }()
	}

	mesh := browsermesh.New(func(o *browsermesh.Options) {
		o.RelayURL = cfg.RelayURL
		o.Planner = p
		o.StepTimeout = cfg.StepTimeout
		o.ReadyTimeout = cfg.ReadyTimeout
		o.PollInterval = cfg.PollInterval
		o.Logger = logging.NewSlogLogger(parseLevel(cfg.LogLevel), "text", false)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	plan, err := mesh.Plan(ctx, task)
	if err != nil {
		log.Fatalf("browsermesh run: plan: %v", err)
	}
	if runLog != nil {
		_ = runLog.Event("plan", map[string]any{"task": task, "steps": plan.Steps})
	}
	if !*silent && !*raw {
		printPlan(plan)
	}

	result, err := mesh.Execute(ctx, plan)
	if err != nil {
		log.Fatalf("browsermesh run: execute: %v", err)
	}
	if runLog != nil {
		_ = runLog.Event("result", map[string]any{"ok": result.OK, "error": result.Error})
	}

	if *silent {
		return
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("browsermesh run: marshal result: %v", err)
	}
	if *raw {
		fmt.Println(string(out))
		return
	}
	fmt.Printf("\nResult:\n%s\n", out)
}

// buildPlanner resolves the provider name, validating the API key the same
// way the provider SDK would need it.
func buildPlanner(cfg cliConfig) (planner.Planner, error) {
	switch cfg.Provider {
	case "rule", "":
		return planner.NewRulePlanner(), nil
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return openai.NewPlanner(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		}), nil
	case "anthropic":
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
		return anthropic.NewPlanner(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = sdk.Model(cfg.Model)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func printPlan(plan *planner.Plan) {
	fmt.Println("Plan:")
	for _, s := range plan.Steps {
		raw, err := json.Marshal(s)
		if err != nil {
			continue
		}
		fmt.Printf("- %s\n", raw)
	}
}
