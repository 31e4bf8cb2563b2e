package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/browsermesh/protocol"
)

// AllowedCommands is the closed set of commands a plan may contain. Their
// semantics are owned by the adapter; the planner only gates what it will
// emit.
var AllowedCommands = []string{
	"navigate", "waitFor", "query", "click", "type",
	"scroll", "switchTab", "screenshot", "ping", "openTab",
}

var allowedSet = func() map[string]bool {
	m := make(map[string]bool, len(AllowedCommands))
	for _, c := range AllowedCommands {
		m[c] = true
	}
	return m
}()

// Command is one executable plan step.
type Command struct {
	ID   string         `json:"id"`
	Cmd  string         `json:"cmd"`
	Args map[string]any `json:"args"`
}

// Envelope renders the step as a routable wire envelope.
func (c Command) Envelope() protocol.Envelope {
	return protocol.Command(c.ID, c.Cmd, c.Args)
}

// Plan is an ordered list of commands. Execution aborts on the first step
// whose reply reports ok == false.
type Plan struct {
	Steps []Command `json:"steps"`
}

// Planner turns a natural-language task into a plan.
type Planner interface {
	Plan(ctx context.Context, task string) (*Plan, error)
}

// NewStepID returns a short unique step identifier.
func NewStepID() string {
	return uuid.NewString()[:8]
}

// EnsureIDs assigns a fresh id to every step missing one.
func (p *Plan) EnsureIDs() {
	for i := range p.Steps {
		if p.Steps[i].ID == "" {
			p.Steps[i].ID = NewStepID()
		}
	}
}

// Sanitize drops steps whose command is outside the allowed set.
func (p *Plan) Sanitize() {
	kept := p.Steps[:0]
	for _, s := range p.Steps {
		if allowedSet[s.Cmd] {
			kept = append(kept, s)
		}
	}
	p.Steps = kept
}

// PingPlan is the harmless fallback when no better plan can be produced.
func PingPlan() *Plan {
	return &Plan{Steps: []Command{{ID: NewStepID(), Cmd: "ping", Args: map[string]any{}}}}
}

// ParsePlan accepts the three shapes models commonly emit: a bare step
// array, {"steps":[...]} or {"plan":[...]}.
func ParsePlan(raw []byte) (*Plan, error) {
	var arr []Command
	if err := json.Unmarshal(raw, &arr); err == nil {
		return &Plan{Steps: arr}, nil
	}

	var obj struct {
		Steps []Command `json:"steps"`
		Plan  []Command `json:"plan"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if obj.Steps != nil {
		return &Plan{Steps: obj.Steps}, nil
	}
	if obj.Plan != nil {
		return &Plan{Steps: obj.Plan}, nil
	}
	return nil, fmt.Errorf("parse plan: unrecognized shape")
}

var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)

// ExtractJSON isolates the first JSON object or array in model output,
// tolerating surrounding prose and markdown fences.
func ExtractJSON(text string) ([]byte, error) {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
		return []byte(t), nil
	}
	if m := jsonBlockRe.FindString(text); m != "" {
		return []byte(m), nil
	}
	return nil, fmt.Errorf("no JSON found in model output")
}

// NormalizeModelOutput turns raw model text into a usable plan: extract the
// JSON, parse it, coerce missing ids and drop disallowed commands. Output
// that cannot be parsed at all degrades to a single-ping plan.
func NormalizeModelOutput(text string) *Plan {
	raw, err := ExtractJSON(text)
	if err != nil {
		return PingPlan()
	}
	plan, err := ParsePlan(raw)
	if err != nil {
		return PingPlan()
	}
	plan.EnsureIDs()
	plan.Sanitize()
	if len(plan.Steps) == 0 {
		return PingPlan()
	}
	return plan
}
