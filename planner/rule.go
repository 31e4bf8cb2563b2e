package planner

import (
	"context"
	"regexp"
	"strings"
)

var (
	wikiSearchRe = regexp.MustCompile(`wikipedia.* for (.+)`)
	urlRe        = regexp.MustCompile(`https?://\S+`)
)

// RulePlanner maps a handful of known task intents onto fixed step
// sequences without any model dependency. Tasks it does not recognize
// degrade to a ping plan.
type RulePlanner struct{}

var _ Planner = (*RulePlanner)(nil)

// NewRulePlanner constructs a rule-based planner.
func NewRulePlanner() *RulePlanner { return &RulePlanner{} }

// Plan implements Planner.
func (p *RulePlanner) Plan(_ context.Context, task string) (*Plan, error) {
	t := strings.ToLower(strings.TrimSpace(task))

	if strings.Contains(t, "hugging face") || strings.Contains(t, "huggingface") {
		return p.huggingFacePapers(), nil
	}
	if m := wikiSearchRe.FindStringSubmatch(t); m != nil {
		return p.wikipediaSearch(strings.TrimSpace(m[1])), nil
	}
	if strings.Contains(t, "gmail") && strings.Contains(t, "promo") {
		return p.gmailPromotions(), nil
	}
	if m := urlRe.FindString(task); m != "" {
		return p.navigateTo(m), nil
	}

	return PingPlan(), nil
}

// huggingFacePapers opens the papers index and extracts the newest entry's
// link.
func (p *RulePlanner) huggingFacePapers() *Plan {
	return &Plan{Steps: []Command{
		{ID: NewStepID(), Cmd: "navigate", Args: map[string]any{"url": "https://huggingface.co/papers"}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "main section article", "timeoutMs": 15000}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "main section article:nth-of-type(1) a[href^='/papers/']", "all": false, "attr": "href"}},
	}}
}

// wikipediaSearch types the query into the search page and skims the result.
func (p *RulePlanner) wikipediaSearch(query string) *Plan {
	return &Plan{Steps: []Command{
		{ID: NewStepID(), Cmd: "navigate", Args: map[string]any{"url": "https://en.wikipedia.org/wiki/Special:Search"}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "#searchInput", "timeoutMs": 15000}},
		{ID: NewStepID(), Cmd: "type", Args: map[string]any{"selector": "#searchInput", "text": query, "submit": true}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "#mw-content-text", "timeoutMs": 15000}},
		{ID: NewStepID(), Cmd: "scroll", Args: map[string]any{"to": "bottom"}},
		{ID: NewStepID(), Cmd: "scroll", Args: map[string]any{"to": "top"}},
	}}
}

// gmailPromotions lists recent promotion senders and subjects, with fallback
// selectors because Gmail's DOM is unstable across variants.
func (p *RulePlanner) gmailPromotions() *Plan {
	return &Plan{Steps: []Command{
		{ID: NewStepID(), Cmd: "navigate", Args: map[string]any{"url": "https://mail.google.com/mail/u/0/#category/promo"}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "div[role='main']", "timeoutMs": 20000}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "tr.zA", "timeoutMs": 20000}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "tr.zA.zE span.yX.xY .yW span", "all": true, "limit": 10}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "tr.zA.zE .yW span[dir='auto']", "all": true, "limit": 10}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "tr.zA.zE .yW > span", "all": true, "limit": 10}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "tr.zA.zE span.bog", "all": true, "limit": 10}},
		{ID: NewStepID(), Cmd: "query", Args: map[string]any{"selector": "tr.zA.zE .bog span", "all": true, "limit": 10}},
	}}
}

// navigateTo opens a bare URL mentioned in the task.
func (p *RulePlanner) navigateTo(url string) *Plan {
	return &Plan{Steps: []Command{
		{ID: NewStepID(), Cmd: "navigate", Args: map[string]any{"url": url}},
		{ID: NewStepID(), Cmd: "waitFor", Args: map[string]any{"selector": "body", "timeoutMs": 10000}},
	}}
}
