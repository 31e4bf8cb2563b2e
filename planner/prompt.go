package planner

import (
	"encoding/json"
	"strings"
)

// SystemPrompt constrains model output to strict JSON over the allowed
// command set. The Gmail timeframe rules exist because models tend to invent
// date filters the user never asked for.
const SystemPrompt = `You are a planning engine that outputs ONLY JSON (array or {"steps":[...]}).
RULES:
- Only use: navigate, waitFor, query, click, type, scroll, switchTab, screenshot, ping, openTab.
- Prefer 'openTab' over 'navigate' when the goal is to show a new page to the user.
- Do NOT print or summarize results; the controller will show opened pages.
- Use 'query' only to fetch hrefs or small pieces needed for the next action.
- Do NOT add date/time filters unless the USER explicitly requested a timeframe (e.g., 'last 14 days', 'since 2025-07-01').
- If timeframe is requested for Gmail, map it to:
  last N days → newer_than:Nd
  last N weeks → newer_than:(N*7)d
  last N months → newer_than:Nm
  since YYYY-MM-DD → after:YYYY/MM/DD
- JSON ONLY. No explanations.
`

type fewShot struct {
	user  string
	steps []Command
}

var fewShots = []fewShot{
	{
		user: "open hugging face papers and get the latest link",
		steps: []Command{
			{ID: "a1", Cmd: "openTab", Args: map[string]any{"url": "https://huggingface.co/papers", "active": true}},
			{ID: "a2", Cmd: "waitFor", Args: map[string]any{"selector": "main section article", "timeoutMs": 15000}},
			{ID: "a3", Cmd: "waitFor", Args: map[string]any{"selector": "input[type='search']", "timeoutMs": 8000}},
			{ID: "a4", Cmd: "type", Args: map[string]any{"selector": "input[type='search']", "text": "UI Agents", "submit": false}},
			{ID: "a5", Cmd: "waitFor", Args: map[string]any{"selector": "main section article", "timeoutMs": 8000}},
			{ID: "a6", Cmd: "query", Args: map[string]any{"selector": "main section article:nth-of-type(1) a[href^='/papers/']", "all": false, "attr": "href"}},
		},
	},
	{
		user: "open gmail promotions and list unread promotions",
		steps: []Command{
			{ID: "g1", Cmd: "openTab", Args: map[string]any{"url": "https://mail.google.com/mail/u/0/#search/category%3Apromotions%20is%3Aunread", "active": true}},
			{ID: "g2", Cmd: "waitFor", Args: map[string]any{"selector": "div[role='main']", "timeoutMs": 20000}},
			{ID: "g3", Cmd: "waitFor", Args: map[string]any{"selector": "tr.zA", "timeoutMs": 25000}},
		},
	},
	{
		user: "open gmail promotions and list unread promotions from the last 14 days",
		steps: []Command{
			{ID: "g1", Cmd: "openTab", Args: map[string]any{"url": "https://mail.google.com/mail/u/0/#search/category%3Apromotions%20is%3Aunread%20newer_than%3A14d", "active": true}},
			{ID: "g2", Cmd: "waitFor", Args: map[string]any{"selector": "div[role='main']", "timeoutMs": 20000}},
			{ID: "g3", Cmd: "waitFor", Args: map[string]any{"selector": "tr.zA", "timeoutMs": 25000}},
		},
	},
}

// BuildPrompt assembles the few-shot user prompt for a task.
func BuildPrompt(task string) string {
	var b strings.Builder
	for _, fs := range fewShots {
		b.WriteString("USER: ")
		b.WriteString(fs.user)
		b.WriteString("\nASSISTANT:\n")
		raw, _ := json.Marshal(fs.steps)
		b.Write(raw)
		b.WriteString("\n\n")
	}
	b.WriteString("USER: ")
	b.WriteString(task)
	b.WriteString("\nASSISTANT:\n")
	return b.String()
}
