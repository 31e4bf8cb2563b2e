// Package planner turns a natural-language task into an ordered plan of
// routable command envelopes for the adapter to execute.
//
// Core goals:
//   - Keep the Plan/Command schema small and validate it at the boundary
//     (allowed command set, non-empty step ids)
//   - Normalize the plan shapes language models commonly emit (bare array,
//     {"steps":[...]}, {"plan":[...]}) and tolerate prose or markdown fences
//     around the JSON
//   - Degrade safely: unparseable model output yields a harmless single-ping
//     plan instead of an error mid-run
//
// Providers (e.g. OpenAI, Anthropic) implement the Planner interface from
// this package so higher layers remain decoupled from vendor SDKs. The
// RulePlanner covers common intents without any model dependency.
package planner
