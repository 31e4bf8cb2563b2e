// Package testutil provides shared helpers for package tests: an in-process
// relay bound to an ephemeral port and a scripted fake adapter endpoint that
// answers routed commands deterministically.
package testutil
