// Package runner drives a plan of command envelopes through a controller
// client: it waits for the adapter to come up, executes the steps in order
// and aborts the remaining sequence on the first step whose reply reports
// ok == false.
//
// A failed step is a normal, reportable outcome captured in the Result, not
// an error; errors are reserved for transport and correlation faults. As a
// convenience, the runner can automatically open a queried href in a new
// tab.
package runner
