// Package probe defines the result contract shared by every scanner and the
// error taxonomy used to classify their failures.
package probe

import "context"

// Probe is a single network-facing check.
//
// Execute must not panic and must convert every failure into a Result. The
// context carries the per-probe deadline.
type Probe interface {
	Name() string
	Execute(ctx context.Context, target string) Result
}

// Func adapts a plain function to the Probe interface.
type Func struct {
	ProbeName string
	Fn        func(ctx context.Context, target string) Result
}

func (f Func) Name() string { return f.ProbeName }

func (f Func) Execute(ctx context.Context, target string) Result {
	return f.Fn(ctx, target)
}
