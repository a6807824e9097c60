// Package widget holds interceptors for third-party UI components whose
// recorded click and mousedown events do not replay faithfully through the
// default handlers.
package widget

import (
	"context"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// Override intercepts a step before the default handler runs. Returning
// true means the step is fully handled and the default handler is skipped.
type Override interface {
	Name() string
	TryHandle(ctx context.Context, step flow.Step, el browser.Element, info flow.ElementInfo) (bool, error)
}

// Chain is an ordered list of overrides. The first one to claim a step wins.
type Chain []Override

// DefaultChain returns the built-in overrides in evaluation order.
func DefaultChain() Chain {
	return Chain{
		AntSelector{},
		AntSelectOption{},
		AntCascaderItem{},
	}
}

// Append returns a chain with o evaluated after the existing overrides.
func (c Chain) Append(o ...Override) Chain {
	out := make(Chain, 0, len(c)+len(o))
	out = append(out, c...)
	return append(out, o...)
}

// Handle offers the step to each override in order. It returns the name of
// the override that claimed it, or "" when the default handler should run.
func (c Chain) Handle(ctx context.Context, step flow.Step, el browser.Element, info flow.ElementInfo) (string, error) {
	for _, o := range c {
		handled, err := o.TryHandle(ctx, step, el, info)
		if err != nil {
			return o.Name(), err
		}
		if handled {
			return o.Name(), nil
		}
	}
	return "", nil
}
