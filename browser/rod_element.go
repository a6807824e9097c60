package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// RodElement implements Element on top of a go-rod element.
type RodElement struct {
	el *rod.Element
}

// Describe reads tag, class and input type from the live element.
func (e *RodElement) Describe(ctx context.Context) (flow.ElementInfo, error) {
	res, err := e.el.Context(ctx).Eval(`() => ({
		tag: (this.tagName || '').toLowerCase(),
		cls: typeof this.className === 'string' ? this.className : '',
		type: (this.getAttribute('type') || '').toLowerCase(),
	})`)
	if err != nil {
		return flow.ElementInfo{}, fmt.Errorf("failed to describe element: %w", err)
	}
	return flow.ElementInfo{
		TagName:   res.Value.Get("tag").Str(),
		ClassName: res.Value.Get("cls").Str(),
		InputType: res.Value.Get("type").Str(),
	}, nil
}

// Click performs a left click at the element's center.
func (e *RodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

// Hover moves the pointer over the element.
func (e *RodElement) Hover(ctx context.Context) error {
	return e.el.Context(ctx).Hover()
}

// MouseDown hovers the element and fires a mousedown on it.
func (e *RodElement) MouseDown(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.Hover(); err != nil {
		return err
	}
	_, err := el.Eval(`() => this.dispatchEvent(new MouseEvent('mousedown', {bubbles: true, cancelable: true, view: window}))`)
	return err
}

// Focus focuses the element.
func (e *RodElement) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

// Press focuses the element and sends a key press.
func (e *RodElement) Press(ctx context.Context, key string) error {
	k, err := KeyFor(key)
	if err != nil {
		return err
	}
	return e.el.Context(ctx).Type(k)
}

// Type clears the element's value and types value into it.
func (e *RodElement) Type(ctx context.Context, value string) error {
	el := e.el.Context(ctx)
	if _, err := el.Eval(`() => { this.value = '' }`); err != nil {
		return err
	}
	if value == "" {
		return nil
	}
	return el.Input(value)
}

// SetChecked sets the checked state of a checkbox or radio.
func (e *RodElement) SetChecked(ctx context.Context, checked bool) error {
	_, err := e.el.Context(ctx).Eval(`(checked) => { this.checked = checked }`, checked)
	return err
}

// SetFiles attaches files to a file input.
func (e *RodElement) SetFiles(ctx context.Context, paths []string) error {
	return e.el.Context(ctx).SetFiles(paths)
}

// ScrollTo sets the element's scroll offsets.
func (e *RodElement) ScrollTo(ctx context.Context, top, left float64) error {
	_, err := e.el.Context(ctx).Eval(`(top, left) => { this.scrollTop = top; this.scrollLeft = left }`, top, left)
	return err
}

// Dispatch fires a bubbling synthetic event on the element.
func (e *RodElement) Dispatch(ctx context.Context, eventType string) error {
	_, err := e.el.Context(ctx).Eval(`(type) => this.dispatchEvent(new Event(type, {bubbles: true}))`, eventType)
	return err
}
