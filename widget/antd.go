package widget

import (
	"context"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
)

// AntSelector handles the trigger box of an Ant Design select. The dropdown
// opens on mousedown, so replaying the recorded click afterwards would close
// it again.
type AntSelector struct{}

func (AntSelector) Name() string { return "ant-select-selector" }

func (AntSelector) TryHandle(ctx context.Context, step flow.Step, el browser.Element, info flow.ElementInfo) (bool, error) {
	if !isAntSelector(info) {
		return false, nil
	}
	switch step.Type {
	case flow.StepMouseDown:
		return true, el.MouseDown(ctx)
	case flow.StepClick:
		return true, nil
	}
	return false, nil
}

func isAntSelector(info flow.ElementInfo) bool {
	return info.HasClassPrefix("ant-select-selection") ||
		info.HasClass("ant-select-selector") ||
		info.HasClass("ant-select-selection-search-input")
}

// AntSelectOption handles dropdown options. Options select on click but
// the popup swallows the click once a mousedown has blurred the trigger, so
// the mousedown replays as a click and the recorded click is dropped.
type AntSelectOption struct{}

func (AntSelectOption) Name() string { return "ant-select-option" }

func (AntSelectOption) TryHandle(ctx context.Context, step flow.Step, el browser.Element, info flow.ElementInfo) (bool, error) {
	if !info.HasClassPrefix("ant-select-dropdown-menu-item") && !info.HasClassPrefix("ant-select-item-option") {
		return false, nil
	}
	switch step.Type {
	case flow.StepMouseDown:
		return true, el.Click(ctx)
	case flow.StepClick:
		return true, nil
	}
	return false, nil
}

// AntCascaderItem handles cascader menu entries, which expand on hover.
type AntCascaderItem struct{}

func (AntCascaderItem) Name() string { return "ant-cascader-menu-item" }

func (AntCascaderItem) TryHandle(ctx context.Context, step flow.Step, el browser.Element, info flow.ElementInfo) (bool, error) {
	if step.Type != flow.StepClick || !info.HasClassPrefix("ant-cascader-menu-item") {
		return false, nil
	}
	if err := el.Hover(ctx); err != nil {
		return true, err
	}
	return true, el.Click(ctx)
}
