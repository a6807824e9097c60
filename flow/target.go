package flow

import (
	"strings"

	"golang.org/x/net/html"
)

// ElementInfo is the subset of an element's identity used for dispatch decisions.
type ElementInfo struct {
	TagName   string
	ClassName string
	InputType string
}

// HasClass reports whether the element carries the given class token.
func (e ElementInfo) HasClass(class string) bool {
	for _, c := range strings.Fields(e.ClassName) {
		if c == class {
			return true
		}
	}
	return false
}

// HasClassPrefix reports whether any class token starts with prefix.
func (e ElementInfo) HasClassPrefix(prefix string) bool {
	for _, c := range strings.Fields(e.ClassName) {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

// IsFileInput reports whether the element is an <input type="file">.
func (e ElementInfo) IsFileInput() bool {
	return e.TagName == "input" && e.InputType == "file"
}

// IsSubmit reports whether activating the element submits its form.
func (e ElementInfo) IsSubmit() bool {
	switch e.TagName {
	case "input":
		return e.InputType == "submit" || e.InputType == "image"
	case "button":
		return e.InputType == "" || e.InputType == "submit"
	}
	return false
}

// IsCheckable reports whether the element is a checkbox or radio input.
func (e ElementInfo) IsCheckable() bool {
	return e.TagName == "input" && (e.InputType == "checkbox" || e.InputType == "radio")
}

// Empty reports whether nothing is known about the element.
func (e ElementInfo) Empty() bool {
	return e.TagName == ""
}

// ParseTarget extracts element identity from a recorded outerHTML descriptor.
// Only the first element in the fragment is considered.
func ParseTarget(descriptor string) ElementInfo {
	descriptor = strings.TrimSpace(descriptor)
	if descriptor == "" {
		return ElementInfo{}
	}

	z := html.NewTokenizer(strings.NewReader(descriptor))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ElementInfo{}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			info := ElementInfo{TagName: strings.ToLower(tok.Data)}
			for _, attr := range tok.Attr {
				switch strings.ToLower(attr.Key) {
				case "class":
					info.ClassName = strings.TrimSpace(attr.Val)
				case "type":
					info.InputType = strings.ToLower(strings.TrimSpace(attr.Val))
				}
			}
			return info
		}
	}
}

// TargetInfo parses the step's recorded target descriptor.
func (s Step) TargetInfo() ElementInfo {
	return ParseTarget(s.Target)
}
