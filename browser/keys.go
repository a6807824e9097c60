package browser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-rod/rod/lib/input"
)

var namedKeys = map[string]input.Key{
	"enter":      input.Enter,
	"tab":        input.Tab,
	"escape":     input.Escape,
	"esc":        input.Escape,
	"backspace":  input.Backspace,
	"delete":     input.Delete,
	"arrowup":    input.ArrowUp,
	"arrowdown":  input.ArrowDown,
	"arrowleft":  input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"home":       input.Home,
	"end":        input.End,
	"pageup":     input.PageUp,
	"pagedown":   input.PageDown,
	"space":      input.Space,
	" ":          input.Space,
}

// KeyFor maps a recorded key name (KeyboardEvent.key) to a driver key.
func KeyFor(name string) (input.Key, error) {
	if k, ok := namedKeys[strings.ToLower(name)]; ok {
		return k, nil
	}
	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		return input.Key(r), nil
	}
	return 0, fmt.Errorf("unsupported key %q", name)
}
