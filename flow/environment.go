package flow

import (
	"fmt"
	"regexp"
	"time"
)

// DefaultSlowAjaxTime is the duration at which an ajax exchange counts as slow.
const DefaultSlowAjaxTime = 500 * time.Millisecond

// EnvironmentConfig is the raw environment supplied at session construction.
type EnvironmentConfig struct {
	URLReplaceRegexp string `json:"urlReplaceRegexp,omitempty" yaml:"urlReplaceRegexp,omitempty" mapstructure:"url_replace_regexp"`
	URLReplaceTo     string `json:"urlReplaceTo,omitempty" yaml:"urlReplaceTo,omitempty" mapstructure:"url_replace_to"`
	SleepAfterChange int    `json:"sleepAfterChange,omitempty" yaml:"sleepAfterChange,omitempty" mapstructure:"sleep_after_change"`
	SlowAjaxTime     int    `json:"slowAjaxTime,omitempty" yaml:"slowAjaxTime,omitempty" mapstructure:"slow_ajax_time"`
}

// Environment rewrites steps before execution and carries timing knobs.
// The zero value is an identity transform.
type Environment struct {
	pattern          *regexp.Regexp
	replaceTo        string
	sleepAfterChange time.Duration
	slowAjaxTime     time.Duration
}

// NewEnvironment compiles an environment config. Millisecond fields that are
// zero fall back to defaults.
func NewEnvironment(cfg EnvironmentConfig) (*Environment, error) {
	env := &Environment{
		replaceTo:        cfg.URLReplaceTo,
		sleepAfterChange: time.Duration(cfg.SleepAfterChange) * time.Millisecond,
		slowAjaxTime:     DefaultSlowAjaxTime,
	}
	if cfg.SlowAjaxTime > 0 {
		env.slowAjaxTime = time.Duration(cfg.SlowAjaxTime) * time.Millisecond
	}
	if cfg.URLReplaceRegexp != "" {
		re, err := regexp.Compile(cfg.URLReplaceRegexp)
		if err != nil {
			return nil, fmt.Errorf("invalid url replace regexp: %w", err)
		}
		env.pattern = re
	}
	return env, nil
}

// SleepAfterChange is the pause applied after every change step.
func (e *Environment) SleepAfterChange() time.Duration {
	if e == nil {
		return 0
	}
	return e.sleepAfterChange
}

// SlowAjaxTime is the slow-ajax threshold.
func (e *Environment) SlowAjaxTime() time.Duration {
	if e == nil || e.slowAjaxTime <= 0 {
		return DefaultSlowAjaxTime
	}
	return e.slowAjaxTime
}

// RewriteURL applies the configured substitution to a single url.
func (e *Environment) RewriteURL(u string) string {
	if e == nil || e.pattern == nil || u == "" {
		return u
	}
	return e.pattern.ReplaceAllString(u, e.replaceTo)
}

// Wrap returns a copy of the step with every url-bearing field rewritten.
// The input step is never modified.
func (e *Environment) Wrap(s Step) Step {
	if e == nil || e.pattern == nil {
		return s
	}
	s.URL = e.RewriteURL(s.URL)
	if s.Request != nil {
		req := *s.Request
		req.URL = e.RewriteURL(req.URL)
		s.Request = &req
	}
	if s.Response != nil {
		resp := *s.Response
		resp.URL = e.RewriteURL(resp.URL)
		s.Response = &resp
	}
	return s
}

// WrapFlow wraps every step of a flow into a new flow.
func (e *Environment) WrapFlow(f Flow) Flow {
	out := Flow{Name: f.Name, Steps: make([]Step, len(f.Steps))}
	for i, s := range f.Steps {
		out.Steps[i] = e.Wrap(s)
	}
	return out
}
