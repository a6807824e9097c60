// Package locator resolves a step's target element through its ordered
// locator chain.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hairizuan-noorazman/ui-replay/browser"
	"github.com/hairizuan-noorazman/ui-replay/flow"
	"github.com/hairizuan-noorazman/ui-replay/logger"
)

// ErrElementNotFound is returned when no locator in the chain matches.
var ErrElementNotFound = errors.New("element not found")

// Strategy names the locator that produced a match.
type Strategy string

const (
	StrategyPath       Strategy = "path"
	StrategyCSSPath    Strategy = "csspath"
	StrategyCustomPath Strategy = "custompath"
)

// Finder is the page capability the resolver needs.
type Finder interface {
	QueryXPath(ctx context.Context, xpath string) (browser.Element, error)
	QueryCSS(ctx context.Context, selector string) (browser.Element, error)
}

// NotFoundError reports every locator that was attempted.
type NotFoundError struct {
	Locators flow.Locators
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: tried %s", ErrElementNotFound, e.Locators)
}

func (e *NotFoundError) Unwrap() error {
	return ErrElementNotFound
}

// Resolver walks the locator chain.
type Resolver struct {
	logger logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{logger: log}
}

// Resolve returns the first element matched by path, then csspath, then
// custompath. Query errors on one strategy fall through to the next.
func (r *Resolver) Resolve(ctx context.Context, page Finder, locs flow.Locators) (browser.Element, Strategy, error) {
	type attempt struct {
		strategy Strategy
		selector string
		query    func(context.Context, string) (browser.Element, error)
	}
	attempts := []attempt{
		{StrategyPath, XPathQuery(locs.Path), page.QueryXPath},
		{StrategyCSSPath, strings.TrimSpace(locs.CSSPath), page.QueryCSS},
		{StrategyCustomPath, strings.TrimSpace(locs.CustomPath), page.QueryCSS},
	}

	for _, a := range attempts {
		if a.selector == "" {
			continue
		}
		el, err := a.query(ctx, a.selector)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			r.logger.Debug(ctx, "Locator query failed", map[string]interface{}{
				"strategy": string(a.strategy),
				"selector": a.selector,
				"error":    err.Error(),
			})
			continue
		}
		if el != nil {
			if a.strategy != StrategyPath {
				r.logger.Debug(ctx, "Element resolved by fallback locator", map[string]interface{}{
					"strategy": string(a.strategy),
					"selector": a.selector,
				})
			}
			return el, a.strategy, nil
		}
	}

	return nil, "", &NotFoundError{Locators: locs}
}

// XPathQuery converts a recorded path into a query the driver accepts.
// Recorded paths may carry an "xpath" prefix, which is dropped along with
// one separator; a following "//" descendant axis is kept. Paths lacking a
// leading axis become descendant queries.
func XPathQuery(path string) string {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "xpath"); ok {
		switch {
		case strings.HasPrefix(rest, ":"):
			path = rest[1:]
		case strings.HasPrefix(rest, "/") && !strings.HasPrefix(rest, "//"):
			path = rest[1:]
		case strings.HasPrefix(rest, "//"):
			path = rest
		}
	}
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") && !strings.HasPrefix(path, "(") {
		path = "//" + path
	}
	return path
}
