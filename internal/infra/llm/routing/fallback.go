package routing

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/vietddude/llmrelay/internal/infra/llm"
)

// ErrNoStrategies is returned when the configuration leaves the chain
// with nothing to try (proxying forced with no proxy configured).
var ErrNoStrategies = errors.New("force_proxy is set but no proxy_url is configured")

// FallbackOptions selects and orders the connection strategies.
type FallbackOptions struct {
	BaseURL       string
	ForceProxy    bool
	ProxyURL      string
	PublicProxies []string
	Production    bool
}

// Strategy is one way of reaching the inference service.
type Strategy struct {
	Name    string
	resolve func(path string) string
}

// URL returns the full request URL for an API path under this strategy.
func (s Strategy) URL(path string) string {
	return s.resolve(path)
}

// Chain is an ordered list of connection strategies tried in sequence
// until one succeeds. The order is computed once from configuration:
// direct first unless proxying is forced, then the configured
// intermediary, then public best-effort intermediaries (non-production
// only, and only when no custom intermediary exists).
type Chain struct {
	strategies []Strategy
}

// NewChain builds the strategy chain from configuration.
func NewChain(opts FallbackOptions) (*Chain, error) {
	var strategies []Strategy

	if !opts.ForceProxy {
		strategies = append(strategies, directStrategy(opts.BaseURL))
	}
	if opts.ProxyURL != "" {
		strategies = append(strategies, customStrategy(opts.ProxyURL))
	} else if !opts.Production {
		for _, prefix := range opts.PublicProxies {
			strategies = append(strategies, publicStrategy(opts.BaseURL, prefix))
		}
	}

	if len(strategies) == 0 {
		return nil, ErrNoStrategies
	}
	return &Chain{strategies: strategies}, nil
}

// Primary returns the first strategy, used for the normal request path.
func (c *Chain) Primary() Strategy {
	return c.strategies[0]
}

// Strategies returns the ordered strategy list.
func (c *Chain) Strategies() []Strategy {
	return c.strategies
}

// Failover tries each strategy in order and stops at the first success.
// When every strategy fails, the returned error enumerates each
// per-strategy failure.
func Failover[T any](ctx context.Context, c *Chain, op func(ctx context.Context, s Strategy) (T, error)) (T, error) {
	var zero T
	var failures []StrategyFailure

	for _, s := range c.strategies {
		result, err := op(ctx, s)
		if err == nil {
			return result, nil
		}
		failures = append(failures, StrategyFailure{Strategy: s.Name, Err: err})
	}

	return zero, &ChainError{Failures: failures}
}

// StrategyFailure records one strategy's failure inside a ChainError.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// ChainError aggregates the failure of every strategy in the chain.
type ChainError struct {
	Failures []StrategyFailure
}

func (e *ChainError) Error() string {
	var b strings.Builder
	b.WriteString("all connection strategies failed")
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Strategy)
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the per-strategy errors to errors.Is/As.
func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func directStrategy(base string) Strategy {
	return Strategy{
		Name: "direct",
		resolve: func(path string) string {
			return llm.JoinURL(base, path)
		},
	}
}

func customStrategy(proxy string) Strategy {
	return Strategy{
		Name: "custom",
		resolve: func(path string) string {
			return llm.JoinURL(proxy, path)
		},
	}
}

// publicStrategy wraps the full target URL for prefix-style public
// intermediaries (e.g. "https://corsproxy.io/?<encoded url>").
func publicStrategy(base, prefix string) Strategy {
	name := "public"
	if u, err := url.Parse(prefix); err == nil && u.Host != "" {
		name = "public:" + u.Host
	}
	return Strategy{
		Name: name,
		resolve: func(path string) string {
			return prefix + url.QueryEscape(llm.JoinURL(base, path))
		},
	}
}
