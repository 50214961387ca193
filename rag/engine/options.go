package engine

import (
	"fmt"
	"strings"

	"github.com/smallnest/ragchat/graph"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/store"
)

// InvalidSectionPolicy decides what happens when the analyzer returns
// a section outside the enum or output that cannot be decoded.
type InvalidSectionPolicy string

const (
	// PolicyFail surfaces the analyzer error to the caller.
	PolicyFail InvalidSectionPolicy = "fail"
	// PolicyUnfiltered logs a warning and searches without a section filter.
	PolicyUnfiltered InvalidSectionPolicy = "unfiltered"
)

// ParsePolicy parses a policy name. The empty string means PolicyFail.
func ParsePolicy(s string) (InvalidSectionPolicy, error) {
	switch p := InvalidSectionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyFail, nil
	case PolicyFail, PolicyUnfiltered:
		return p, nil
	default:
		return "", fmt.Errorf("unknown invalid section policy %q", s)
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithoutQueryAnalysis selects the degraded variant: retrieve -> generate
// with an unfiltered search on the raw question.
func WithoutQueryAnalysis() Option {
	return func(e *Engine) {
		e.analyze = false
	}
}

// WithInvalidSectionPolicy sets the policy for malformed analyzer output.
func WithInvalidSectionPolicy(policy InvalidSectionPolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithHistory records every answered question in h.
func WithHistory(h store.HistoryStore) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// WithLogger sets the logger used for stage transitions.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTraceHooks adds hooks that receive the graph's trace events.
func WithTraceHooks(hooks ...graph.TraceHook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks...)
	}
}
