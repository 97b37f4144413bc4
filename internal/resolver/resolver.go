// Package resolver maps mission objectives to runnable tools. The execution
// controller consumes only the Resolver interface; the registry here is the
// default implementation so the system works end to end.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"missionline/internal/domain"
)

// ErrNoTool signals that no registered tool matches the objective.
var ErrNoTool = errors.New("no tool for objective")

// Resolution is a matched tool for an objective: its name, how confident the
// resolver is in the match, and a callable that produces the result.
type Resolution struct {
	Tool       string
	Confidence float64
	Run        func(ctx context.Context) (domain.Metadata, error)
}

// Resolver selects a tool for an objective.
type Resolver interface {
	Resolve(ctx context.Context, objective string) (Resolution, error)
}

// Matcher inspects an objective and returns a confidence in [0,1] plus a
// runnable bound to that objective. Zero confidence means no match.
type Matcher func(objective string) (float64, func(ctx context.Context) (domain.Metadata, error))

// Registry is a keyword/shape based resolver. Tools are tried in
// registration order; the highest-confidence match wins.
type Registry struct {
	names    []string
	matchers map[string]Matcher
}

// NewRegistry returns a registry with the built-in calc and echo tools.
func NewRegistry() *Registry {
	r := &Registry{matchers: make(map[string]Matcher)}
	r.Register("calc", matchCalc)
	r.Register("echo", matchEcho)
	return r
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(name string, m Matcher) {
	if _, ok := r.matchers[name]; !ok {
		r.names = append(r.names, name)
	}
	r.matchers[name] = m
}

// Resolve returns the best-matching tool or ErrNoTool.
func (r *Registry) Resolve(ctx context.Context, objective string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	best := Resolution{}
	for _, name := range r.names {
		confidence, run := r.matchers[name](objective)
		if confidence > best.Confidence {
			best = Resolution{Tool: name, Confidence: confidence, Run: run}
		}
	}
	if best.Run == nil {
		return Resolution{}, ErrNoTool
	}
	return best, nil
}

// matchCalc handles objectives of the form "calc: <a> <op> <b>" and bare
// two-operand arithmetic like "12 * 3".
func matchCalc(objective string) (float64, func(ctx context.Context) (domain.Metadata, error)) {
	expr := objective
	confidence := 0.0
	if rest, ok := strings.CutPrefix(strings.TrimSpace(objective), "calc:"); ok {
		expr = rest
		confidence = 0.95
	}
	a, op, b, ok := parseBinary(expr)
	if !ok {
		return 0, nil
	}
	if confidence == 0 {
		confidence = 0.7
	}
	return confidence, func(ctx context.Context) (domain.Metadata, error) {
		value, err := apply(a, op, b)
		if err != nil {
			return nil, err
		}
		return domain.Metadata{
			"expression": strings.TrimSpace(expr),
			"value":      value,
		}, nil
	}
}

// matchEcho is the catch-all for "echo:" objectives.
func matchEcho(objective string) (float64, func(ctx context.Context) (domain.Metadata, error)) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(objective), "echo:")
	if !ok {
		return 0, nil
	}
	message := strings.TrimSpace(rest)
	return 0.9, func(ctx context.Context) (domain.Metadata, error) {
		return domain.Metadata{"message": message}, nil
	}
}

func parseBinary(expr string) (a float64, op string, b float64, ok bool) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != 3 {
		return 0, "", 0, false
	}
	left, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, "", 0, false
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, "", 0, false
	}
	switch fields[1] {
	case "+", "-", "*", "/":
		return left, fields[1], right, true
	}
	return 0, "", 0, false
}

func apply(a float64, op string, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		return a / b, nil
	}
	return 0, fmt.Errorf("unsupported operator %q", op)
}
