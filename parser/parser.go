package parser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/botmesh/core"
)

// ErrUnknownParser is returned when a skill references a parser name that is
// not registered.
var ErrUnknownParser = errors.New("unknown parser")

// Registry maps parser names to implementations. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]core.Parser
}

// NewRegistry returns a registry preloaded with the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: map[string]core.Parser{}}
	r.Register("string", core.ParserFunc(String))
	r.Register("number", core.ParserFunc(Number))
	r.Register("list", core.ParserFunc(List))
	r.Register("email", core.ParserFunc(Email))
	r.Register("phone", core.ParserFunc(Phone))
	r.Register("date", core.ParserFunc(Date))
	r.Register("datetime", core.ParserFunc(Datetime))
	return r
}

// Register adds or replaces a parser.
func (r *Registry) Register(name string, p core.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = p
}

// Get returns the parser registered under name.
func (r *Registry) Get(name string) (core.Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.parsers[name]
	return p, ok
}

// Names lists the registered parser names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for n := range r.parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Parse runs the named parser.
func (r *Registry) Parse(ctx context.Context, name string, value any, policy map[string]any) (any, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParser, name)
	}
	return p.Parse(ctx, value, policy)
}

func policyNumber(policy map[string]any, key string) (float64, bool) {
	if policy == nil {
		return 0, false
	}
	return toFloat(policy[key])
}

func policyString(policy map[string]any, key string) string {
	if policy == nil {
		return ""
	}
	s, _ := policy[key].(string)
	return s
}

func policyBool(policy map[string]any, key string) bool {
	if policy == nil {
		return false
	}
	b, _ := policy[key].(bool)
	return b
}

func policyList(policy map[string]any, key string) []any {
	if policy == nil {
		return nil
	}
	switch l := policy[key].(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// isSet mirrors the truthiness check applied to raw values: nil, "" and
// false count as missing.
func isSet(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	}
	return true
}
