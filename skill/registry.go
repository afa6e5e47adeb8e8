package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/internal/util"
	"github.com/hupe1980/botmesh/logging"
)

// Factory creates a fresh skill instance for an intent.
type Factory func(intent core.Intent) (*core.Skill, error)

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
}

// Registry maps intent names to skill factories and hook keys to Go
// functions. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	funcs     map[string]any
	opts      Options
}

// New creates a Registry with the built-in default skill registered.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	r := &Registry{
		factories: map[string]Factory{},
		funcs:     map[string]any{},
		opts:      opts,
	}
	r.Register(core.DefaultSkillType, BuiltinDefault)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// RegisterFunc binds a hook key to a Go function. fn must have one of the
// hook signatures declared in core (HookFunc, ConditionFunc, ApplyFunc,
// MessageFunc, ParseFunc, ReactionFunc, AbendFunc) or be a core.Parser.
func (r *Registry) RegisterFunc(key string, fn any) error {
	switch fn.(type) {
	case core.HookFunc, core.ConditionFunc, core.ApplyFunc, core.MessageFunc,
		core.ParseFunc, core.ReactionFunc, core.AbendFunc, core.Parser:
	default:
		return fmt.Errorf("%w: %s has type %T", core.ErrNotCallable, key, fn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[key] = fn
	return nil
}

// MustRegisterFunc is RegisterFunc that panics on error. Intended for
// package level wiring.
func (r *Registry) MustRegisterFunc(key string, fn any) {
	if err := r.RegisterFunc(key, fn); err != nil {
		panic(err)
	}
}

// Has reports whether a skill is registered for name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Instantiate creates a new skill instance for name. intent is handed to
// the factory so skills can read its config and fulfillment.
func (r *Registry) Instantiate(name string, intent core.Intent) (*core.Skill, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSkillNotFound, name)
	}
	s, err := f(intent)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", name, err)
	}
	if s.Type == "" {
		s.Type = name
	}
	return s, nil
}

// Revive replays a param change history onto a fresh skill instance.
// Entries are applied oldest first; an entry for an existing parameter
// overrides the fields it sets, otherwise the parameter is appended.
func (r *Registry) Revive(s *core.Skill, history []core.ParamChange) error {
	for _, change := range history {
		p, err := r.Parameter(change.Param)
		if err != nil {
			return fmt.Errorf("revive %s: %w", change.Name, err)
		}
		p.Name = change.Name

		params := s.Parameters(change.Type)
		if existing := find(params, change.Name); existing != nil {
			merge(existing, p, change.Param)
			continue
		}
		s.SetParameters(change.Type, append(params, p))
	}
	return nil
}

// Parameter resolves a descriptor into a runtime parameter.
func (r *Registry) Parameter(d core.ParameterDescriptor) (*core.Parameter, error) {
	p := &core.Parameter{
		Name:            d.Name,
		Message:         d.Message,
		PlatformMessage: d.PlatformMessage,
		Parser:          d.Parser,
		SubSkill:        d.SubSkill,
		List:            d.List,
	}

	var err error
	if p.MessageFunc, err = resolve[core.MessageFunc](r, d.MessageFunc); err != nil {
		return nil, err
	}
	if p.ParseFunc, err = r.parseFunc(d.ParseFunc); err != nil {
		return nil, err
	}
	if p.Reaction, err = resolve[core.ReactionFunc](r, d.Reaction); err != nil {
		return nil, err
	}
	if p.Condition, err = resolve[core.ConditionFunc](r, d.Condition); err != nil {
		return nil, err
	}
	if p.Preaction, err = resolve[core.HookFunc](r, d.Preaction); err != nil {
		return nil, err
	}
	if p.Apply, err = resolve[core.ApplyFunc](r, d.Apply); err != nil {
		return nil, err
	}
	if p.While, err = resolve[core.ConditionFunc](r, d.While); err != nil {
		return nil, err
	}

	if p.MessageFunc == nil && messagesHaveTemplate(d.Message) {
		p.MessageFunc = templateMessages(d.Message)
	}

	for _, sd := range d.SubParameter {
		sp, err := r.Parameter(sd)
		if err != nil {
			return nil, fmt.Errorf("sub parameter %s: %w", sd.Name, err)
		}
		p.SubParameter = append(p.SubParameter, sp)
	}
	return p, nil
}

// parseFunc accepts either a ParseFunc or a core.Parser under key.
func (r *Registry) parseFunc(key string) (core.ParseFunc, error) {
	if key == "" {
		return nil, nil
	}
	r.mu.RLock()
	fn, ok := r.funcs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not registered", core.ErrNotCallable, key)
	}
	switch f := fn.(type) {
	case core.ParseFunc:
		return f, nil
	case core.Parser:
		return func(ctx context.Context, value any, _ core.Bot, _ *core.Event, _ *core.Context) (any, error) {
			return f.Parse(ctx, value, nil)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s has type %T", core.ErrNotCallable, key, fn)
}

func resolve[T any](r *Registry, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, nil
	}
	r.mu.RLock()
	fn, ok := r.funcs[key]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s is not registered", core.ErrNotCallable, key)
	}
	f, ok := fn.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s has type %T, want %T", core.ErrNotCallable, key, fn, zero)
	}
	return f, nil
}

func find(params []*core.Parameter, name string) *core.Parameter {
	for _, p := range params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// merge copies the fields set in d from src onto dst.
func merge(dst, src *core.Parameter, d core.ParameterDescriptor) {
	if d.Message != nil {
		dst.Message = src.Message
		dst.MessageFunc = src.MessageFunc
		dst.PlatformMessage = src.PlatformMessage
	}
	if d.PlatformMessage != nil {
		dst.PlatformMessage = src.PlatformMessage
	}
	if d.MessageFunc != "" {
		dst.MessageFunc = src.MessageFunc
	}
	if d.Parser != nil {
		dst.Parser = src.Parser
	}
	if d.ParseFunc != "" {
		dst.ParseFunc = src.ParseFunc
	}
	if d.Reaction != "" {
		dst.Reaction = src.Reaction
	}
	if d.Condition != "" {
		dst.Condition = src.Condition
	}
	if d.Preaction != "" {
		dst.Preaction = src.Preaction
	}
	if d.Apply != "" {
		dst.Apply = src.Apply
	}
	if d.While != "" {
		dst.While = src.While
	}
	if d.SubSkill != nil {
		dst.SubSkill = src.SubSkill
	}
	if d.SubParameter != nil {
		dst.SubParameter = src.SubParameter
	}
	if d.List != nil {
		dst.List = src.List
	}
}

func messagesHaveTemplate(msgs []core.Message) bool {
	for _, m := range msgs {
		if util.ContainsTemplate(map[string]any(m)) {
			return true
		}
	}
	return false
}

// TemplateState is the data exposed to message templates.
func TemplateState(conv *core.Context) map[string]any {
	return map[string]any{
		"confirmed":  conv.Confirmed,
		"heard":      conv.Heard,
		"global":     conv.Global,
		"intent":     conv.Intent,
		"confirming": conv.Confirming,
	}
}

// RenderMessages renders the templates in msgs against conv.
func RenderMessages(msgs []core.Message, conv *core.Context) ([]core.Message, error) {
	state := TemplateState(conv)
	out := make([]core.Message, 0, len(msgs))
	for _, m := range msgs {
		v, err := util.RenderValue(map[string]any(m), state)
		if err != nil {
			return nil, fmt.Errorf("render message: %w", err)
		}
		out = append(out, core.Message(v.(map[string]any)))
	}
	return out, nil
}

func templateMessages(msgs []core.Message) core.MessageFunc {
	return func(_ context.Context, _ core.Bot, _ *core.Event, conv *core.Context) ([]core.Message, error) {
		return RenderMessages(msgs, conv)
	}
}
