package testutil

import "github.com/hupe1980/botmesh/core"

// ContextBuilder provides a fluent way to create conversation contexts in
// tests.
type ContextBuilder struct {
	conv *core.Context
}

// NewContextBuilder starts a context for intent on the given flow.
func NewContextBuilder(intent, flow string) *ContextBuilder {
	return &ContextBuilder{conv: core.NewContext(core.ContextOptions{
		Intent: core.Intent{Name: intent},
		Flow:   flow,
	})}
}

// Skill binds a skill instance (chainable).
func (b *ContextBuilder) Skill(s *core.Skill) *ContextBuilder {
	b.conv.Skill = s
	b.conv.SkillType = s.Type
	return b
}

// Confirmed records a confirmed value (chainable).
func (b *ContextBuilder) Confirmed(name string, v any) *ContextBuilder {
	b.conv.Confirmed[name] = v
	return b
}

// Confirming sets the parameter being confirmed (chainable).
func (b *ContextBuilder) Confirming(name string) *ContextBuilder {
	b.conv.Confirming = name
	return b
}

// ToConfirm sets the queue of parameters to collect (chainable).
func (b *ContextBuilder) ToConfirm(names ...string) *ContextBuilder {
	b.conv.ToConfirm = names
	return b
}

// Event sets the event being processed (chainable).
func (b *ContextBuilder) Event(ev *core.Event) *ContextBuilder {
	b.conv.Event = ev
	return b
}

// Build returns the context.
func (b *ContextBuilder) Build() *core.Context { return b.conv }
