package core

import "context"

// DefaultSkillType is the type of the built-in fallback skill. Conversations
// on it are never reported as aborted.
const DefaultSkillType = "builtin_default"

// ParameterType tells where a parameter is declared.
type ParameterType string

const (
	RequiredParameter ParameterType = "required_parameter"
	OptionalParameter ParameterType = "optional_parameter"
	DynamicParameter  ParameterType = "dynamic_parameter"
	SubParameter      ParameterType = "sub_parameter"
	NotApplicable     ParameterType = "not_applicable"
)

// Hook signatures. Every hook receives the bot handle, the event being
// processed and the live conversation context. The exception is a ParseFunc
// run while a payload is fitted to other parameters: it gets a private copy
// of the context and a bot whose queued messages are dropped.
type (
	HookFunc      func(ctx context.Context, bot Bot, event *Event, conv *Context) error
	ConditionFunc func(ctx context.Context, bot Bot, event *Event, conv *Context) (bool, error)
	ApplyFunc     func(ctx context.Context, bot Bot, event *Event, conv *Context) (any, error)
	MessageFunc   func(ctx context.Context, bot Bot, event *Event, conv *Context) ([]Message, error)
	ParseFunc     func(ctx context.Context, value any, bot Bot, event *Event, conv *Context) (any, error)
	ReactionFunc  func(ctx context.Context, parseErr error, value any, bot Bot, event *Event, conv *Context) error
	AbendFunc     func(ctx context.Context, cause error, bot Bot, event *Event, conv *Context) error
)

// ParserSpec selects a built-in parser and its policy.
type ParserSpec struct {
	Type   string         `json:"type" yaml:"type"`
	Policy map[string]any `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// ListPolicy marks a parameter that accumulates several values.
type ListPolicy struct {
	// Order is "new" (newest first, the default) or "old".
	Order string `json:"order,omitempty" yaml:"order,omitempty"`
}

// Parameter is the runtime form of a parameter declaration.
type Parameter struct {
	Name            string
	Message         []Message
	PlatformMessage map[string][]Message
	MessageFunc     MessageFunc
	Parser          *ParserSpec
	ParseFunc       ParseFunc
	Reaction        ReactionFunc
	Condition       ConditionFunc
	Preaction       HookFunc
	Apply           ApplyFunc
	While           ConditionFunc
	SubSkill        []string
	SubParameter    []*Parameter
	List            *ListPolicy
}

// HasSubSkill reports whether intent may be dug into while this parameter
// is being confirmed.
func (p *Parameter) HasSubSkill(intent string) bool {
	for _, s := range p.SubSkill {
		if s == intent {
			return true
		}
	}
	return false
}

// SubParameterNames returns the names of the nested parameters in order.
func (p *Parameter) SubParameterNames() []string {
	names := make([]string, 0, len(p.SubParameter))
	for _, sp := range p.SubParameter {
		names = append(names, sp.Name)
	}
	return names
}

// ParameterDescriptor is the data-only form of a parameter. Behaviour is
// referenced by registry keys so descriptors survive serialisation (YAML
// skill files, the param change history of a Context).
type ParameterDescriptor struct {
	Name            string                `json:"name,omitempty" yaml:"name,omitempty"`
	Message         []Message             `json:"message,omitempty" yaml:"message,omitempty"`
	PlatformMessage map[string][]Message  `json:"platform_message,omitempty" yaml:"platform_message,omitempty"`
	MessageFunc     string                `json:"message_func,omitempty" yaml:"message_func,omitempty"`
	Parser          *ParserSpec           `json:"parser,omitempty" yaml:"parser,omitempty"`
	ParseFunc       string                `json:"parse_func,omitempty" yaml:"parse_func,omitempty"`
	Reaction        string                `json:"reaction,omitempty" yaml:"reaction,omitempty"`
	Condition       string                `json:"condition,omitempty" yaml:"condition,omitempty"`
	Preaction       string                `json:"preaction,omitempty" yaml:"preaction,omitempty"`
	Apply           string                `json:"apply,omitempty" yaml:"apply,omitempty"`
	While           string                `json:"while,omitempty" yaml:"while,omitempty"`
	SubSkill        []string              `json:"sub_skill,omitempty" yaml:"sub_skill,omitempty"`
	SubParameter    []ParameterDescriptor `json:"sub_parameter,omitempty" yaml:"sub_parameter,omitempty"`
	List            *ListPolicy           `json:"list,omitempty" yaml:"list,omitempty"`
}

// ParamChange is one entry of Context.ParamChangeHistory.
type ParamChange struct {
	Type  ParameterType       `json:"type"`
	Name  string              `json:"name"`
	Param ParameterDescriptor `json:"param"`
}

// Skill is an instantiated skill: ordered parameter declarations plus
// lifecycle hooks. A Skill is created per turn and never shared between
// conversations.
type Skill struct {
	Type               string
	RequiredParameters []*Parameter
	OptionalParameters []*Parameter
	DynamicParameters  []*Parameter

	// TakeOverParameter copies global, confirmed and heard from the previous
	// skill when this skill is entered through an intent change.
	TakeOverParameter bool
	// ClearContextOnFinish defaults to true when nil.
	ClearContextOnFinish *bool

	Begin   HookFunc
	Finish  HookFunc
	OnAbort HookFunc
	OnAbend AbendFunc
}

// ClearsContextOnFinish reports the effective clear_context_on_finish flag.
func (s *Skill) ClearsContextOnFinish() bool {
	return s.ClearContextOnFinish == nil || *s.ClearContextOnFinish
}

// Parameters returns the list holding parameters of the given type.
func (s *Skill) Parameters(t ParameterType) []*Parameter {
	switch t {
	case RequiredParameter:
		return s.RequiredParameters
	case OptionalParameter:
		return s.OptionalParameters
	case DynamicParameter:
		return s.DynamicParameters
	}
	return nil
}

// SetParameters replaces the list holding parameters of the given type.
func (s *Skill) SetParameters(t ParameterType, params []*Parameter) {
	switch t {
	case RequiredParameter:
		s.RequiredParameters = params
	case OptionalParameter:
		s.OptionalParameters = params
	case DynamicParameter:
		s.DynamicParameters = params
	}
}

// Lookup finds a parameter by name. While a sub-parameter collection is
// active the nested container is searched first; its location is recovered
// from the names the saved parents were confirming.
func (s *Skill) Lookup(conv *Context, name string) (*Parameter, ParameterType) {
	if s == nil {
		return nil, NotApplicable
	}
	if conv != nil && conv.SubParameter {
		if container := s.subParameterContainer(conv); container != nil {
			if p := findParameter(container.SubParameter, name); p != nil {
				return p, SubParameter
			}
		}
	}
	for _, t := range []ParameterType{RequiredParameter, OptionalParameter, DynamicParameter} {
		if p := findParameter(s.Parameters(t), name); p != nil {
			return p, t
		}
	}
	return nil, NotApplicable
}

func (s *Skill) subParameterContainer(conv *Context) *Parameter {
	var path []string
	for _, parent := range conv.Parent {
		if parent.Reason != ReasonSubParameter {
			break
		}
		path = append([]string{parent.Confirming}, path...)
	}
	if len(path) == 0 {
		return nil
	}
	var p *Parameter
	for _, t := range []ParameterType{RequiredParameter, OptionalParameter, DynamicParameter} {
		if p = findParameter(s.Parameters(t), path[0]); p != nil {
			break
		}
	}
	for _, name := range path[1:] {
		if p == nil {
			return nil
		}
		p = findParameter(p.SubParameter, name)
	}
	return p
}

func findParameter(params []*Parameter, name string) *Parameter {
	for _, p := range params {
		if p.Name == name {
			return p
		}
	}
	return nil
}
