package param

import (
	"context"
	"fmt"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// IdentifyToConfirm returns the names of required parameters not yet
// present in confirmed, in declaration order.
func IdentifyToConfirm(required []*core.Parameter, confirmed map[string]any) []string {
	out := []string{}
	for _, p := range required {
		if _, ok := confirmed[p.Name]; !ok {
			out = append(out, p.Name)
		}
	}
	return out
}

// Turn bundles the handles a resolver passes to skill hooks.
type Turn struct {
	Bot   core.Bot
	Event *core.Event
	Conv  *core.Context
}

// Options configures a Resolver.
type Options struct {
	Logger logging.Logger
}

// Resolver picks the next parameter to collect.
type Resolver struct {
	logger logging.Logger
}

// New creates a Resolver.
func New(optFns ...func(o *Options)) *Resolver {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{logger: opts.Logger}
}

// Pop returns the parameter at the head of ToConfirm that should be asked
// next, or nil when nothing is left. Parameters whose condition (or, for
// list parameters, while hook) returns false are moved to
// Previous.Processed. A parameter with sub-parameters checks the current
// context out onto the parent stack and continues with its nested names.
func (r *Resolver) Pop(ctx context.Context, t Turn) (*core.Parameter, error) {
	conv := t.Conv
	for len(conv.ToConfirm) > 0 {
		name := conv.ToConfirm[0]
		p, typ := conv.Skill.Lookup(conv, name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
		}

		if p.Condition != nil {
			ok, err := p.Condition(ctx, t.Bot, t.Event, conv)
			if err != nil {
				return nil, fmt.Errorf("condition of %s: %w", name, err)
			}
			if !ok {
				r.logger.Debug("Parameter skipped by condition", "parameter", name)
				skip(conv, name)
				continue
			}
		}

		if p.List != nil && p.While != nil {
			ok, err := p.While(ctx, t.Bot, t.Event, conv)
			if err != nil {
				return nil, fmt.Errorf("while of %s: %w", name, err)
			}
			if !ok {
				r.logger.Debug("List parameter completed by while", "parameter", name)
				skip(conv, name)
				continue
			}
		}

		if len(p.SubParameter) > 0 {
			if p.Preaction != nil {
				if err := p.Preaction(ctx, t.Bot, t.Event, conv); err != nil {
					return nil, fmt.Errorf("preaction of %s: %w", name, err)
				}
			}
			CheckoutSubParameters(conv, typ, p)
			r.logger.Debug("Sub parameter collection started", "parameter", name)
			continue
		}

		return p, nil
	}
	return nil, nil
}

// CheckoutSubParameters saves conv as a sub_parameter parent and turns it
// into a fresh collection of p's nested parameters.
func CheckoutSubParameters(conv *core.Context, typ core.ParameterType, p *core.Parameter) {
	conv.Confirming = p.Name

	parent := conv.Clone()
	parent.Skill = nil
	parent.MessageQueue = []core.Message{}
	parent.Reason = core.ReasonSubParameter
	conv.Parent = append([]*core.Context{parent}, conv.Parent...)

	conv.SubParameter = true
	conv.ToConfirm = p.SubParameterNames()
	conv.Confirmed = map[string]any{}
	conv.ParentParameter = core.ParentParameter{Type: typ, Name: p.Name, List: p.List != nil}
}

func skip(conv *core.Context, name string) {
	conv.Previous.Processed = append([]string{name}, conv.Previous.Processed...)
	conv.ToConfirm = conv.ToConfirm[1:]
}
