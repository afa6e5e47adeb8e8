package flow

import (
	"context"
	"fmt"

	"github.com/hupe1980/botmesh/core"
)

// Variant is one flow prologue bound to an event and a context.
type Variant interface {
	// Run processes the event. A nil context means there is nothing to
	// persist.
	Run(ctx context.Context) (*core.Context, error)
	// Bot returns the handle given to skill hooks.
	Bot() core.Bot
}

// Select binds the skill of conv and returns the named variant.
func (e *Engine) Select(name string, event *core.Event, conv *core.Context) (Variant, error) {
	f, err := e.newFlow(event, conv)
	if err != nil {
		return nil, err
	}

	switch name {
	case core.FlowStartConversation:
		return &startConversation{f}, nil
	case core.FlowReply:
		return &reply{f}, nil
	case core.FlowBtw:
		return &btw{f}, nil
	case core.FlowPush:
		return &push{f}, nil
	case core.FlowBeacon, core.FlowActiveEvent:
		return &beacon{f}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFlow, name)
}
