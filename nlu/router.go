package nlu

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/botmesh/core"
)

// Agent binds a classifier to a messenger channel.
type Agent struct {
	ChannelID  string
	Classifier core.IntentClassifier
}

// Router dispatches to the agent configured for the channel of a request.
type Router struct {
	agents []Agent
}

var _ core.IntentClassifier = (*Router)(nil)

// NewRouter creates a Router. With more than one agent every agent needs a
// channel id.
func NewRouter(agents ...Agent) (*Router, error) {
	if len(agents) == 0 {
		return nil, core.ErrNoAgent
	}
	if len(agents) > 1 {
		for i, a := range agents {
			if a.ChannelID == "" {
				return nil, fmt.Errorf("agent %d: channel id is required with multiple agents", i)
			}
		}
	}
	return &Router{agents: agents}, nil
}

// IdentifyIntent implements core.IntentClassifier.
func (r *Router) IdentifyIntent(ctx context.Context, text string, opts core.IntentOptions) (core.Intent, error) {
	if len(r.agents) == 1 {
		return r.agents[0].Classifier.IdentifyIntent(ctx, text, opts)
	}
	if opts.ChannelID == "" {
		return core.Intent{}, errors.Join(core.ErrNoAgent, errors.New("channel id is not set while there are multiple agents"))
	}
	for _, a := range r.agents {
		if a.ChannelID == opts.ChannelID {
			return a.Classifier.IdentifyIntent(ctx, text, opts)
		}
	}
	return core.Intent{}, fmt.Errorf("%w for channel %s", core.ErrNoAgent, opts.ChannelID)
}
