package flow

import (
	"context"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
)

// beacon runs the skill mapped to a beacon or active event. The dispatcher
// sets the intent before the flow is selected.
type beacon struct{ *Flow }

// Run launches the mapped skill.
func (v *beacon) Run(ctx context.Context) (*core.Context, error) {
	if v.conv.Skill == nil {
		return nil, core.ErrSkillNotFound
	}
	v.hear(ctx)
	v.status(ctx, logging.StatusLaunched, nil)
	if err := v.begin(ctx); err != nil {
		return nil, err
	}
	return v.Respond(ctx)
}
