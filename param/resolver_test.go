package param

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
)

func never(context.Context, core.Bot, *core.Event, *core.Context) (bool, error) { return false, nil }

func TestIdentifyToConfirm(t *testing.T) {
	required := []*core.Parameter{{Name: "pizza"}, {Name: "size"}, {Name: "address"}}

	assert.Equal(t, []string{"pizza", "size", "address"}, IdentifyToConfirm(required, map[string]any{}))
	assert.Equal(t, []string{"address"}, IdentifyToConfirm(required, map[string]any{"pizza": "m", "size": "L"}))
	assert.Empty(t, IdentifyToConfirm(nil, map[string]any{}))
	assert.NotNil(t, IdentifyToConfirm(nil, nil))
}

func TestPop_ReturnsHead(t *testing.T) {
	conv := core.NewContext(core.ContextOptions{})
	conv.Skill = &core.Skill{RequiredParameters: []*core.Parameter{{Name: "pizza"}, {Name: "size"}}}
	conv.ToConfirm = []string{"pizza", "size"}

	p, err := New().Pop(context.Background(), Turn{Conv: conv})
	require.NoError(t, err)
	assert.Equal(t, "pizza", p.Name)
	assert.Equal(t, []string{"pizza", "size"}, conv.ToConfirm, "pop does not consume the head")
}

func TestPop_SkipsByConditionAndWhile(t *testing.T) {
	conv := core.NewContext(core.ContextOptions{})
	conv.Skill = &core.Skill{RequiredParameters: []*core.Parameter{
		{Name: "coupon", Condition: never},
		{Name: "toppings", List: &core.ListPolicy{}, While: never},
		{Name: "size"},
	}}
	conv.ToConfirm = []string{"coupon", "toppings", "size"}

	p, err := New().Pop(context.Background(), Turn{Conv: conv})
	require.NoError(t, err)
	assert.Equal(t, "size", p.Name)
	assert.Equal(t, []string{"size"}, conv.ToConfirm)
	assert.Equal(t, []string{"toppings", "coupon"}, conv.Previous.Processed)
}

func TestPop_Empty(t *testing.T) {
	conv := core.NewContext(core.ContextOptions{})
	conv.Skill = &core.Skill{}

	p, err := New().Pop(context.Background(), Turn{Conv: conv})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPop_UnknownParameter(t *testing.T) {
	conv := core.NewContext(core.ContextOptions{})
	conv.Skill = &core.Skill{}
	conv.ToConfirm = []string{"ghost"}

	_, err := New().Pop(context.Background(), Turn{Conv: conv})
	assert.ErrorIs(t, err, core.ErrParameterNotFound)
}

func TestPop_SubParameterCheckout(t *testing.T) {
	preactions := 0
	address := &core.Parameter{
		Name: "address",
		Preaction: func(context.Context, core.Bot, *core.Event, *core.Context) error {
			preactions++
			return nil
		},
		SubParameter: []*core.Parameter{{Name: "zip"}, {Name: "street"}},
	}

	conv := core.NewContext(core.ContextOptions{Intent: core.Intent{Name: "order"}})
	conv.Skill = &core.Skill{Type: "order", RequiredParameters: []*core.Parameter{{Name: "pizza"}, address}}
	conv.Confirmed["pizza"] = "margherita"
	conv.ToConfirm = []string{"address"}
	conv.MessageQueue = []core.Message{core.TextMessage("queued")}

	p, err := New().Pop(context.Background(), Turn{Conv: conv})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "zip", p.Name)
	assert.Equal(t, 1, preactions)

	assert.True(t, conv.SubParameter)
	assert.Equal(t, []string{"zip", "street"}, conv.ToConfirm)
	assert.Empty(t, conv.Confirmed)
	assert.Equal(t, core.ParentParameter{Type: core.RequiredParameter, Name: "address"}, conv.ParentParameter)

	require.Len(t, conv.Parent, 1)
	parent := conv.Parent[0]
	assert.Equal(t, core.ReasonSubParameter, parent.Reason)
	assert.Equal(t, "address", parent.Confirming)
	assert.Nil(t, parent.Skill)
	assert.Empty(t, parent.MessageQueue)
	assert.Equal(t, "margherita", parent.Confirmed["pizza"])
	assert.Equal(t, "order", parent.SkillType)
}
