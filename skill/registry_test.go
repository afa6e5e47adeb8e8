package skill

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/internal/testutil"
)

const orderYAML = `
type: order
take_over_parameter: true
required_parameter:
  - name: pizza
    message:
      - type: text
        text: Which pizza?
    parser:
      type: list
      policy:
        list: [Margherita, Marinara]
    reaction: pizza_reaction
  - name: address
    sub_parameter:
      - name: zip
        message:
          - type: text
            text: Zip code?
      - name: street
        message:
          - type: text
            text: Street?
optional_parameter:
  - name: note
    condition: never
finish_message:
  - type: text
    text: "Thanks, one {{.confirmed.pizza}} is on its way."
`

func never(context.Context, core.Bot, *core.Event, *core.Context) (bool, error) { return false, nil }

func pizzaReaction(context.Context, error, any, core.Bot, *core.Event, *core.Context) error {
	return nil
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	require.NoError(t, r.RegisterFunc("never", core.ConditionFunc(never)))
	require.NoError(t, r.RegisterFunc("pizza_reaction", core.ReactionFunc(pizzaReaction)))
	return r
}

func TestRegistry_Builtin(t *testing.T) {
	r := New()
	assert.True(t, r.Has(core.DefaultSkillType))

	s, err := r.Instantiate(core.DefaultSkillType, core.Intent{})
	require.NoError(t, err)

	bot := &testutil.RecordingBot{}
	conv := core.NewContext(core.ContextOptions{Intent: core.Intent{Fulfillment: []core.Message{core.TextMessage("Hello!")}}})
	require.NoError(t, s.Finish(context.Background(), bot, nil, conv))
	assert.Equal(t, []core.Message{core.TextMessage("Hello!")}, bot.Replies)

	bot = &testutil.RecordingBot{}
	require.NoError(t, s.Finish(context.Background(), bot, nil, core.NewContext(core.ContextOptions{})))
	assert.Empty(t, bot.Replies)
}

func TestRegistry_InstantiateUnknown(t *testing.T) {
	_, err := New().Instantiate("weather", core.Intent{})
	assert.ErrorIs(t, err, core.ErrSkillNotFound)
}

func TestRegistry_RegisterFuncRejectsNonHooks(t *testing.T) {
	err := New().RegisterFunc("bad", func() {})
	assert.ErrorIs(t, err, core.ErrNotCallable)
}

func TestRegistry_Descriptor(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "order.yaml"), []byte(orderYAML), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o600))

	r := newRegistry(t)
	types, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"order"}, types)
	assert.Equal(t, []string{core.DefaultSkillType, "order"}, r.Names())

	s, err := r.Instantiate("order", core.Intent{Name: "order"})
	require.NoError(t, err)
	assert.True(t, s.TakeOverParameter)
	assert.True(t, s.ClearsContextOnFinish())
	require.Len(t, s.RequiredParameters, 2)
	assert.Equal(t, "list", s.RequiredParameters[0].Parser.Type)
	assert.NotNil(t, s.RequiredParameters[0].Reaction)
	assert.Equal(t, []string{"zip", "street"}, s.RequiredParameters[1].SubParameterNames())
	assert.NotNil(t, s.OptionalParameters[0].Condition)

	conv := core.NewContext(core.ContextOptions{})
	conv.Confirmed["pizza"] = "Margherita"
	bot := &testutil.RecordingBot{}
	require.NoError(t, s.Finish(context.Background(), bot, nil, conv))
	assert.Equal(t, "Thanks, one Margherita is on its way.", bot.Replies[0].Text())

	other, err := r.Instantiate("order", core.Intent{Name: "order"})
	require.NoError(t, err)
	assert.NotSame(t, s.RequiredParameters[0], other.RequiredParameters[0], "each instance is fresh")
}

func TestRegistry_DescriptorMissingFunc(t *testing.T) {
	d, err := ParseDescriptor([]byte("type: x\nrequired_parameter:\n  - name: a\n    condition: missing\n"))
	require.NoError(t, err)
	assert.ErrorIs(t, New().RegisterDescriptor(d), core.ErrNotCallable)
}

func TestDescriptor_Validate(t *testing.T) {
	_, err := ParseDescriptor([]byte("required_parameter: []"))
	assert.Error(t, err)

	_, err = ParseDescriptor([]byte("type: x\nrequired_parameter:\n  - name: a\n  - name: a\n"))
	assert.ErrorContains(t, err, "duplicate parameter")

	_, err = ParseDescriptor([]byte("type: x\nrequired_parameter:\n  - name: a\n    list:\n      order: random\n"))
	assert.ErrorContains(t, err, "list order")
}

func TestRegistry_Revive(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.RegisterDescriptor(mustParse(t, orderYAML)))

	history := []core.ParamChange{
		{Type: core.DynamicParameter, Name: "drink", Param: core.ParameterDescriptor{
			Message: []core.Message{core.TextMessage("Any drink?")},
		}},
		{Type: core.RequiredParameter, Name: "pizza", Param: core.ParameterDescriptor{
			Message: []core.Message{core.TextMessage("We only have Margherita or Marinara.")},
		}},
		{Type: core.DynamicParameter, Name: "drink", Param: core.ParameterDescriptor{
			Condition: "never",
		}},
	}

	s, err := r.Instantiate("order", core.Intent{Name: "order"})
	require.NoError(t, err)
	require.NoError(t, r.Revive(s, history))

	pizza := s.RequiredParameters[0]
	assert.Equal(t, "We only have Margherita or Marinara.", pizza.Message[0].Text())
	assert.Equal(t, "list", pizza.Parser.Type, "fields not in the change are kept")

	require.Len(t, s.DynamicParameters, 1)
	drink := s.DynamicParameters[0]
	assert.Equal(t, "drink", drink.Name)
	assert.Equal(t, "Any drink?", drink.Message[0].Text())
	assert.NotNil(t, drink.Condition)

	assert.ErrorIs(t, r.Revive(s, []core.ParamChange{{Type: core.DynamicParameter, Name: "x", Param: core.ParameterDescriptor{Apply: "nope"}}}), core.ErrNotCallable)
}

func TestRegistry_TemplateMessage(t *testing.T) {
	p, err := New().Parameter(core.ParameterDescriptor{
		Name:    "size",
		Message: []core.Message{{"type": "text", "text": "Which size for your {{.confirmed.pizza}}?"}},
	})
	require.NoError(t, err)
	require.NotNil(t, p.MessageFunc)

	conv := core.NewContext(core.ContextOptions{})
	conv.Confirmed["pizza"] = "Marinara"
	msgs, err := p.MessageFunc(context.Background(), nil, nil, conv)
	require.NoError(t, err)
	assert.Equal(t, "Which size for your Marinara?", msgs[0].Text())
}

func mustParse(t *testing.T, y string) *Descriptor {
	t.Helper()
	d, err := ParseDescriptor([]byte(y))
	require.NoError(t, err)
	return d
}
