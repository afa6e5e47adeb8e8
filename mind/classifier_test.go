package mind

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
)

type mockNLU struct {
	mock.Mock
}

func (m *mockNLU) IdentifyIntent(ctx context.Context, text string, opts core.IntentOptions) (core.Intent, error) {
	args := m.Called(ctx, text, opts)
	return args.Get(0).(core.Intent), args.Error(1)
}

type skillSet map[string]bool

func (s skillSet) Has(name string) bool { return s[name] }

// fitParser accepts values listed per parameter and rejects the rest.
type fitParser map[string][]string

func (f fitParser) ParseParameter(_ context.Context, name string, value any, _ bool) (any, error) {
	for _, v := range f[name] {
		if v == value {
			return v, nil
		}
	}
	return nil, core.Reject("be_parser__should_be_in_list")
}

func orderConv(flow string) *core.Context {
	conv := core.NewContext(core.ContextOptions{Flow: flow, Intent: core.Intent{Name: "order"}})
	conv.Skill = &core.Skill{
		Type: "order",
		RequiredParameters: []*core.Parameter{
			{Name: "pizza"},
			{Name: "size", SubSkill: []string{"size_guide"}},
		},
		OptionalParameters: []*core.Parameter{{Name: "crust"}},
	}
	return conv
}

func newClassifier(nlu core.IntentClassifier) *Classifier {
	return New(nlu, skillSet{"order": true, "menu": true, "size_guide": true}, func(o *Options) {
		o.ModifyPreviousParameterIntent = "modify_previous"
	})
}

func TestIdentify_IntentPostback(t *testing.T) {
	c := newClassifier(&mockNLU{})
	conv := orderConv(core.FlowReply)

	m, err := c.Identify(context.Background(), map[string]any{"data": `{"_type":"intent","intent":{"name":"menu"}}`}, State{Conv: conv})
	require.NoError(t, err)
	assert.Equal(t, ChangeIntent, m.Result)
	assert.Equal(t, "menu", m.Intent.Name)

	m, err = c.Identify(context.Background(), map[string]any{"data": `{"_type":"intent","intent":{"name":"order"}}`}, State{Conv: conv})
	require.NoError(t, err)
	assert.Equal(t, RestartConversation, m.Result)

	m, err = c.Identify(context.Background(), map[string]any{"data": `{"_type":"intent","intent":{"name":"modify_previous"}}`}, State{Conv: conv})
	require.NoError(t, err)
	assert.Equal(t, ModifyPreviousParameter, m.Result)

	_, err = c.Identify(context.Background(), map[string]any{"data": `{"_type":"intent","intent":{}}`}, State{Conv: conv})
	assert.ErrorIs(t, err, core.ErrInvalidIntentPostback)
}

func TestIdentify_NonText(t *testing.T) {
	nlu := &mockNLU{}
	c := newClassifier(nlu)

	m, err := c.Identify(context.Background(), map[string]any{"type": "sticker"}, State{Conv: orderConv(core.FlowReply)})
	require.NoError(t, err)
	assert.Equal(t, NoIdea, m.Result)
	assert.Equal(t, "input.unknown", m.Intent.Name)
	nlu.AssertNotCalled(t, "IdentifyIntent", mock.Anything, mock.Anything, mock.Anything)
}

func TestIdentify_ClassifiedIntents(t *testing.T) {
	tests := []struct {
		name       string
		intent     string
		flow       string
		confirming string
		want       Result
		wantIntent string
	}{
		{name: "modify previous", intent: "modify_previous", flow: core.FlowReply, want: ModifyPreviousParameter, wantIntent: "modify_previous"},
		{name: "unknown skill keeps intent", intent: "weather", flow: core.FlowBtw, want: NoIdea, wantIntent: "order"},
		{name: "dig", intent: "size_guide", flow: core.FlowReply, confirming: "size", want: Dig, wantIntent: "size_guide"},
		{name: "sub skill outside reply", intent: "size_guide", flow: core.FlowBtw, confirming: "size", want: ChangeIntent, wantIntent: "size_guide"},
		{name: "restart", intent: "order", flow: core.FlowBtw, want: RestartConversation, wantIntent: "order"},
		{name: "change", intent: "menu", flow: core.FlowReply, confirming: "pizza", want: ChangeIntent, wantIntent: "menu"},
		{name: "default in reply", intent: "input.unknown", flow: core.FlowReply, confirming: "pizza", want: NoIdea, wantIntent: "input.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nlu := &mockNLU{}
			nlu.On("IdentifyIntent", mock.Anything, "text", core.IntentOptions{SessionID: "U1", ChannelID: "C1"}).
				Return(core.Intent{Name: tt.intent}, nil)

			conv := orderConv(tt.flow)
			conv.Confirming = tt.confirming

			m, err := newClassifier(nlu).Identify(context.Background(), "text", State{Conv: conv, SessionID: "U1", ChannelID: "C1"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Result)
			assert.Equal(t, tt.wantIntent, m.Intent.Name)
			nlu.AssertExpectations(t)
		})
	}
}

func TestIdentify_ChangeParameter(t *testing.T) {
	nlu := &mockNLU{}
	nlu.On("IdentifyIntent", mock.Anything, mock.Anything, mock.Anything).Return(core.Intent{Name: "input.unknown"}, nil)
	c := newClassifier(nlu)

	parser := fitParser{"pizza": {"L"}, "size": {"L"}, "crust": {"thin"}}

	conv := orderConv(core.FlowBtw)
	m, err := c.Identify(context.Background(), "thin", State{Conv: conv, Parser: parser})
	require.NoError(t, err)
	assert.Equal(t, ChangeParameter, m.Result)
	assert.Equal(t, &Parameter{Name: "crust", Value: "thin"}, m.Parameter)
	assert.Empty(t, m.Ambiguous)

	m, err = c.Identify(context.Background(), "L", State{Conv: conv, Parser: parser})
	require.NoError(t, err)
	assert.Equal(t, "pizza", m.Parameter.Name, "first declared parameter wins")
	assert.Equal(t, []string{"pizza", "size"}, m.Ambiguous)

	conv.Confirming = "pizza"
	m, err = c.Identify(context.Background(), "L", State{Conv: conv, Parser: parser})
	require.NoError(t, err)
	assert.Equal(t, "size", m.Parameter.Name, "the confirming parameter is not a candidate")

	m, err = c.Identify(context.Background(), "XL", State{Conv: conv, Parser: parser})
	require.NoError(t, err)
	assert.Equal(t, NoIdea, m.Result)
}

type failingParser struct{}

func (failingParser) ParseParameter(context.Context, string, any, bool) (any, error) {
	return nil, errors.New("backend down")
}

func TestIdentify_FitErrorPropagates(t *testing.T) {
	nlu := &mockNLU{}
	nlu.On("IdentifyIntent", mock.Anything, mock.Anything, mock.Anything).Return(core.Intent{Name: "input.unknown"}, nil)

	_, err := newClassifier(nlu).Identify(context.Background(), "x", State{Conv: orderConv(core.FlowBtw), Parser: failingParser{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
}
