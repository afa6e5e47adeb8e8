package nlu

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/internal/testutil"
	"github.com/hupe1980/botmesh/model"
)

func TestRouter(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewFakeClassifier(map[string]string{"hi": "greet_a"})
	b := testutil.NewFakeClassifier(map[string]string{"hi": "greet_b"})

	t.Run("single agent ignores channel", func(t *testing.T) {
		r, err := NewRouter(Agent{Classifier: a})
		require.NoError(t, err)
		intent, err := r.IdentifyIntent(ctx, "hi", core.IntentOptions{ChannelID: "other"})
		require.NoError(t, err)
		assert.Equal(t, "greet_a", intent.Name)
	})

	t.Run("routes by channel", func(t *testing.T) {
		r, err := NewRouter(Agent{ChannelID: "A", Classifier: a}, Agent{ChannelID: "B", Classifier: b})
		require.NoError(t, err)

		intent, err := r.IdentifyIntent(ctx, "hi", core.IntentOptions{ChannelID: "B"})
		require.NoError(t, err)
		assert.Equal(t, "greet_b", intent.Name)

		_, err = r.IdentifyIntent(ctx, "hi", core.IntentOptions{ChannelID: "C"})
		assert.ErrorIs(t, err, core.ErrNoAgent)

		_, err = r.IdentifyIntent(ctx, "hi", core.IntentOptions{})
		assert.ErrorIs(t, err, core.ErrNoAgent)
	})

	t.Run("multiple agents need channel ids", func(t *testing.T) {
		_, err := NewRouter(Agent{ChannelID: "A", Classifier: a}, Agent{Classifier: b})
		assert.Error(t, err)

		_, err = NewRouter()
		assert.ErrorIs(t, err, core.ErrNoAgent)
	})
}

func TestLLM(t *testing.T) {
	ctx := context.Background()
	m := model.NewMockModel("test")
	m.AddResponse("Margherita in M please", "```json\n{\"intent\":\"order\",\"parameters\":{\"pizza\":\"Margherita\",\"size\":\"M\",\"color\":\"red\"}}\n```")
	m.AddResponse("what's up", `{"intent":"smalltalk"}`)
	m.AddResponse("gibberish", "I am not sure.")
	m.AddResponse("numbers", `{"intent":42}`)

	c := NewLLM(m, []IntentSpec{
		{Name: "order", Description: "Order a pizza", Examples: []string{"I want pizza"}, Parameters: []string{"pizza", "size"}},
	})

	intent, err := c.IdentifyIntent(ctx, "Margherita in M please", core.IntentOptions{Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "order", intent.Name)
	assert.Equal(t, map[string]any{"pizza": "Margherita", "size": "M"}, intent.Parameters)

	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	assert.Contains(t, reqs[0].Instructions, "- order: Order a pizza")
	assert.Contains(t, reqs[0].Instructions, `language "en"`)
	assert.Contains(t, reqs[0].Instructions, `"enum":["order","input.unknown"]`)

	intent, err = c.IdentifyIntent(ctx, "what's up", core.IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "input.unknown", intent.Name)

	intent, err = c.IdentifyIntent(ctx, "gibberish", core.IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "input.unknown", intent.Name)

	intent, err = c.IdentifyIntent(ctx, "numbers", core.IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "input.unknown", intent.Name)
}

const rules = `
default_intent: input.unknown
fallback:
  - type: text
    text: Sorry?
rules:
  - intent: order
    patterns:
      - "(?P<size>[SML]) size"
    keywords: [pizza, ピザ]
  - intent: menu
    keywords: [menu]
    parameters:
      category: pizza
`

func TestKeyword(t *testing.T) {
	ctx := context.Background()
	k, err := ParseKeyword([]byte(rules))
	require.NoError(t, err)

	tests := []struct {
		text   string
		intent string
		params map[string]any
	}{
		{"I want PIZZA", "order", map[string]any{}},
		{"ﾋﾟｻﾞください", "order", map[string]any{}},
		{"M size please", "order", map[string]any{"size": "M"}},
		{"Ｍｅｎｕ", "menu", map[string]any{"category": "pizza"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, err := k.IdentifyIntent(ctx, tt.text, core.IntentOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.intent, intent.Name)
			assert.Equal(t, tt.params, intent.Parameters)
		})
	}

	intent, err := k.IdentifyIntent(ctx, "hello", core.IntentOptions{})
	require.NoError(t, err)
	assert.Equal(t, "input.unknown", intent.Name)
	require.Len(t, intent.Fulfillment, 1)
	assert.Equal(t, "Sorry?", intent.Fulfillment[0].Text())
}

func TestKeywordInvalid(t *testing.T) {
	_, err := NewKeyword(KeywordConfig{Rules: []KeywordRule{{Keywords: []string{"x"}}}})
	assert.Error(t, err)

	_, err = NewKeyword(KeywordConfig{Rules: []KeywordRule{{Intent: "x", Patterns: []string{"("}}}})
	assert.Error(t, err)
}
