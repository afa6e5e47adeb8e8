package translator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/model"
)

func TestDetect(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse("hello", "en-US")
	m.AddResponse("こんにちは", "ja.")
	m.AddResponse("???", "I cannot tell")

	tr := New(m)
	ctx := context.Background()

	lang, err := tr.Detect(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "en", lang)

	lang, err = tr.Detect(ctx, "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, "ja", lang)

	lang, err = tr.Detect(ctx, "???")
	require.NoError(t, err)
	assert.Equal(t, "ja", lang)

	strict := New(m, func(o *Options) { o.Fallback = "" })
	_, err = strict.Detect(ctx, "???")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestTranslate(t *testing.T) {
	m := model.NewMockModel("test")
	m.AddResponse("I want pizza", "ピザが欲しい")

	out, err := New(m).Translate(context.Background(), "I want pizza", "ja-JP")
	require.NoError(t, err)
	assert.Equal(t, "ピザが欲しい", out)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Instructions, `"ja"`)

	_, err = New(m).Translate(context.Background(), "x", "not a language")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}
