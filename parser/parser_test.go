package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/botmesh/core"
)

func TestString(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		value  any
		policy map[string]any
		want   any
		code   string
	}{
		{name: "plain", value: "taro", want: "taro"},
		{name: "empty", value: "", code: "be_parser__should_be_set"},
		{name: "not string", value: 12.0, code: "be_parser__should_be_string"},
		{name: "too short", value: "a", policy: map[string]any{"min": 2}, code: "be_parser__too_short"},
		{name: "too long", value: "abcd", policy: map[string]any{"max": 3}, code: "be_parser__too_long"},
		{name: "multibyte length", value: "マルゲ", policy: map[string]any{"max": 3}, want: "マルゲ"},
		{name: "to katakana", value: "まるげりーた", policy: map[string]any{"character": "katakana"}, want: "マルゲリータ"},
		{name: "half width katakana", value: "ｶﾀｶﾅ", policy: map[string]any{"character": "katakana"}, want: "カタカナ"},
		{name: "to hiragana", value: "ヤマダ タロウ", policy: map[string]any{"character": "hiragana"}, want: "やまだ たろう"},
		{name: "not kana", value: "山田", policy: map[string]any{"character": "kana"}, code: "be_parser__should_be_kana"},
		{name: "not katakana", value: "abc", policy: map[string]any{"character": "katakana"}, code: "be_parser__should_be_katakana"},
		{name: "zenkaku", value: "ｔａｒｏ", policy: map[string]any{"zenkaku": true}, want: "ｔａｒｏ"},
		{name: "not zenkaku", value: "taro", policy: map[string]any{"zenkaku": true}, code: "be_parser__should_be_zenkaku"},
		{name: "excluded", value: "admin", policy: map[string]any{"exclude": []any{"admin"}}, code: "be_parser__unavailable_word"},
		{name: "regex", value: "A-1", policy: map[string]any{"regex": `^[A-Z]-\d$`}, want: "A-1"},
		{name: "regex mismatch", value: "a1", policy: map[string]any{"regex": `^[A-Z]-\d$`}, code: "be_parser__should_follow_regex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(ctx, tt.value, tt.policy)
			if tt.code != "" {
				require.ErrorIs(t, err, core.ErrRejected)
				assert.Equal(t, tt.code, core.RejectionCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNumber(t *testing.T) {
	ctx := context.Background()

	got, err := Number(ctx, "3.5", nil)
	require.NoError(t, err)
	assert.Equal(t, 3.5, got)

	got, err = Number(ctx, "3.9", map[string]any{"type": "integer"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	got, err = Number(ctx, "１２", map[string]any{"type": "integer"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = Number(ctx, map[string]any{"data": "2"}, map[string]any{"type": "integer"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	_, err = Number(ctx, "abc", nil)
	assert.Equal(t, "be_parser__should_be_number", core.RejectionCode(err))

	_, err = Number(ctx, 1.0, map[string]any{"min": 2})
	assert.Equal(t, "be_parser__too_small", core.RejectionCode(err))

	_, err = Number(ctx, 10, map[string]any{"max": 5})
	assert.Equal(t, "be_parser__too_large", core.RejectionCode(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	policy := map[string]any{"list": []any{"S", "M", "L"}}

	got, err := List(ctx, "M", policy)
	require.NoError(t, err)
	assert.Equal(t, "M", got)

	_, err = List(ctx, "XL", policy)
	assert.Equal(t, "be_parser__should_be_in_list", core.RejectionCode(err))

	_, err = List(ctx, "M", nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrRejected), "missing list is a declaration error")
}

func TestEmailAndPhone(t *testing.T) {
	ctx := context.Background()

	_, err := Email(ctx, "taro@example.com", nil)
	require.NoError(t, err)

	_, err = Email(ctx, "taro@", nil)
	assert.Equal(t, "be_parser__should_be_email_format", core.RejectionCode(err))

	got, err := Phone(ctx, "03-1234-5678", nil)
	require.NoError(t, err)
	assert.Equal(t, "0312345678", got)

	_, err = Phone(ctx, "03-12a", nil)
	assert.Equal(t, "be_parser__should_be_number_and_dash", core.RejectionCode(err))

	_, err = Phone(ctx, "0312345678", map[string]any{"length": 5})
	assert.Equal(t, "be_parser__too_long", core.RejectionCode(err))

	_, err = Phone(ctx, "031", map[string]any{"length": "5"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrRejected))
}

func TestDate(t *testing.T) {
	ctx := context.Background()

	got, err := Date(ctx, "2024-05-01", nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got)

	got, err = Date(ctx, map[string]any{"data": "x", "params": map[string]any{"date": "2024-05-02"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", got)

	_, err = Date(ctx, "05/01/2024", nil)
	assert.Equal(t, "be_parser__should_be_yyyy_mm_dd", core.RejectionCode(err))

	_, err = Date(ctx, "2024-04-30", map[string]any{"min": "2024-05-01"})
	assert.Equal(t, "be_parser__should_be_after_min_date", core.RejectionCode(err))

	_, err = Date(ctx, "2024-06-01", map[string]any{"max": "2024-05-31"})
	assert.Equal(t, "be_parser__should_be_before_max_date", core.RejectionCode(err))

	_, err = Date(ctx, "2024-06-01", map[string]any{"max": "31/05/2024"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrRejected))

	got, err = Datetime(ctx, map[string]any{"params": map[string]any{"datetime": "2024-05-01T10:30"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T10:30", got)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"date", "datetime", "email", "list", "number", "phone", "string"}, r.Names())

	_, err := r.Parse(context.Background(), "zip", "1", nil)
	assert.ErrorIs(t, err, ErrUnknownParser)

	r.Register("upper", core.ParserFunc(func(_ context.Context, v any, _ map[string]any) (any, error) {
		return v, nil
	}))
	got, err := r.Parse(context.Background(), "upper", "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}
