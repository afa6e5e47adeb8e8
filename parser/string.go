package parser

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/width"

	"github.com/hupe1980/botmesh/core"
)

var zenkakuPattern = regexp.MustCompile(`^[^\x01-\x7E]+$`)

// String validates free text.
//
// Policy keys: min, max (length in characters), character (katakana,
// hiragana or kana), zenkaku, exclude (list of rejected words) and regex.
// For katakana and hiragana the value is converted to the requested script.
func String(_ context.Context, value any, policy map[string]any) (any, error) {
	if !isSet(value) {
		return nil, core.Reject("be_parser__should_be_set")
	}
	s, ok := value.(string)
	if !ok {
		return nil, core.Reject("be_parser__should_be_string")
	}

	length := utf8.RuneCountInString(s)
	if lo, ok := policyNumber(policy, "min"); ok && lo > 0 && float64(length) < lo {
		return nil, core.Reject("be_parser__too_short")
	}
	if hi, ok := policyNumber(policy, "max"); ok && hi > 0 && float64(length) > hi {
		return nil, core.Reject("be_parser__too_long")
	}

	switch policyString(policy, "character") {
	case "katakana":
		if !isKana(s) {
			return nil, core.Reject("be_parser__should_be_katakana")
		}
		s = toKatakana(s)
	case "hiragana":
		if !isKana(s) {
			return nil, core.Reject("be_parser__should_be_hiragana")
		}
		s = toHiragana(s)
	case "kana":
		if !isKana(s) {
			return nil, core.Reject("be_parser__should_be_kana")
		}
	}

	if policyBool(policy, "zenkaku") && !zenkakuPattern.MatchString(s) {
		return nil, core.Reject("be_parser__should_be_zenkaku")
	}

	if exclude := policyList(policy, "exclude"); len(exclude) > 0 && slices.Contains(exclude, any(s)) {
		return nil, core.Reject("be_parser__unavailable_word")
	}

	if expr := policyString(policy, "regex"); expr != "" {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		if !re.MatchString(s) {
			return nil, core.Reject("be_parser__should_follow_regex")
		}
	}

	return s, nil
}

// isKana reports whether s, ignoring spaces, consists of hiragana and
// katakana only. Half-width katakana are accepted.
func isKana(s string) bool {
	s = stripSpaces(width.Widen.String(s))
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == 'ー' {
			continue
		}
		if !unicode.Is(unicode.Hiragana, r) && !unicode.Is(unicode.Katakana, r) {
			return false
		}
	}
	return true
}

func stripSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Hiragana ぁ..ゖ and katakana ァ..ヶ are 0x60 apart.
const kanaOffset = 0x60

func toKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' {
			return r + kanaOffset
		}
		return r
	}, width.Widen.String(s))
}

func toHiragana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ァ' && r <= 'ヶ' {
			return r - kanaOffset
		}
		return r
	}, width.Widen.String(s))
}
