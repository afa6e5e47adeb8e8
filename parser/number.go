package parser

import (
	"context"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/width"

	"github.com/hupe1980/botmesh/core"
)

// Number parses a numeric value.
//
// Policy keys: type ("float", the default, or "integer"), min and max. A
// postback object is accepted when its data field holds a number, and
// full-width digits are folded before parsing.
func Number(_ context.Context, value any, policy map[string]any) (any, error) {
	integer := policyString(policy, "type") == "integer"

	n, ok := parseNumber(value, integer)
	if !ok {
		if obj, isObj := value.(map[string]any); isObj {
			n, ok = parseNumber(obj["data"], true)
		}
	}
	if !ok {
		return nil, core.Reject("be_parser__should_be_number")
	}

	if lo, set := policyNumber(policy, "min"); set && lo != 0 && n < lo {
		return nil, core.Reject("be_parser__too_small")
	}
	if hi, set := policyNumber(policy, "max"); set && hi != 0 && n > hi {
		return nil, core.Reject("be_parser__too_large")
	}

	if integer {
		return int64(n), nil
	}
	return n, nil
}

func parseNumber(v any, integer bool) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(width.Narrow.String(t))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		parsed, ok := toFloat(v)
		if !ok {
			return 0, false
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if integer {
		f = math.Trunc(f)
	}
	return f, true
}
