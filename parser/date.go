package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/botmesh/core"
)

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = "2006-01-02T15:04"
)

// Date validates a YYYY-MM-DD date. Postback objects contribute
// params.date or data. Policy keys min and max are inclusive bounds in the
// same format.
func Date(_ context.Context, value any, policy map[string]any) (any, error) {
	return parseTime(value, policy, timeKind{
		param:     "date",
		layout:    dateLayout,
		format:    "be_parser__should_be_yyyy_mm_dd",
		afterMin:  "be_parser__should_be_after_min_date",
		beforeMax: "be_parser__should_be_before_max_date",
	})
}

// Datetime validates a YYYY-MM-DDTHH:mm timestamp. Postback objects
// contribute params.datetime or data.
func Datetime(_ context.Context, value any, policy map[string]any) (any, error) {
	return parseTime(value, policy, timeKind{
		param:     "datetime",
		layout:    datetimeLayout,
		format:    "be_parser__should_be_yyyy_mm_dd_hh_mm",
		afterMin:  "be_parser__should_be_after_min_datetime",
		beforeMax: "be_parser__should_be_before_max_datetime",
	})
}

type timeKind struct {
	param     string
	layout    string
	format    string
	afterMin  string
	beforeMax string
}

func parseTime(value any, policy map[string]any, k timeKind) (any, error) {
	if !isSet(value) {
		return nil, core.Reject("be_parser__should_be_set")
	}

	var raw string
	switch t := value.(type) {
	case string:
		raw = t
	case map[string]any:
		if params, ok := t["params"].(map[string]any); ok {
			raw, _ = params[k.param].(string)
		}
		if raw == "" {
			raw, _ = t["data"].(string)
		}
		if raw == "" {
			return nil, core.Reject("be_parser__invalid_value")
		}
	default:
		return nil, core.Reject("be_parser__invalid_value")
	}

	parsed, err := time.Parse(k.layout, raw)
	if err != nil {
		return nil, core.Reject(k.format)
	}

	if lo := policyString(policy, "min"); lo != "" {
		bound, err := time.Parse(k.layout, lo)
		if err != nil {
			return nil, fmt.Errorf("%s parser: policy.min should be %s: %w", k.param, k.layout, err)
		}
		if parsed.Before(bound) {
			return nil, core.Reject(k.afterMin)
		}
	}
	if hi := policyString(policy, "max"); hi != "" {
		bound, err := time.Parse(k.layout, hi)
		if err != nil {
			return nil, fmt.Errorf("%s parser: policy.max should be %s: %w", k.param, k.layout, err)
		}
		if parsed.After(bound) {
			return nil, core.Reject(k.beforeMax)
		}
	}

	return raw, nil
}
