package parser

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/hupe1980/botmesh/core"
)

const defaultPhoneLength = 40

var digitsPattern = regexp.MustCompile(`^[0-9]+$`)

// Phone validates a phone number made of digits and dashes and returns it
// without dashes. policy["length"] caps the digit count (default 40).
func Phone(_ context.Context, value any, policy map[string]any) (any, error) {
	limit := float64(defaultPhoneLength)
	if policy != nil {
		if raw, set := policy["length"]; set {
			n, ok := toFloat(raw)
			if !ok {
				return nil, errors.New("phone parser: policy.length should be number")
			}
			limit = n
		}
	}

	s, ok := value.(string)
	if !ok {
		return nil, core.Reject("be_parser__should_be_string")
	}
	phone := strings.ReplaceAll(s, "-", "")
	if !digitsPattern.MatchString(phone) {
		return nil, core.Reject("be_parser__should_be_number_and_dash")
	}
	if float64(len(phone)) > limit {
		return nil, core.Reject("be_parser__too_long")
	}
	return phone, nil
}
