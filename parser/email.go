package parser

import (
	"context"
	"regexp"

	"github.com/hupe1980/botmesh/core"
)

var emailPattern = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9-]+(?:\\.[a-zA-Z0-9-]+)*$")

// Email validates an e-mail address.
func Email(_ context.Context, value any, _ map[string]any) (any, error) {
	if !isSet(value) {
		return nil, core.Reject("be_parser__should_be_set")
	}
	s, ok := value.(string)
	if !ok {
		return nil, core.Reject("be_parser__should_be_string")
	}
	if !emailPattern.MatchString(s) {
		return nil, core.Reject("be_parser__should_be_email_format")
	}
	return s, nil
}
