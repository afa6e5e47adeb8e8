package parser

import (
	"context"
	"errors"
	"reflect"
	"slices"

	"github.com/hupe1980/botmesh/core"
)

// List accepts only values contained in policy["list"]. A missing or empty
// list is a declaration error.
func List(_ context.Context, value any, policy map[string]any) (any, error) {
	list := policyList(policy, "list")
	if len(list) == 0 {
		return nil, errors.New("list parser: policy.list should have array of value")
	}
	if !slices.ContainsFunc(list, func(item any) bool { return reflect.DeepEqual(item, value) }) {
		return nil, core.Reject("be_parser__should_be_in_list")
	}
	return value, nil
}
