package ddbsdk

import (
	"fmt"

	"github.com/acksell/tablekit/dynamodb/ddberrors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
)

// Groups holds items bucketed by model tag. Every requested tag has a bucket,
// possibly empty.
type Groups map[string][]Item

// GroupByTag buckets items by the tag stored in tagField. An item carrying no
// tag, or a tag outside tags, means the store returned something the request
// did not ask for.
func GroupByTag(items []Item, tags []string, tagField string) (Groups, error) {
	groups := make(Groups, len(tags))
	for _, tag := range tags {
		groups[tag] = []Item{}
	}
	for _, item := range items {
		tag, ok := tagOf(item, tagField)
		if !ok {
			return nil, ddberrors.Inconsistent("item has no %q tag", tagField)
		}
		bucket, ok := groups[tag]
		if !ok {
			return nil, ddberrors.Inconsistent("item tagged %q was not requested, expected one of %v", tag, tags)
		}
		groups[tag] = append(bucket, item)
	}
	return groups, nil
}

// Count returns the number of items across all buckets.
func (g Groups) Count() int {
	n := 0
	for _, items := range g {
		n += len(items)
	}
	return n
}

// Unmarshal decodes the bucket for tag into values of T.
func Unmarshal[T any](g Groups, tag string) ([]T, error) {
	out := []T{}
	items, ok := g[tag]
	if !ok || len(items) == 0 {
		return out, nil
	}
	if err := attributevalue.UnmarshalListOfMaps(items, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %q items: %w", tag, err)
	}
	return out, nil
}

func tagOf(item Item, tagField string) (string, bool) {
	v, ok := item[tagField]
	if !ok {
		return "", false
	}
	var tag string
	if err := attributevalue.Unmarshal(v, &tag); err != nil || tag == "" {
		return "", false
	}
	return tag, true
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
