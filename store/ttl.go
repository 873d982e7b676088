package store

import (
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted reports whether an item carries a TTL that has already passed.
// Items without a readable TTL are active.
func IsDeleted(item map[string]types.AttributeValue) bool {
	n, ok := item[attrTTL].(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}

// TTLFilterExpr returns the filter expression to exclude deleted items.
// Use this when building custom queries that need TTL filtering.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// TTLFilterNames returns expression attribute names for TTL filter.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": attrTTL}
}

// TTLFilterValues returns expression attribute values for TTL filter.
func TTLFilterValues() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{":now": unixValue(time.Now())}
}

// ParentExistsCondition returns the condition expression for parent validation.
// Ensures parent exists AND is not deleted (no TTL or TTL in future).
func ParentExistsCondition() string {
	return "attribute_exists(id) AND (attribute_not_exists(#ttl) OR #ttl > :now)"
}

// unixValue encodes t as a DynamoDB number of epoch seconds.
func unixValue(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func mergeExprNames(ms ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}

func mergeExprValues(ms ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range ms {
		maps.Copy(result, m)
	}
	return result
}
