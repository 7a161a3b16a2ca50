package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IsDeleted checks if an item has an expired TTL (is marked for deletion).
func IsDeleted(item map[string]types.AttributeValue) bool {
	ttlAttr, exists := item["ttl"]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= time.Now().Unix()
}

// TTLFilterExpr returns the filter expression to exclude deleted items.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// ParentExistsCondition returns the condition expression for parent path validation.
// Ensures the parent path record exists AND is not deleted (no TTL or TTL in future).
func ParentExistsCondition() string {
	return "attribute_exists(pk) AND (attribute_not_exists(#ttl) OR #ttl > :now)"
}

// PathAvailableCondition returns the condition expression guarding a path claim.
// A path is free when no record exists or the previous owner was deleted.
func PathAvailableCondition() string {
	return "attribute_not_exists(pk) OR #ttl <= :now"
}

// OwnedByCondition returns the condition expression requiring an item to
// still belong to the mailbox bound to :id.
func OwnedByCondition() string {
	return "mailbox_id = :id"
}

func ttlExprNames() map[string]string {
	return map[string]string{"#ttl": "ttl"}
}

func nowExprValues(now int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now, 10)},
	}
}
