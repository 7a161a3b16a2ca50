// Package shard provides partition key generation for the mailbox tables.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
)

// RelationshipPK computes the sharded partition key for a relationship record.
// With numShards=1, all children of a parent go to shard "00".
// With numShards>1, children are distributed across shards based on childRef hash.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return ShardPK(parentRef, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return ShardPK(parentRef, int(h.Sum32()%uint32(numShards)))
}

// ShardPK returns the partition key of one relationship shard of parentRef.
func ShardPK(parentRef string, shard int) string {
	return fmt.Sprintf("%s#%02x", parentRef, shard)
}

// PathPK computes a hash-distributed partition key for a mailbox path.
// Components are NUL-joined so that names containing '#' or ':' cannot collide
// with a different namespace/user split.
func PathPK(namespace, user, name string) string {
	data := strings.Join([]string{namespace, user, name}, "\x00")
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16]) // 128-bit hash as hex
}
