package engine

import "strings"

// PartitionKey names a storage partition
type PartitionKey string

// SharedPartition is the one partition every shared tab binds to
const SharedPartition PartitionKey = "persist:shared"

const isolatedPrefix = "isolated:"

// KeyFor derives the partition a tab binds to
func KeyFor(tabID string, shared bool) PartitionKey {
	if shared {
		return SharedPartition
	}
	return PartitionKey(isolatedPrefix + tabID)
}

// IsIsolated reports whether the key belongs to a single tab
func (k PartitionKey) IsIsolated() bool {
	return strings.HasPrefix(string(k), isolatedPrefix)
}

// DirName turns the key into a string usable as a directory name
func (k PartitionKey) DirName() string {
	return strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(string(k))
}
