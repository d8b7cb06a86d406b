package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFor(t *testing.T) {
	assert.Equal(t, PartitionKey("isolated:abc"), KeyFor("abc", false))
	assert.Equal(t, SharedPartition, KeyFor("abc", true))

	assert.True(t, KeyFor("abc", false).IsIsolated())
	assert.False(t, SharedPartition.IsIsolated())
}

func TestDirName(t *testing.T) {
	assert.Equal(t, "isolated_abc", KeyFor("abc", false).DirName())
	assert.Equal(t, "persist_shared", SharedPartition.DirName())
}
