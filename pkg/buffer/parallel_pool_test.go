package buffer

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagestore/pkg/metrics"
	"pagestore/pkg/storage/page"
)

// S6. Parallel pool with N=4 instances, pool_size=2 each. Allocate 8
// fresh pages via new_page; verify each allocated page id satisfies
// id mod 4 == owning_instance_index, and subsequent fetch_page(id)
// succeeds from the correct instance.
func TestS6ParallelPoolSharding(t *testing.T) {
	dbFile := "test_s6.db"
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	const numInstances = 4
	pool, err := NewParallelBufferPool(dbFile, 2, numInstances, nil, metrics.New(nil))
	require.NoError(t, err)

	ids := make([]int, 0, 8)
	for i := 0; i < 8; i++ {
		p := pool.NewPage()
		require.NotNil(t, p, "allocation %d should have succeeded", i)
		ids = append(ids, int(p.ID()))
		assert.Equal(t, i%numInstances, int(p.ID())%numInstances, "page id must route to the owning instance")
		assert.True(t, pool.UnpinPage(p.ID(), false))
	}

	for _, id := range ids {
		owner := id % numInstances
		got := pool.instanceFor(page.PageID(id))
		assert.Same(t, pool.instances[owner], got)

		p := pool.FetchPage(page.PageID(id))
		require.NotNil(t, p, "fetch of previously allocated page %d should succeed", id)
		assert.True(t, pool.UnpinPage(page.PageID(id), false))
	}
}

func TestParallelPoolGetPoolSize(t *testing.T) {
	dbFile := "test_s6_size.db"
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	pool, err := NewParallelBufferPool(dbFile, 3, 4, nil, metrics.New(nil))
	require.NoError(t, err)
	assert.Equal(t, 12, pool.GetPoolSize())
}

func TestParallelPoolFlushAllPages(t *testing.T) {
	dbFile := "test_s6_flush.db"
	os.Remove(dbFile)
	t.Cleanup(func() { os.Remove(dbFile) })

	pool, err := NewParallelBufferPool(dbFile, 2, 2, nil, metrics.New(nil))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		p := pool.NewPage()
		require.NotNil(t, p)
		copy(p.Data[:], []byte("dirty"))
		assert.True(t, pool.UnpinPage(p.ID(), true))
	}

	pool.FlushAllPages()

	for _, inst := range pool.instances {
		for _, p := range inst.pages {
			assert.False(t, p.IsDirty())
		}
	}
}
