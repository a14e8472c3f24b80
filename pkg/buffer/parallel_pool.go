package buffer

import (
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"pagestore/pkg/metrics"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

// ParallelBufferPool shards the page address space across N
// BufferPoolInstances by page_id mod N. It carries no mutable state of
// its own beyond a rotation cursor for new_page — thread-safety comes
// entirely from the instances' own latches.
type ParallelBufferPool struct {
	instances []*BufferPoolInstance

	cursorMu sync.Mutex
	cursor   int
}

// NewParallelBufferPool builds numInstances shards, each with
// poolSizePerInstance frames, each backed by its own DiskManager sharing
// dbFileName (the disk manager's modular allocation keeps their page
// ranges disjoint).
func NewParallelBufferPool(dbFileName string, poolSizePerInstance, numInstances int, logger *zap.SugaredLogger, collectors *metrics.Collectors) (*ParallelBufferPool, error) {
	instances := make([]*BufferPoolInstance, numInstances)
	for i := 0; i < numInstances; i++ {
		dm, err := disk.NewDiskManagerForInstance(dbFileName, numInstances, i)
		if err != nil {
			return nil, err
		}
		instances[i] = NewBufferPoolInstance(dm, poolSizePerInstance, numInstances, i, logger, collectors)
	}
	collectors.SetPoolSize(poolSizePerInstance * numInstances)
	return &ParallelBufferPool{instances: instances}, nil
}

// instanceFor returns the shard owning pageID.
func (p *ParallelBufferPool) instanceFor(pageID page.PageID) *BufferPoolInstance {
	n := len(p.instances)
	idx := int(pageID) % n
	if idx < 0 {
		idx += n
	}
	return p.instances[idx]
}

// GetPoolSize is N * per-instance pool size.
func (p *ParallelBufferPool) GetPoolSize() int {
	total := 0
	for _, inst := range p.instances {
		total += inst.PoolSize()
	}
	return total
}

func (p *ParallelBufferPool) FetchPage(pageID page.PageID) *page.Page {
	return p.instanceFor(pageID).FetchPage(pageID)
}

func (p *ParallelBufferPool) UnpinPage(pageID page.PageID, isDirty bool) bool {
	return p.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

func (p *ParallelBufferPool) FlushPage(pageID page.PageID) bool {
	return p.instanceFor(pageID).FlushPage(pageID)
}

func (p *ParallelBufferPool) DeletePage(pageID page.PageID) bool {
	return p.instanceFor(pageID).DeletePage(pageID)
}

// Latch returns the per-frame latch backing pageID's current residency,
// routed to the owning shard.
func (p *ParallelBufferPool) Latch(pageID page.PageID) (*page.Latch, bool) {
	return p.instanceFor(pageID).Latch(pageID)
}

// NewPage tries each instance once, starting from a rotating cursor, and
// returns the first success. The cursor advances on every call regardless
// of outcome — racing it across goroutines is benign, it's only an
// advisory hint that heals load imbalance over time.
func (p *ParallelBufferPool) NewPage() *page.Page {
	n := len(p.instances)

	p.cursorMu.Lock()
	start := p.cursor
	p.cursor = (p.cursor + 1) % n
	p.cursorMu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if pg := p.instances[idx].NewPage(); pg != nil {
			return pg
		}
	}
	return nil
}

// FlushAllPages fans out to every instance concurrently. A panic in one
// shard's flush is caught and re-raised after every shard has had a
// chance to run, rather than silently losing the other shards' flushes.
func (p *ParallelBufferPool) FlushAllPages() {
	wp := pool.New()
	for _, inst := range p.instances {
		inst := inst
		wp.Go(func() {
			inst.FlushAllPages()
		})
	}
	wp.Wait()
}
