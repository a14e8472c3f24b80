// Package buffer implements the LRU replacer, the single-shard buffer
// pool instance, and the parallel buffer pool that fans requests out
// across shards.
package buffer

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pagestore/pkg/metrics"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

// BufferPoolInstance owns one fixed array of in-memory page frames, a
// free list, a page table, and a replacer. Every public method takes the
// instance's own latch; the replacer's latch is always acquired beneath
// it, never the reverse.
type BufferPoolInstance struct {
	mu sync.Mutex

	disk     disk.DiskManager
	pages    []*page.Page
	latches  []*page.Latch
	replacer *LRUReplacer
	freeList []int
	pageTable map[page.PageID]int

	numInstances  int
	instanceIndex int

	log     *zap.SugaredLogger
	metrics *metrics.Collectors
}

// NewBufferPoolInstance builds an instance of poolSize frames, owned by
// shard instanceIndex of numInstances total shards (numInstances=1,
// instanceIndex=0 for a standalone, unsharded pool). logger and
// collectors may both be nil.
func NewBufferPoolInstance(d disk.DiskManager, poolSize, numInstances, instanceIndex int, logger *zap.SugaredLogger, collectors *metrics.Collectors) *BufferPoolInstance {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	b := &BufferPoolInstance{
		disk:          d,
		pages:         make([]*page.Page, poolSize),
		latches:       make([]*page.Latch, poolSize),
		replacer:      NewLRUReplacer(poolSize),
		freeList:      make([]int, poolSize),
		pageTable:     make(map[page.PageID]int),
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		log:           logger,
		metrics:       collectors,
	}
	for i := 0; i < poolSize; i++ {
		b.pages[i] = &page.Page{}
		b.latches[i] = &page.Latch{}
		b.freeList[i] = i
	}
	return b
}

// PoolSize returns this instance's frame capacity.
func (b *BufferPoolInstance) PoolSize() int { return len(b.pages) }

// Latch returns the per-frame latch backing pageID's current residency.
// The page must already be pinned (fetched/created) by the caller; the
// latch is only meaningful while that pin is held, since eviction can
// otherwise repurpose the frame for a different page id.
func (b *BufferPoolInstance) Latch(pageID page.PageID) (*page.Latch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	frameID, ok := b.pageTable[pageID]
	if !ok {
		return nil, false
	}
	return b.latches[frameID], true
}

// FetchPage returns the requested page, pinning it. On a cache hit this
// increments the pin count and unregisters the frame from the replacer.
// On a miss it picks a victim frame (free list first, then the replacer),
// writes the victim back if dirty, then reads pageID in from disk. Fails
// with nil if no frame is available.
func (b *BufferPoolInstance) FetchPage(pageID page.PageID) *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		b.replacer.Pin(frameID)
		p := b.pages[frameID]
		p.SetPinCount(p.PinCount() + 1)
		b.metrics.Hit()
		return p
	}

	b.metrics.Miss()

	frameID, err := b.findVictimFrame()
	if err != nil {
		b.log.Debugw("fetch_page: no victim available", "page_id", pageID)
		return nil
	}

	p := b.pages[frameID]
	p.SetID(pageID)
	p.SetPinCount(1)
	p.SetDirty(false)

	if err := b.disk.ReadPage(pageID, p); err != nil {
		b.log.Errorw("fetch_page: disk read failed", "page_id", pageID, "error", err)
		p.SetID(page.InvalidPageID)
		p.SetPinCount(0)
		b.freeList = append(b.freeList, frameID)
		return nil
	}

	b.pageTable[pageID] = frameID
	b.replacer.Pin(frameID)

	return p
}

// UnpinPage decrements pageID's pin count. Returns false if the page's pin
// count is already zero (a caller bug — an unmatched unpin). True if the page
// isn't resident at all: a benign no-op. The dirty bit is OR'd in, never
// cleared here.
func (b *BufferPoolInstance) UnpinPage(pageID page.PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return true // benign no-op: page not resident
	}

	p := b.pages[frameID]
	if p.PinCount() <= 0 {
		b.log.Warnw("unpin_page: pin count already zero", "page_id", pageID)
		return false
	}

	p.SetPinCount(p.PinCount() - 1)
	if isDirty {
		p.SetDirty(true)
	}

	if p.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return true
}

// NewPage allocates a fresh page id from the disk collaborator and
// returns a pinned, zeroed frame for it. Fails with nil if no frame is
// available.
func (b *BufferPoolInstance) NewPage() *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.findVictimFrame()
	if err != nil {
		b.log.Debugw("new_page: no victim available")
		return nil
	}

	newPageID := b.disk.AllocatePage()
	if b.numInstances > 1 && int(newPageID)%b.numInstances != b.instanceIndex {
		panic("allocate_page violated the modular invariant for this instance")
	}

	p := b.pages[frameID]
	p.SetID(newPageID)
	p.SetPinCount(1)
	p.SetDirty(false)
	p.Clear()

	b.pageTable[newPageID] = frameID
	b.replacer.Pin(frameID)

	return p
}

// FlushPage writes pageID back to disk if resident and dirty, clearing
// the dirty bit. Returns false if the page isn't resident.
func (b *BufferPoolInstance) FlushPage(pageID page.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}

	p := b.pages[frameID]
	if p.IsDirty() {
		if err := b.disk.WritePage(pageID, p); err != nil {
			b.log.Errorw("flush_page: disk write failed", "page_id", pageID, "error", err)
			return false
		}
		p.SetDirty(false)
	}
	return true
}

// FlushAllPages writes every resident dirty page back to disk.
func (b *BufferPoolInstance) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pages {
		if p.ID() != page.InvalidPageID && p.IsDirty() {
			if err := b.disk.WritePage(p.ID(), p); err != nil {
				b.log.Errorw("flush_all_pages: disk write failed", "page_id", p.ID(), "error", err)
				continue
			}
			p.SetDirty(false)
		}
	}
}

// DeletePage notifies the disk collaborator via DeallocatePage and, if
// resident and unpinned, reclaims the frame onto the free list. Returns
// false if the page is pinned.
func (b *BufferPoolInstance) DeletePage(pageID page.PageID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disk.DeallocatePage(pageID)

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return true
	}

	targetPage := b.pages[frameID]
	if targetPage.PinCount() > 0 {
		return false
	}

	if targetPage.IsDirty() {
		if err := b.disk.WritePage(pageID, targetPage); err != nil {
			b.log.Errorw("delete_page: write-back failed", "page_id", pageID, "error", err)
		}
	}

	delete(b.pageTable, pageID)
	b.replacer.Pin(frameID) // ensure it can't be handed out as a future victim

	b.freeList = append(b.freeList, frameID)

	targetPage.SetID(page.InvalidPageID)
	targetPage.SetPinCount(0)
	targetPage.SetDirty(false)

	return true
}

// findVictimFrame picks a frame for reuse: the free list takes absolute
// precedence over the replacer. If the chosen frame held a valid dirty
// page, it is written back before its page-table entry is removed.
func (b *BufferPoolInstance) findVictimFrame() (int, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	frameID := b.replacer.Victim()
	if frameID == -1 {
		return -1, errors.New("no victim frame: pool exhausted, all pages pinned")
	}
	b.metrics.Eviction()

	victimPage := b.pages[frameID]
	if victimPage.IsDirty() {
		if err := b.disk.WritePage(victimPage.ID(), victimPage); err != nil {
			b.log.Errorw("evict: write-back failed", "page_id", victimPage.ID(), "error", err)
		}
	}

	delete(b.pageTable, victimPage.ID())
	return frameID, nil
}
