// Package index implements a persistent extendible hash table over the
// buffer pool: one directory page plus a dynamic set of bucket pages,
// with global-depth/local-depth directory arithmetic, split-on-full
// insertion, and merge-on-empty deletion.
package index

import (
	"bytes"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pagestore/pkg/metrics"
	"pagestore/pkg/storage/page"
)

// ExtendibleHashIndex is a disk-backed multimap keyed by K, valued by
// page.RID (the record-identifier value the spec's instantiation set
// pairs with every key shape). The directory page id is held in memory;
// everything else — the directory's contents and every bucket — lives in
// the buffer pool and is only ever touched while pinned and latched.
type ExtendibleHashIndex[K comparable] struct {
	pool  Pool
	codec KeyCodec[K]

	// dirMu is the index's own structural latch over the directory:
	// shared for slot resolution, exclusive for split/grow/merge/shrink.
	// It nests outside the per-frame page latches acquired beneath it —
	// directory-then-bucket, never the reverse, never two buckets nested.
	dirMu     sync.RWMutex
	dirPageID page.PageID

	log     *zap.SugaredLogger
	metrics *metrics.Collectors
}

// New allocates a fresh directory page (global depth 0) and a single
// initial bucket page at slot 0, and returns an index ready for use.
func New[K comparable](pool Pool, codec KeyCodec[K], logger *zap.SugaredLogger, collectors *metrics.Collectors) (*ExtendibleHashIndex[K], error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dirPage := pool.NewPage()
	if dirPage == nil {
		return nil, errors.New("extendible hash index: failed to allocate directory page")
	}
	dv := page.NewDirectoryPage(dirPage)
	dv.SetGlobalDepth(0)

	bucketPage := pool.NewPage()
	if bucketPage == nil {
		pool.UnpinPage(dirPage.ID(), false)
		pool.DeletePage(dirPage.ID())
		return nil, errors.New("extendible hash index: failed to allocate initial bucket page")
	}
	dv.SetBucketPageID(0, bucketPage.ID())
	dv.SetLocalDepth(0, 0)

	pool.UnpinPage(bucketPage.ID(), false)
	pool.UnpinPage(dirPage.ID(), true)

	return &ExtendibleHashIndex[K]{
		pool:      pool,
		codec:     codec,
		dirPageID: dirPage.ID(),
		log:       logger,
		metrics:   collectors,
	}, nil
}

func bytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// slotFor hashes an already-encoded key and masks it to the directory's
// current global depth.
func slotFor(dv *page.DirectoryPage, keyBuf []byte) uint32 {
	return uint32(xxhash.Sum64(keyBuf)) & dv.GlobalDepthMask()
}

// Get returns every value stored under key.
func (idx *ExtendibleHashIndex[K]) Get(key K) []page.RID {
	buf := make([]byte, idx.codec.Width())
	idx.codec.Encode(key, buf)

	idx.dirMu.RLock()
	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	slot := slotFor(dv, buf)
	bucketID := dv.BucketPageID(slot)
	idx.pool.UnpinPage(idx.dirPageID, false)
	idx.dirMu.RUnlock()

	bucketPage := idx.pool.FetchPage(bucketID)
	if bucketPage == nil {
		idx.log.Errorw("get: bucket page fetch failed", "bucket_id", bucketID)
		return nil
	}
	latch, _ := idx.pool.Latch(bucketID)
	lp := page.AcquireRead(bucketPage, latch, idx.pool)
	defer lp.Done(false)

	bv := page.NewBucketPage(bucketPage, idx.codec.Width())
	return bv.GetValue(buf, bytesEqual, nil)
}

// Insert adds (key, value) and returns false if it is an exact duplicate
// or if the directory cannot grow any further while a bucket remains
// full (capacity exhaustion — every stored key collides on every bit the
// directory can discriminate).
func (idx *ExtendibleHashIndex[K]) Insert(key K, value page.RID) bool {
	buf := make([]byte, idx.codec.Width())
	idx.codec.Encode(key, buf)

	ok, needSplit := idx.tryDirectInsert(buf, value)
	if !needSplit {
		return ok
	}

	for {
		ok, retry := idx.splitInsert(buf, value)
		if !retry {
			return ok
		}
	}
}

// tryDirectInsert attempts a plain insert under a directory read lock. If
// the target bucket reports full, it releases every lock and signals the
// caller to retry via splitInsert.
func (idx *ExtendibleHashIndex[K]) tryDirectInsert(keyBuf []byte, value page.RID) (ok bool, needSplit bool) {
	idx.dirMu.RLock()
	defer idx.dirMu.RUnlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	slot := slotFor(dv, keyBuf)
	bucketID := dv.BucketPageID(slot)
	idx.pool.UnpinPage(idx.dirPageID, false)

	bucketPage := idx.pool.FetchPage(bucketID)
	latch, _ := idx.pool.Latch(bucketID)
	lp := page.AcquireWrite(bucketPage, latch, idx.pool)

	bv := page.NewBucketPage(bucketPage, idx.codec.Width())
	if bv.IsFull() {
		lp.Done(false)
		return false, true
	}

	inserted := bv.Insert(keyBuf, value, bytesEqual)
	lp.Done(inserted)
	return inserted, false
}

// splitInsert performs a single split of the bucket keyBuf currently maps
// to (growing the directory first if the bucket's local depth has caught
// up to the global depth), redistributes its entries, and attempts the
// caller's point insert on whichever side it now maps to.
//
// retry is true when the chosen side is still full after the split — the
// caller loops, re-deriving the target under the (now deeper) directory —
// unless the directory is already at MaxDepth, in which case this is a
// definitive capacity-exhaustion failure.
func (idx *ExtendibleHashIndex[K]) splitInsert(keyBuf []byte, value page.RID) (ok bool, retry bool) {
	idx.dirMu.Lock()
	defer idx.dirMu.Unlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	mutated := false

	slot := slotFor(dv, keyBuf)
	oldBucketID := dv.BucketPageID(slot)
	oldLocalDepth := dv.LocalDepth(slot)

	if oldLocalDepth == uint8(dv.GlobalDepth()) {
		if dv.GlobalDepth() >= page.MaxDepth {
			idx.pool.UnpinPage(idx.dirPageID, mutated)
			idx.log.Warnw("split_insert: directory at max depth, bucket still full")
			return false, false
		}
		growDirectory(dv)
		idx.metrics.Grow()
		mutated = true
		slot = slotFor(dv, keyBuf)
		oldBucketID = dv.BucketPageID(slot)
		oldLocalDepth = dv.LocalDepth(slot)
	}

	newBucketPage := idx.pool.NewPage()
	if newBucketPage == nil {
		idx.pool.UnpinPage(idx.dirPageID, mutated)
		return false, false
	}
	newLocalDepth := oldLocalDepth + 1
	newBit := uint32(1) << (newLocalDepth - 1)

	for i := uint32(0); i < dv.NumSlots(); i++ {
		if dv.BucketPageID(i) != oldBucketID {
			continue
		}
		dv.SetLocalDepth(i, newLocalDepth)
		if i&newBit != 0 {
			dv.SetBucketPageID(i, newBucketPage.ID())
		}
	}
	mutated = true
	idx.metrics.Split()

	idx.redistribute(dv, oldBucketID, newBucketPage.ID())

	slot = slotFor(dv, keyBuf)
	targetBucketID := dv.BucketPageID(slot)

	var targetPage *page.Page
	var targetLatch *page.Latch
	switch targetBucketID {
	case oldBucketID:
		targetPage = idx.pool.FetchPage(oldBucketID)
	case newBucketPage.ID():
		targetPage = newBucketPage
	default:
		targetPage = idx.pool.FetchPage(targetBucketID)
	}
	targetLatch, _ = idx.pool.Latch(targetBucketID)
	lp := page.AcquireWrite(targetPage, targetLatch, idx.pool)
	bv := page.NewBucketPage(targetPage, idx.codec.Width())

	if bv.IsFull() {
		lp.Done(false)
		idx.pool.UnpinPage(idx.dirPageID, mutated)
		return false, true
	}

	inserted := bv.Insert(keyBuf, value, bytesEqual)
	lp.Done(inserted)
	idx.pool.UnpinPage(idx.dirPageID, mutated)
	return inserted, false
}

// redistribute moves every live entry of oldBucketID that now hashes to
// newBucketID across, under write latches on both pages. It always
// unpins both pages (old dirty iff anything moved out of it, new dirty
// iff anything moved into it) before returning.
func (idx *ExtendibleHashIndex[K]) redistribute(dv *page.DirectoryPage, oldBucketID, newBucketID page.PageID) {
	oldPage := idx.pool.FetchPage(oldBucketID)
	oldLatch, _ := idx.pool.Latch(oldBucketID)
	oldLP := page.AcquireWrite(oldPage, oldLatch, idx.pool)

	newPage := idx.pool.FetchPage(newBucketID)
	newLatch, _ := idx.pool.Latch(newBucketID)
	newLP := page.AcquireWrite(newPage, newLatch, idx.pool)

	oldBV := page.NewBucketPage(oldPage, idx.codec.Width())
	newBV := page.NewBucketPage(newPage, idx.codec.Width())

	var oldDirty, newDirty bool
	for _, e := range oldBV.AllEntries() {
		if dv.BucketPageID(slotFor(dv, e.Key)) != newBucketID {
			continue
		}
		oldBV.Remove(e.Key, e.Value, bytesEqual)
		newBV.Insert(e.Key, e.Value, bytesEqual)
		oldDirty = true
		newDirty = true
	}

	oldLP.Done(oldDirty)
	newLP.Done(newDirty)
}

// growDirectory doubles the directory's live slot range: every new slot
// i' inherits the bucket page id and local depth of i' XOR (1 <<
// old_global_depth).
func growDirectory(dv *page.DirectoryPage) {
	oldDepth := dv.GlobalDepth()
	newDepth := oldDepth + 1
	dv.SetGlobalDepth(newDepth)

	for i := uint32(1) << oldDepth; i < uint32(1)<<newDepth; i++ {
		mirror := i ^ (uint32(1) << oldDepth)
		dv.SetBucketPageID(i, dv.BucketPageID(mirror))
		dv.SetLocalDepth(i, dv.LocalDepth(mirror))
	}
}

// Remove deletes (key, value) and, if doing so empties the bucket, folds
// it into its split image via Merge.
func (idx *ExtendibleHashIndex[K]) Remove(key K, value page.RID) bool {
	buf := make([]byte, idx.codec.Width())
	idx.codec.Encode(key, buf)

	removed, becameEmpty := idx.tryRemove(buf, value)
	if becameEmpty {
		idx.merge(buf)
	}
	return removed
}

func (idx *ExtendibleHashIndex[K]) tryRemove(keyBuf []byte, value page.RID) (removed, becameEmpty bool) {
	idx.dirMu.RLock()
	defer idx.dirMu.RUnlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	slot := slotFor(dv, keyBuf)
	bucketID := dv.BucketPageID(slot)
	idx.pool.UnpinPage(idx.dirPageID, false)

	bucketPage := idx.pool.FetchPage(bucketID)
	latch, _ := idx.pool.Latch(bucketID)
	lp := page.AcquireWrite(bucketPage, latch, idx.pool)

	bv := page.NewBucketPage(bucketPage, idx.codec.Width())
	removed = bv.Remove(keyBuf, value, bytesEqual)
	becameEmpty = removed && bv.IsEmpty()
	lp.Done(removed)
	return removed, becameEmpty
}

// merge folds the bucket keyBuf maps to into its split image, then
// shrinks the directory while the shrink invariant permits, re-verifying
// the bucket is still empty under the directory write lock to resolve
// the TOCTOU window Remove leaves between dropping its read lock and
// merge acquiring the writer.
func (idx *ExtendibleHashIndex[K]) merge(keyBuf []byte) {
	idx.dirMu.Lock()
	defer idx.dirMu.Unlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)

	slot := slotFor(dv, keyBuf)
	bucketID := dv.BucketPageID(slot)
	localDepth := dv.LocalDepth(slot)

	if localDepth == 0 {
		idx.pool.UnpinPage(idx.dirPageID, false)
		return
	}

	splitIdx := dv.SplitImageIndex(slot)
	siblingID := dv.BucketPageID(splitIdx)
	siblingDepth := dv.LocalDepth(splitIdx)

	if siblingID == bucketID || siblingDepth != localDepth {
		idx.pool.UnpinPage(idx.dirPageID, false)
		return
	}

	if !idx.bucketIsEmpty(bucketID) {
		// Re-inserted in the gap between Remove dropping its read lock
		// and merge acquiring the writer: abort without mutating.
		idx.pool.UnpinPage(idx.dirPageID, false)
		return
	}

	for i := uint32(0); i < dv.NumSlots(); i++ {
		if dv.BucketPageID(i) == bucketID {
			dv.SetBucketPageID(i, siblingID)
		}
	}
	// Every slot now pointing at siblingID — whether redirected above or
	// already there before the merge — drops one local depth, so the two
	// formerly-split halves end up at a single consistent depth.
	for i := uint32(0); i < dv.NumSlots(); i++ {
		if dv.BucketPageID(i) == siblingID {
			dv.SetLocalDepth(i, dv.LocalDepth(i)-1)
		}
	}
	idx.metrics.Merge()

	shrinkDirectory(dv, idx.metrics)

	idx.pool.UnpinPage(idx.dirPageID, true)
	idx.pool.DeletePage(bucketID)
}

func (idx *ExtendibleHashIndex[K]) bucketIsEmpty(bucketID page.PageID) bool {
	bucketPage := idx.pool.FetchPage(bucketID)
	latch, _ := idx.pool.Latch(bucketID)
	lp := page.AcquireRead(bucketPage, latch, idx.pool)
	defer lp.Done(false)

	bv := page.NewBucketPage(bucketPage, idx.codec.Width())
	return bv.IsEmpty()
}

// shrinkDirectory decrements global depth while no live slot's local
// depth has caught up to it, truncating the upper half on every
// iteration (logically — the slot data above the new live range is just
// no longer addressed, never physically cleared).
func shrinkDirectory(dv *page.DirectoryPage, collectors *metrics.Collectors) {
	for dv.GlobalDepth() > 0 && !anySlotAtGlobalDepth(dv) {
		dv.SetGlobalDepth(dv.GlobalDepth() - 1)
		collectors.Shrink()
	}
}

func anySlotAtGlobalDepth(dv *page.DirectoryPage) bool {
	gd := uint8(dv.GlobalDepth())
	for i := uint32(0); i < dv.NumSlots(); i++ {
		if dv.LocalDepth(i) == gd {
			return true
		}
	}
	return false
}

// GetGlobalDepth returns the directory's current global depth.
func (idx *ExtendibleHashIndex[K]) GetGlobalDepth() uint32 {
	idx.dirMu.RLock()
	defer idx.dirMu.RUnlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	depth := dv.GlobalDepth()
	idx.pool.UnpinPage(idx.dirPageID, false)
	return depth
}

// VerifyIntegrity checks invariants 5-7 from the testable-properties
// list: split-image symmetry, the local/global depth relationship (and
// that slots sharing a bucket id share a local depth), and every live
// bucket's occupied-bitmap-forms-a-prefix property.
func (idx *ExtendibleHashIndex[K]) VerifyIntegrity() error {
	idx.dirMu.RLock()
	defer idx.dirMu.RUnlock()

	dirPage := idx.pool.FetchPage(idx.dirPageID)
	dv := page.NewDirectoryPage(dirPage)
	defer idx.pool.UnpinPage(idx.dirPageID, false)

	depthOf := make(map[page.PageID]uint8)
	visited := make(map[page.PageID]bool)

	for i := uint32(0); i < dv.NumSlots(); i++ {
		ld := dv.LocalDepth(i)
		if uint32(ld) > dv.GlobalDepth() {
			return errors.Errorf("slot %d: local depth %d exceeds global depth %d", i, ld, dv.GlobalDepth())
		}

		bucketID := dv.BucketPageID(i)
		if existing, ok := depthOf[bucketID]; ok && existing != ld {
			return errors.Errorf("bucket %d: inconsistent local depth (%d vs %d) across slots sharing it", bucketID, existing, ld)
		}
		depthOf[bucketID] = ld

		if ld > 0 {
			split := dv.SplitImageIndex(i)
			if dv.SplitImageIndex(split) != i {
				return errors.Errorf("slot %d: split image symmetry violated via slot %d", i, split)
			}
		}

		if !visited[bucketID] {
			visited[bucketID] = true
			if err := idx.verifyBucketPrefix(bucketID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *ExtendibleHashIndex[K]) verifyBucketPrefix(bucketID page.PageID) error {
	bucketPage := idx.pool.FetchPage(bucketID)
	if bucketPage == nil {
		return errors.Errorf("bucket %d: fetch failed during integrity check", bucketID)
	}
	latch, _ := idx.pool.Latch(bucketID)
	lp := page.AcquireRead(bucketPage, latch, idx.pool)
	defer lp.Done(false)

	bv := page.NewBucketPage(bucketPage, idx.codec.Width())
	seenUnoccupied := false
	for i := 0; i < bv.ArraySize; i++ {
		if !bv.IsOccupied(i) {
			seenUnoccupied = true
			continue
		}
		if seenUnoccupied {
			return errors.Errorf("bucket %d: occupied bit set at slot %d after an unoccupied slot", bucketID, i)
		}
	}
	return nil
}
