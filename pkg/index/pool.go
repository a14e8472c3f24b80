package index

import "pagestore/pkg/storage/page"

// Pool is the subset of the buffer pool surface the hash index needs.
// Both BufferPoolInstance and ParallelBufferPool satisfy it; the index
// never knows or cares whether it's talking to a single shard or the
// sharded front-end.
type Pool interface {
	NewPage() *page.Page
	FetchPage(pageID page.PageID) *page.Page
	UnpinPage(pageID page.PageID, isDirty bool) bool
	DeletePage(pageID page.PageID) bool
	Latch(pageID page.PageID) (*page.Latch, bool)
}
