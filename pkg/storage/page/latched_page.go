package page

// Unpinner is the one buffer-pool method a LatchedPage needs: whoever
// fetched the page, to release it exactly once on every exit path. The
// buffer pool instance satisfies this without page importing buffer.
type Unpinner interface {
	UnpinPage(id PageID, isDirty bool) bool
}

// LatchedPage is a scoped-acquisition handle over a fetched page: it
// pairs the page with the per-frame latch that AcquireRead/AcquireWrite
// took on it and the pool to unpin from, so a single Done call both drops the latch and
// unpins — the handle-based-borrowing pattern spec'd to prevent leaked
// pins.
type LatchedPage struct {
	Page  *Page
	latch *Latch
	pool  Unpinner
	write bool
	done  bool
}

// AcquireRead fetches a read latch on p and returns a handle whose Done
// releases both the latch and the pin.
func AcquireRead(p *Page, latch *Latch, pool Unpinner) *LatchedPage {
	latch.RLock()
	return &LatchedPage{Page: p, latch: latch, pool: pool}
}

// AcquireWrite fetches a write latch on p.
func AcquireWrite(p *Page, latch *Latch, pool Unpinner) *LatchedPage {
	latch.Lock()
	return &LatchedPage{Page: p, latch: latch, pool: pool, write: true}
}

// Done releases the latch and unpins the page with the given dirty
// verdict. Safe to call at most once; a second call is a no-op so defer
// Done(...) plus an early explicit Done(...) never double-unpins.
func (h *LatchedPage) Done(dirty bool) {
	if h.done {
		return
	}
	h.done = true
	if h.write {
		h.latch.Unlock()
	} else {
		h.latch.RUnlock()
	}
	h.pool.UnpinPage(h.Page.ID(), dirty)
}
