// Package disk is the file manager collaborator the buffer pool reads
// from and writes to. It is the one concrete implementation of the
// external "disk collaborator" contract spec'd alongside the buffer pool;
// everything above this package only ever talks to the DiskManager
// interface.
package disk

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"pagestore/pkg/storage/page"
)

// DiskManager reads, writes, and allocates pages. AllocatePage and
// DeallocatePage maintain a monotonic id space; DeallocatePage does not
// reclaim disk space in this implementation (no free-space map is spec'd
// at this layer).
type DiskManager interface {
	ReadPage(pageID page.PageID, p *page.Page) error
	WritePage(pageID page.PageID, p *page.Page) error
	AllocatePage() page.PageID
	DeallocatePage(pageID page.PageID)
	Close() error
}

// DiskManagerImpl is a single-file, offset-addressed DiskManager.
// Multiple instances may share one underlying file (the parallel buffer
// pool does this): each addresses pages by pageID*PageSize, so as long as
// every instance allocates from a disjoint residue class mod numInstances
// their page ranges never collide.
type DiskManagerImpl struct {
	dbFile       *os.File
	fileName     string
	nextPageID   page.PageID
	numInstances int32
}

// NewDiskManager opens (creating if needed) a single-shard data file: the
// stride is 1, so every page id is eligible.
func NewDiskManager(dbFileName string) (*DiskManagerImpl, error) {
	return NewDiskManagerForInstance(dbFileName, 1, 0)
}

// NewDiskManagerForInstance opens dbFileName for an owner that must only
// ever allocate ids satisfying id mod numInstances == instanceIndex, per
// the parallel buffer pool's modular invariant. Instances sharing a file
// path each open their own *os.File on it — safe because each only ever
// touches its own disjoint byte ranges.
func NewDiskManagerForInstance(dbFileName string, numInstances, instanceIndex int) (*DiskManagerImpl, error) {
	dir := filepath.Dir(dbFileName)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "creating data directory %s", dir)
		}
	}

	file, err := os.OpenFile(dbFileName, os.O_RDWR|os.O_CREATE, 0664)
	if err != nil {
		return nil, errors.Wrapf(err, "opening data file %s", dbFileName)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "statting data file %s", dbFileName)
	}

	pagesOnDisk := page.PageID(fileInfo.Size() / page.PageSize)
	nextID := firstIDAtOrAfter(pagesOnDisk, numInstances, instanceIndex)

	return &DiskManagerImpl{
		dbFile:       file,
		fileName:     dbFileName,
		nextPageID:   nextID,
		numInstances: int32(numInstances),
	}, nil
}

// firstIDAtOrAfter returns the smallest id >= from with id mod stride ==
// residue.
func firstIDAtOrAfter(from page.PageID, stride, residue int) page.PageID {
	if stride <= 1 {
		return from
	}
	r := page.PageID(residue)
	m := page.PageID(stride)
	rem := ((from-r)%m + m) % m
	if rem == 0 {
		return from
	}
	return from + (m - rem)
}

func (d *DiskManagerImpl) Close() error {
	return d.dbFile.Close()
}

// ReadPage fills p.Data from disk. A page that was allocated but evicted
// clean without ever being written has no on-disk bytes yet; reading past
// end-of-file for such a page yields a zeroed buffer rather than an
// error, matching the all-zero state the page had when it was created.
func (d *DiskManagerImpl) ReadPage(pageID page.PageID, p *page.Page) error {
	offset := int64(pageID) * int64(page.PageSize)
	p.Clear()

	n, err := d.dbFile.ReadAt(p.Data[:], offset)
	if err != nil && err != io.EOF {
		return errors.Wrapf(err, "reading page %d (got %d of %d bytes)", pageID, n, page.PageSize)
	}
	return nil
}

func (d *DiskManagerImpl) WritePage(pageID page.PageID, p *page.Page) error {
	offset := int64(pageID) * int64(page.PageSize)

	if _, err := d.dbFile.WriteAt(p.Data[:], offset); err != nil {
		return errors.Wrapf(err, "writing page %d", pageID)
	}
	return nil
}

// AllocatePage hands out the next id in this instance's residue class,
// then advances by the stride so the modular invariant holds for every
// subsequent call.
func (d *DiskManagerImpl) AllocatePage() page.PageID {
	ret := d.nextPageID
	stride := d.numInstances
	if stride < 1 {
		stride = 1
	}
	d.nextPageID += page.PageID(stride)
	return ret
}

// DeallocatePage is a no-op: this implementation never reclaims disk
// space, matching spec.md's scope (no free-space map at this layer).
func (d *DiskManagerImpl) DeallocatePage(pageID page.PageID) {}
