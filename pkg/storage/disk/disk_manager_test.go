package disk

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagestore/pkg/storage/page"
)

func TestDiskManagerReadWriteRoundTrip(t *testing.T) {
	dbFile := "test.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	dm, err := NewDiskManager(dbFile)
	require.NoError(t, err)
	defer dm.Close()

	pid := dm.AllocatePage()
	assert.Equal(t, page.PageID(0), pid)

	p := &page.Page{}
	data := []byte("Hello Database World!")
	copy(p.Data[:], data)

	require.NoError(t, dm.WritePage(pid, p))

	p2 := &page.Page{}
	require.NoError(t, dm.ReadPage(pid, p2))
	assert.Equal(t, "Hello Database World!", string(p2.Data[:len(data)]))
}

func TestDiskManagerReadBeforeWriteIsZeroed(t *testing.T) {
	dbFile := "test_unwritten.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	dm, err := NewDiskManager(dbFile)
	require.NoError(t, err)
	defer dm.Close()

	pid := dm.AllocatePage()

	p := &page.Page{}
	require.NoError(t, dm.ReadPage(pid, p))
	for _, b := range p.Data {
		if b != 0 {
			t.Fatal("expected an unwritten page to read back as all zero")
		}
	}
}

func TestDiskManagerForInstanceHonorsModularInvariant(t *testing.T) {
	dbFile := "test_sharded.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	dm, err := NewDiskManagerForInstance(dbFile, 4, 2)
	require.NoError(t, err)
	defer dm.Close()

	for i := 0; i < 5; i++ {
		pid := dm.AllocatePage()
		assert.Equal(t, int32(2), int32(pid)%4)
	}
}
