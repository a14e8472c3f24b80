package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRUReplacerVictimOrder(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)
	assert.Equal(t, 3, r.Size())

	assert.Equal(t, 1, r.Victim())
	assert.Equal(t, 2, r.Victim())
	assert.Equal(t, 3, r.Victim())
	assert.Equal(t, -1, r.Victim())
}

func TestLRUReplacerPinRemovesFromEvictionSet(t *testing.T) {
	r := NewLRUReplacer(3)
	r.Unpin(1)
	r.Unpin(2)
	r.Pin(1)
	assert.Equal(t, 1, r.Size())
	assert.Equal(t, 2, r.Victim())
}

func TestLRUReplacerUnpinIsIdempotent(t *testing.T) {
	r := NewLRUReplacer(2)
	r.Unpin(1)
	r.Unpin(1)
	assert.Equal(t, 1, r.Size())
}

func TestLRUReplacerUnpinNoopAtCapacity(t *testing.T) {
	r := NewLRUReplacer(1)
	r.Unpin(1)
	r.Unpin(2) // capacity reached, no-op per spec
	assert.Equal(t, 1, r.Size())
	assert.Equal(t, 1, r.Victim())
}
