package nessi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropTailPushAndBlock(t *testing.T) {
	var received [][]byte
	q := CreateDropTailQueue()
	q.SetQueueSize(100)
	q.SetReceiver(func(el []byte) { received = append(received, el) })

	q.Put([]byte("1"))
	assert.Len(t, received, 1)
	assert.Equal(t, []byte("1"), received[0])
	assert.Equal(t, 0, q.CurrentOccupation())
	assert.Equal(t, int64(1), q.OctetsAccepted)

	// blocked until the receiver resumes
	q.Put([]byte("22"))
	assert.Len(t, received, 1)
	assert.Equal(t, 2, q.CurrentOccupation())

	q.Resume()
	assert.Len(t, received, 2)
	assert.Equal(t, []byte("22"), received[1])
	assert.Equal(t, 0, q.CurrentOccupation())

	q.Resume()
	assert.Equal(t, int64(3), q.OctetsAccepted)
}

func TestDropTailOverflow(t *testing.T) {
	var received [][]byte
	q := CreateDropTailQueue()
	q.SetQueueSize(100)
	q.SetReceiver(func(el []byte) { received = append(received, el) })

	q.Put([]byte("333"))
	assert.Len(t, received, 1)

	q.Put(bytes.Repeat([]byte("4"), 50))
	q.Put(bytes.Repeat([]byte("5"), 50))
	assert.Len(t, received, 1)
	assert.Equal(t, 100, q.CurrentOccupation())
	assert.Equal(t, int64(103), q.OctetsAccepted)
	assert.Equal(t, int64(0), q.OctetsDropped)

	// the queue is full, the next packet is dropped
	q.Put([]byte("6"))
	assert.Equal(t, 100, q.CurrentOccupation())
	assert.Equal(t, int64(1), q.OctetsDropped)

	q.Resume()
	assert.Len(t, received, 2)
	assert.Equal(t, bytes.Repeat([]byte("4"), 50), received[1])
	assert.Equal(t, 50, q.CurrentOccupation())

	// too large to fit the remaining space
	q.Put(bytes.Repeat([]byte("7"), 51))
	assert.Equal(t, 50, q.CurrentOccupation())
	assert.Equal(t, int64(52), q.OctetsDropped)

	q.Resume()
	assert.Len(t, received, 3)
	assert.Equal(t, bytes.Repeat([]byte("5"), 50), received[2])

	// drained, a further resume pushes nothing
	q.Resume()
	assert.Len(t, received, 3)
}

func TestDropTailGet(t *testing.T) {
	q := CreateDropTailQueue()
	q.SetReceiver(func(el []byte) {})

	assert.Nil(t, q.Get())

	q.enqueue([]byte("a"))
	q.enqueue([]byte("b"))
	assert.Equal(t, []byte("a"), q.Get())
	assert.Equal(t, []byte("b"), q.Get())
	assert.Nil(t, q.Get())
}

func TestPrioQueueOrdering(t *testing.T) {
	var received [][]byte
	q := CreatePrioQueue()
	q.SetReceiver(func(el []byte) { received = append(received, el) })

	// the first element goes straight through
	q.Put([]byte("first"), 5)
	assert.Len(t, received, 1)

	q.Put([]byte("low"), 9)
	q.Put([]byte("high"), 1)
	q.Put([]byte("mid"), 5)

	// lowest priority value is served first
	q.Resume()
	q.Resume()
	q.Resume()
	assert.Equal(t, [][]byte{
		[]byte("first"), []byte("high"), []byte("mid"), []byte("low"),
	}, received)
}

func TestPrioQueueSharedLimit(t *testing.T) {
	q := CreatePrioQueue()
	q.SetQueueSize(10)
	q.SetReceiver(func(el []byte) {})

	q.Put(bytes.Repeat([]byte("a"), 6), 1) // pushed out immediately
	q.Put(bytes.Repeat([]byte("b"), 6), 1)
	q.Put(bytes.Repeat([]byte("c"), 6), 2) // exceeds the shared size limit
	assert.Equal(t, int64(12), q.OctetsAccepted)
	assert.Equal(t, int64(6), q.OctetsDropped)
	assert.Equal(t, 6, q.CurrentOccupation())
}
