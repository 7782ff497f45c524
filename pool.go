package mqtt311

import (
	"sync"
)

// Buffer pools for reducing allocations in hot paths.
var (
	// bytesBufferPool for packet encoding
	bytesBufferPool = sync.Pool{
		New: func() any {
			return &bytesBuffer{}
		},
	}

	// frameBufferPool for frames that do not fit the reader's inline buffer
	frameBufferPool = sync.Pool{
		New: func() any {
			b := make([]byte, 0, 1024)
			return &b
		},
	}
)

// maxPooledBufferSize caps what is returned to the pools.
const maxPooledBufferSize = 65536

type bytesBuffer struct {
	data []byte
}

// getBytesBuffer returns a pooled bytesBuffer.
func getBytesBuffer() *bytesBuffer {
	b := bytesBufferPool.Get().(*bytesBuffer)
	b.data = b.data[:0]
	return b
}

// putBytesBuffer returns a bytesBuffer to the pool.
func putBytesBuffer(b *bytesBuffer) {
	if b == nil {
		return
	}
	if cap(b.data) <= maxPooledBufferSize {
		b.data = b.data[:0]
		bytesBufferPool.Put(b)
	}
}

// getFrameBuffer returns a pooled buffer with at least size bytes of capacity.
func getFrameBuffer(size int) *[]byte {
	b := frameBufferPool.Get().(*[]byte)
	if cap(*b) < size {
		*b = make([]byte, 0, size)
	}
	*b = (*b)[:0]
	return b
}

// putFrameBuffer returns a frame buffer to the pool.
func putFrameBuffer(b *[]byte) {
	if b == nil || cap(*b) > maxPooledBufferSize {
		return
	}
	*b = (*b)[:0]
	frameBufferPool.Put(b)
}
