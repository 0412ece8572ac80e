package wire

import (
	"bytes"
	"sync"
)

// ============================================================================
// Buffer Pool for Frame Encoding and Decoding
// ============================================================================
//
// Every frame read or written passes through a bytes.Buffer. Pooling them
// keeps the steady-state allocation rate of busy connections low: requests
// and responses are small, so a handful of warm buffers serve every frame.
//
// Buffers that grew past maxPooledBufferSize (large attribute values, big
// query results) are dropped instead of returned so that a single large
// frame does not pin memory for the lifetime of the process.

const (
	// initialBufferSize covers Logon/Execute requests and most responses.
	initialBufferSize = 4 << 10 // 4KB

	// maxPooledBufferSize is the largest capacity returned to the pool.
	maxPooledBufferSize = 1 << 20 // 1MB
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, initialBufferSize))
	},
}

// getBuffer returns an empty buffer from the pool.
// The caller must call putBuffer when finished with it.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns buf to the pool. Oversized buffers are left to the GC.
func putBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > maxPooledBufferSize {
		return
	}
	bufferPool.Put(buf)
}
