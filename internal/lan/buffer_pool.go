package lan

import "sync"

// bufferPool recycles receive buffers off the UDP hot path, adapted from
// the teacher's internal/transport/buffer_pool.go.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, receiveBufferBytes)
		return &buf
	},
}

func getBuffer() *[]byte { return bufferPool.Get().(*[]byte) }

func putBuffer(buf *[]byte) { bufferPool.Put(buf) }
