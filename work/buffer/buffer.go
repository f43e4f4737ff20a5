package buffer

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

// BufferPool hands out fixed-size copy buffers for relaying upstream bodies.
// Buffers come from valyala/bytebufferpool so steady-state relays do not allocate.
type BufferPool struct {
	pool       *bytebufferpool.Pool
	bufferSize int
}

// NewBufferPool creates a pool of buffers of bufferSize bytes.
func NewBufferPool(bufferSize int) *BufferPool {
	if bufferSize <= 0 {
		bufferSize = 32 * 1024
	}
	return &BufferPool{
		bufferSize: bufferSize,
		pool:       &bytebufferpool.Pool{},
	}
}

// Get retrieves a buffer whose B slice has length bufferSize.
func (bp *BufferPool) Get() *bytebufferpool.ByteBuffer {
	buf := bp.pool.Get()
	if cap(buf.B) < bp.bufferSize {
		buf.B = make([]byte, bp.bufferSize)
	}
	buf.B = buf.B[:bp.bufferSize]
	return buf
}

// Put returns a buffer to the pool.
func (bp *BufferPool) Put(buf *bytebufferpool.ByteBuffer) {
	if buf != nil {
		buf.Reset()
		bp.pool.Put(buf)
	}
}

// Copy streams src into dst through a pooled buffer and returns the byte count.
// ReaderFrom and WriterTo are hidden from io.CopyBuffer, otherwise an
// http.ResponseWriter would take over the copy with its own buffer.
func (bp *BufferPool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := bp.Get()
	defer bp.Put(buf)
	return io.CopyBuffer(writerOnly{dst}, readerOnly{src}, buf.B)
}

type writerOnly struct{ io.Writer }

type readerOnly struct{ io.Reader }
