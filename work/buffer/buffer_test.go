package buffer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsSizedBuffer(t *testing.T) {
	bp := NewBufferPool(4096)
	buf := bp.Get()
	assert.Len(t, buf.B, 4096)
	bp.Put(buf)

	again := bp.Get()
	assert.Len(t, again.B, 4096)
	bp.Put(again)
}

func TestDefaultSize(t *testing.T) {
	bp := NewBufferPool(0)
	assert.Len(t, bp.Get().B, 32*1024)
}

func TestCopy(t *testing.T) {
	bp := NewBufferPool(16)
	payload := strings.Repeat("0123456789", 100)

	var dst bytes.Buffer
	n, err := bp.Copy(&dst, strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, dst.String())
}

// readFromWriter behaves like http.ResponseWriter, which implements io.ReaderFrom.
type readFromWriter struct {
	bytes.Buffer
	readFromCalls int
	writes        int
}

func (w *readFromWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func (w *readFromWriter) ReadFrom(r io.Reader) (int64, error) {
	w.readFromCalls++
	return w.Buffer.ReadFrom(r)
}

func TestCopyUsesPooledBufferWithReaderFrom(t *testing.T) {
	bp := NewBufferPool(16)
	payload := strings.Repeat("a", 100)

	dst := &readFromWriter{}
	n, err := bp.Copy(dst, strings.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(100), n)
	assert.Equal(t, payload, dst.String())
	assert.Zero(t, dst.readFromCalls)
	// 100 bytes through a 16 byte buffer
	assert.Equal(t, 7, dst.writes)
}
