package czi

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-czi/internal/capi"
	"github.com/robert-malhotra/go-czi/internal/memczi"
)

type failingReaderAt struct {
	err error
}

func (f *failingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	return 0, f.err
}

type failingWriterAt struct {
	err error
}

func (f *failingWriterAt) WriteAt(p []byte, off int64) (int, error) {
	return 0, f.err
}

// chunkedReaderAt serves at most chunk bytes per call and counts the calls,
// so a single logical read needs several callback invocations.
type chunkedReaderAt struct {
	data  []byte
	chunk int
	calls int
}

func (c *chunkedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	c.calls++
	if off < 0 || off >= int64(len(c.data)) {
		return 0, io.EOF
	}
	n := len(p)
	if n > c.chunk {
		n = c.chunk
	}
	n = copy(p[:n], c.data[off:])
	if int(off)+n == len(c.data) && n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// shortWriterAt claims fewer bytes than it was given, without an error.
type shortWriterAt struct{}

func (shortWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if len(p) > 1 {
		return len(p) - 1, nil
	}
	return len(p), nil
}

func TestOpenSurfacesSourceFailure(t *testing.T) {
	lib := memczi.New()
	cause := errors.New("disk detached")
	stream, err := NewInputStream(&failingReaderAt{err: cause}, WithBackend(lib))
	require.NoError(t, err)

	_, err = Open(stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause, "original cause stays reachable")
	require.NoError(t, stream.Close())
	assert.Zero(t, lib.LiveHandles())
}

func TestWriterInitSurfacesSinkFailure(t *testing.T) {
	lib := memczi.New()
	cause := errors.New("volume full")
	stream, err := NewOutputStream(&failingWriterAt{err: cause}, WithBackend(lib))
	require.NoError(t, err)

	_, err = NewWriter(stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, cause)
	require.NoError(t, stream.Close())
	assert.Zero(t, lib.LiveHandles())
}

func TestShortWriteIsAnError(t *testing.T) {
	lib := memczi.New()
	stream, err := NewOutputStream(shortWriterAt{}, WithBackend(lib))
	require.NoError(t, err)

	_, err = NewWriter(stream)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	require.NoError(t, stream.Close())
}

func TestInboundTrampolineContract(t *testing.T) {
	data := []byte("0123456789")
	a := &inAdapter{src: bytes.NewReader(data), sizeHint: -1}

	// Exact read.
	buf := make([]byte, 4)
	n, serr := a.read(0, buf)
	require.Nil(t, serr)
	assert.Equal(t, 4, n)
	assert.Equal(t, "0123", string(buf))

	// Zero-length read is a no-op.
	n, serr = a.read(0, nil)
	require.Nil(t, serr)
	assert.Zero(t, n)

	// Read at the end yields a zero count, not an error.
	n, serr = a.read(10, buf)
	require.Nil(t, serr)
	assert.Zero(t, n)

	// Negative offset is rejected with a status and leaves a pending error.
	_, serr = a.read(-1, buf)
	require.NotNil(t, serr)
	assert.Equal(t, capi.StatusInvalidArgument, serr.Code)
	pending := a.takePending()
	require.NotNil(t, pending)
	assert.Equal(t, KindInvalidArgument, pending.Kind)
	assert.Nil(t, a.takePending(), "pending error is consumed")

	// Size probe via the Size() method of bytes.Reader.
	size, known := a.probeSize()
	assert.True(t, known)
	assert.Equal(t, int64(10), size)

	// After close every read reports an invalid handle.
	a.markClosed()
	_, serr = a.read(0, buf)
	require.NotNil(t, serr)
	assert.Equal(t, capi.StatusInvalidHandle, serr.Code)
	assert.ErrorIs(t, a.takePending(), ErrAlreadyClosed)
}

func TestOutboundTrampolineContract(t *testing.T) {
	buf := &memBuffer{}
	a := &outAdapter{dst: buf}

	n, serr := a.write(4, []byte("tail"))
	require.Nil(t, serr)
	assert.Equal(t, 4, n)

	// Non-monotonic offset: patch the beginning after writing the tail.
	n, serr = a.write(0, []byte("head"))
	require.Nil(t, serr)
	assert.Equal(t, 4, n)
	assert.Equal(t, "headtail", string(buf.buf))

	_, serr = a.write(-3, []byte("x"))
	require.NotNil(t, serr)
	assert.Equal(t, capi.StatusInvalidArgument, serr.Code)
	a.takePending()

	a.markClosed()
	_, serr = a.write(0, []byte("x"))
	require.NotNil(t, serr)
	assert.Equal(t, capi.StatusInvalidHandle, serr.Code)
	assert.ErrorIs(t, a.takePending(), ErrAlreadyClosed)
}

func TestStreamSizeHint(t *testing.T) {
	// The hint answers the probe without consulting the source.
	a := &inAdapter{src: &failingReaderAt{err: errors.New("unusable")}, sizeHint: 42}
	size, known := a.probeSize()
	assert.True(t, known)
	assert.Equal(t, int64(42), size)
}

func TestInputStreamDoubleClose(t *testing.T) {
	lib := memczi.New()
	stream, err := NewInputStream(bytes.NewReader([]byte("x")), WithBackend(lib))
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
	created, released, doubles := lib.Stats()
	assert.Equal(t, created, released)
	assert.Zero(t, doubles)
}

func TestInboundShortReadReportsHonestCount(t *testing.T) {
	src := &chunkedReaderAt{data: []byte("0123456789"), chunk: 3}
	a := &inAdapter{src: src, sizeHint: -1}

	// The source hands back three bytes; the adapter reports exactly three,
	// with no status error and no pending record.
	buf := make([]byte, 8)
	n, serr := a.read(0, buf)
	require.Nil(t, serr)
	assert.Equal(t, 3, n)
	assert.Equal(t, "012", string(buf[:n]))
	assert.Nil(t, a.takePending())

	// The next callback picks up where the short count left off.
	n, serr = a.read(3, buf)
	require.Nil(t, serr)
	assert.Equal(t, 3, n)
	assert.Equal(t, "345", string(buf[:n]))
}

func TestChunkedSourceRoundTrip(t *testing.T) {
	for _, width := range []int{1, 7, 64, 300} {
		lib := memczi.New()
		pixels := gray8Pixels(width, 1)

		buf := &memBuffer{}
		out, err := NewOutputStream(buf, WithBackend(lib))
		require.NoError(t, err)
		w, err := NewWriter(out)
		require.NoError(t, err)
		require.NoError(t, w.AddSubBlock(SubBlockDescriptor{
			Width: width, Height: 1, PixelType: PixelGray8,
		}, pixels))
		require.NoError(t, w.Close())

		// Reopen through a source that never fills a buffer in one call.
		src := &chunkedReaderAt{data: buf.buf, chunk: 5}
		in, err := NewInputStream(src, WithBackend(lib))
		require.NoError(t, err)
		r, err := Open(in)
		require.NoError(t, err)

		decoded, err := r.DecodeSubBlock(0)
		require.NoError(t, err)
		assert.Equal(t, pixels, decoded.Data, "width %d", width)
		assert.Greater(t, src.calls, 2, "width %d should take several callbacks", width)

		require.NoError(t, r.Close())
		assert.Zero(t, lib.LiveHandles(), "width %d", width)
	}
}
