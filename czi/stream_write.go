package czi

import (
	"io"
	"sync"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// OutputStream is an owned native output stream over caller storage.
type OutputStream struct {
	lib     capi.Library
	handle  *handle
	adapter *outAdapter // nil for file-backed streams
}

// outAdapter bridges an io.WriterAt to the native write callbacks. Offsets
// arrive non-monotonically: the native library rewrites header segments after
// appending data, so the sink must support positioned writes.
type outAdapter struct {
	mu      sync.Mutex
	dst     io.WriterAt
	closed  bool
	pending *Error
}

// NewOutputStream exposes dst as a native output stream. The stream takes no
// ownership of dst beyond calling its methods; flushing happens when the
// writer built on the stream is finalized, via dst's Sync or Flush method if
// it has one.
func NewOutputStream(dst io.WriterAt, opts ...StreamOption) (*OutputStream, error) {
	o := applyStreamOptions(opts)
	lib, err := o.library()
	if err != nil {
		return nil, err
	}

	a := &outAdapter{dst: dst}
	ext := &capi.ExternalOutputStream{
		Write: a.write,
		Close: a.close,
	}

	h, st := lib.CreateOutputStreamFromExternal(ext)
	hd, cerr := acquired(lib, "output stream", h, st, lib.ReleaseOutputStream)
	if cerr != nil {
		return nil, cerr
	}
	return &OutputStream{lib: lib, handle: hd, adapter: a}, nil
}

// CreateFileOutputStream opens a native file-backed output stream for path.
func CreateFileOutputStream(path string, overwrite bool, opts ...StreamOption) (*OutputStream, error) {
	o := applyStreamOptions(opts)
	lib, err := o.library()
	if err != nil {
		return nil, err
	}
	h, st := lib.CreateOutputStreamForFile(path, overwrite)
	hd, cerr := acquired(lib, "output stream", h, st, lib.ReleaseOutputStream)
	if cerr != nil {
		return nil, cerr
	}
	return &OutputStream{lib: lib, handle: hd}, nil
}

// Close releases the native stream. Closing twice is a no-op.
func (s *OutputStream) Close() error {
	err := s.handle.close()
	if s.adapter != nil {
		s.adapter.markClosed()
	}
	if err != nil {
		return err
	}
	return nil
}

func (s *OutputStream) takePending() *Error {
	if s.adapter == nil {
		return nil
	}
	return s.adapter.takePending()
}

// flush pushes buffered bytes in the sink to stable storage, if the sink
// exposes a way to do that. Called when the writer is finalized.
func (s *OutputStream) flush() *Error {
	if s.adapter == nil {
		return nil
	}
	return s.adapter.flush()
}

// write is the outbound trampoline target. A partial write is a failure: the
// native library's byte accounting assumes the full range landed, so anything
// short is reported as an I/O error rather than silently truncated.
func (a *outAdapter) write(offset int64, p []byte) (int, *capi.StreamError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.pending = alreadyClosed("stream write")
		return 0, &capi.StreamError{Code: capi.StatusInvalidHandle, Message: "stream sink closed"}
	}
	if offset < 0 {
		a.pending = layerError(KindInvalidArgument, "stream write", "negative offset")
		return 0, &capi.StreamError{Code: capi.StatusInvalidArgument, Message: "negative write offset"}
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := a.dst.WriteAt(p, offset)
	if err != nil {
		a.pending = wrapError(KindIO, "stream write", capi.StatusStreamIO, err)
		return n, &capi.StreamError{Code: capi.StatusStreamIO, Message: err.Error()}
	}
	if n < len(p) {
		a.pending = layerError(KindIO, "stream write", "short write")
		return n, &capi.StreamError{Code: capi.StatusStreamIO, Message: "short write"}
	}
	return n, nil
}

func (a *outAdapter) flush() *Error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return alreadyClosed("stream flush")
	}
	var err error
	switch dst := a.dst.(type) {
	case interface{ Sync() error }:
		err = dst.Sync()
	case interface{ Flush() error }:
		err = dst.Flush()
	}
	if err != nil {
		return wrapError(KindIO, "stream flush", capi.StatusStreamIO, err)
	}
	return nil
}

func (a *outAdapter) close() {
	a.markClosed()
}

func (a *outAdapter) markClosed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.dst = nil
}

func (a *outAdapter) takePending() *Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.pending
	a.pending = nil
	return p
}
