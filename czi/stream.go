package czi

import (
	"io"
	"os"
	"sync"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// InputStream is an owned native input stream. Streams created over caller
// storage keep the bridging adapter alive until the native side can no longer
// invoke its callbacks.
type InputStream struct {
	lib     capi.Library
	handle  *handle
	adapter *inAdapter // nil for file-backed streams
}

// inAdapter bridges an io.ReaderAt to the native read callbacks. It carries
// the trampoline state the native library needs: the memoized size, the
// pending-error slot, and the closed gate that makes late callbacks fail
// safely instead of touching a torn-down source.
type inAdapter struct {
	mu      sync.Mutex
	src     io.ReaderAt
	closed  bool
	pending *Error

	sizeOnce  sync.Once
	sizeHint  int64 // from WithStreamSize, -1 when absent
	size      int64
	sizeKnown bool
}

// NewInputStream exposes src as a native input stream. The stream takes no
// ownership of src beyond calling its methods; if src needs closing, close it
// after the stream (and any reader built on it) is closed.
//
// Size is probed lazily unless WithStreamSize is given: a Size() int64
// method, an io.Seeker, or a Stat() call are tried in that order, and the
// answer is memoized for the life of the stream.
func NewInputStream(src io.ReaderAt, opts ...StreamOption) (*InputStream, error) {
	o := applyStreamOptions(opts)
	lib, err := o.library()
	if err != nil {
		return nil, err
	}

	a := &inAdapter{src: src, sizeHint: o.size}
	ext := &capi.ExternalInputStream{
		Read:  a.read,
		Size:  a.probeSize,
		Close: a.close,
	}

	h, st := lib.CreateInputStreamFromExternal(ext)
	hd, cerr := acquired(lib, "input stream", h, st, lib.ReleaseInputStream)
	if cerr != nil {
		return nil, cerr
	}
	return &InputStream{lib: lib, handle: hd, adapter: a}, nil
}

// OpenFileInputStream opens a native file-backed input stream for path.
func OpenFileInputStream(path string, opts ...StreamOption) (*InputStream, error) {
	o := applyStreamOptions(opts)
	lib, err := o.library()
	if err != nil {
		return nil, err
	}
	h, st := lib.CreateInputStreamFromFile(path)
	hd, cerr := acquired(lib, "input stream", h, st, lib.ReleaseInputStream)
	if cerr != nil {
		return nil, cerr
	}
	return &InputStream{lib: lib, handle: hd}, nil
}

// Close releases the native stream. The adapter is only marked closed after
// the native release returns, since the native side may still invoke
// callbacks during the release call. Closing twice is a no-op.
func (s *InputStream) Close() error {
	err := s.handle.close()
	if s.adapter != nil {
		s.adapter.markClosed()
	}
	if err != nil {
		return err
	}
	return nil
}

// takePending returns and clears the adapter-captured error, if any. Native
// calls that fail after triggering stream callbacks re-surface this as their
// own error record.
func (s *InputStream) takePending() *Error {
	if s.adapter == nil {
		return nil
	}
	return s.adapter.takePending()
}

// read is the inbound trampoline target. It reports exactly the count the
// source produced; a short read is an honest short count with no error, and a
// source failure is captured locally and reported as a status code, never a
// panic across the boundary.
func (a *inAdapter) read(offset int64, p []byte) (int, *capi.StreamError) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.pending = alreadyClosed("stream read")
		return 0, &capi.StreamError{Code: capi.StatusInvalidHandle, Message: "stream source closed"}
	}
	if offset < 0 {
		a.pending = layerError(KindInvalidArgument, "stream read", "negative offset")
		return 0, &capi.StreamError{Code: capi.StatusInvalidArgument, Message: "negative read offset"}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if a.sizeKnown && offset >= a.size {
		return 0, nil
	}

	n, err := a.src.ReadAt(p, offset)
	if err != nil && err != io.EOF {
		a.pending = wrapError(KindIO, "stream read", capi.StatusStreamIO, err)
		return n, &capi.StreamError{Code: capi.StatusStreamIO, Message: err.Error()}
	}
	return n, nil
}

// probeSize answers native size queries. The probe runs once and the answer
// stays consistent for the life of the stream.
func (a *inAdapter) probeSize() (int64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return a.size, a.sizeKnown
	}
	a.sizeOnce.Do(func() {
		if a.sizeHint >= 0 {
			a.size, a.sizeKnown = a.sizeHint, true
			return
		}
		switch src := a.src.(type) {
		case interface{ Size() int64 }:
			a.size, a.sizeKnown = src.Size(), true
		case io.Seeker:
			cur, err := src.Seek(0, io.SeekCurrent)
			if err != nil {
				return
			}
			end, err := src.Seek(0, io.SeekEnd)
			if err != nil {
				return
			}
			// Reads go through ReadAt and never depend on the seek
			// position, so a failed restore is not an error.
			_, _ = src.Seek(cur, io.SeekStart)
			a.size, a.sizeKnown = end, true
		case interface{ Stat() (os.FileInfo, error) }:
			if fi, err := src.Stat(); err == nil {
				a.size, a.sizeKnown = fi.Size(), true
			}
		}
	})
	return a.size, a.sizeKnown
}

// close is the native close callback; invoked exactly once by the backend
// when the stream object's last use ends.
func (a *inAdapter) close() {
	a.markClosed()
}

func (a *inAdapter) markClosed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.src = nil
}

func (a *inAdapter) takePending() *Error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p := a.pending
	a.pending = nil
	return p
}
