package memczi

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// streamFailure carries the status code a stream callback reported, so the
// emulation can hand the exact code back through the triggering entry point.
type streamFailure struct {
	code capi.Status
	msg  string
}

func (f *streamFailure) Error() string {
	if f.msg == "" {
		return fmt.Sprintf("stream failure (status %d)", f.code)
	}
	return f.msg
}

// asStatus maps an I/O error onto the status domain. Premature end of the
// container is corruption; everything else without a reported code is a
// stream failure.
func asStatus(err error) capi.Status {
	if err == nil {
		return capi.StatusOK
	}
	var f *streamFailure
	if errors.As(err, &f) {
		return f.code
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return capi.StatusCorruptData
	}
	return capi.StatusStreamIO
}

// extReaderAt adapts external read callbacks to io.ReaderAt. A single ReadAt
// may issue several callback invocations; the callback contract allows short
// reads.
type extReaderAt struct {
	ext *capi.ExternalInputStream
}

func (r *extReaderAt) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, serr := r.ext.Read(off+int64(total), p[total:])
		if serr != nil {
			return total, &streamFailure{code: serr.Code, msg: serr.Message}
		}
		if n == 0 {
			if total == 0 {
				return 0, io.EOF
			}
			return total, io.ErrUnexpectedEOF
		}
		total += n
	}
	return total, nil
}

// extWriterAt adapts external write callbacks to io.WriterAt.
type extWriterAt struct {
	ext *capi.ExternalOutputStream
}

func (w *extWriterAt) WriteAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		n, serr := w.ext.Write(off+int64(total), p[total:])
		total += n
		if serr != nil {
			return total, &streamFailure{code: serr.Code, msg: serr.Message}
		}
		if n == 0 {
			return total, &streamFailure{code: capi.StatusStreamIO, msg: "write made no progress"}
		}
	}
	return total, nil
}

// inputStream is the object behind an input stream handle.
type inputStream struct {
	r         io.ReaderAt
	size      int64
	sizeKnown bool
	closeFn   func()
}

// outputStream is the object behind an output stream handle.
type outputStream struct {
	w       io.WriterAt
	closeFn func()
}

func (l *Library) CreateInputStreamFromExternal(ext *capi.ExternalInputStream) (capi.Handle, capi.Status) {
	if ext == nil || ext.Read == nil {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	s := &inputStream{r: &extReaderAt{ext: ext}}
	if ext.Size != nil {
		if n, ok := ext.Size(); ok {
			s.size, s.sizeKnown = n, true
		}
	}
	if ext.Close != nil {
		s.closeFn = ext.Close
	}
	return l.add(kindInputStream, s), capi.StatusOK
}

func (l *Library) CreateInputStreamFromFile(path string) (capi.Handle, capi.Status) {
	if path == "" {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	f, err := os.Open(path)
	if err != nil {
		return capi.InvalidHandle, capi.StatusStreamIO
	}
	s := &inputStream{r: f, closeFn: func() { f.Close() }}
	if fi, err := f.Stat(); err == nil {
		s.size, s.sizeKnown = fi.Size(), true
	}
	return l.add(kindInputStream, s), capi.StatusOK
}

func (l *Library) ReleaseInputStream(h capi.Handle) capi.Status {
	v, st := l.remove(h, kindInputStream)
	if !st.OK() {
		return st
	}
	s := v.(*inputStream)
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
	return capi.StatusOK
}

func (l *Library) CreateOutputStreamFromExternal(ext *capi.ExternalOutputStream) (capi.Handle, capi.Status) {
	if ext == nil || ext.Write == nil {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	s := &outputStream{w: &extWriterAt{ext: ext}}
	if ext.Close != nil {
		s.closeFn = ext.Close
	}
	return l.add(kindOutputStream, s), capi.StatusOK
}

func (l *Library) CreateOutputStreamForFile(path string, overwrite bool) (capi.Handle, capi.Status) {
	if path == "" {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	flags := os.O_RDWR | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return capi.InvalidHandle, capi.StatusStreamIO
	}
	return l.add(kindOutputStream, &outputStream{w: f, closeFn: func() { f.Close() }}), capi.StatusOK
}

func (l *Library) ReleaseOutputStream(h capi.Handle) capi.Status {
	v, st := l.remove(h, kindOutputStream)
	if !st.OK() {
		return st
	}
	s := v.(*outputStream)
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
	return capi.StatusOK
}
