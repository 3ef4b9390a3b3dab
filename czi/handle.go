package czi

import (
	"github.com/robert-malhotra/go-czi/internal/capi"
)

// handle pairs one native object with the release entry point bound to its
// kind. The wrapper owning the handle is its single owner: release runs at
// most once, and any use after release fails with KindAlreadyClosed instead
// of reaching the native library. Handles transfer by moving the pointer;
// they are never duplicated, since the native API has no reference counting
// for these objects.
type handle struct {
	lib     capi.Library
	h       capi.Handle
	release func(capi.Handle) capi.Status
	kind    string
}

// acquired checks the outcome of a native acquisition call and produces an
// owned handle. On a non-OK status, or a null handle with an OK status, no
// handle is produced and nothing is left to release.
func acquired(lib capi.Library, kind string, h capi.Handle, st capi.Status, release func(capi.Handle) capi.Status) (*handle, *Error) {
	if !st.OK() {
		return nil, statusError(lib, "acquire "+kind, st)
	}
	if h == capi.InvalidHandle {
		return nil, layerError(KindNativeInternal, "acquire "+kind, "native call succeeded but returned no handle")
	}
	return &handle{lib: lib, h: h, release: release, kind: kind}, nil
}

// raw borrows the native handle value for the duration of a single call.
// The returned value must not be stored.
func (h *handle) raw() (capi.Handle, *Error) {
	if h == nil || h.h == capi.InvalidHandle {
		return capi.InvalidHandle, alreadyClosed(h.kindName())
	}
	return h.h, nil
}

// closed reports whether the handle has been released.
func (h *handle) closed() bool {
	return h == nil || h.h == capi.InvalidHandle
}

// close releases the native object. The handle value is invalidated before
// the release call, so a second close is a no-op and any concurrent-looking
// reuse fails with KindAlreadyClosed rather than reaching freed native state.
func (h *handle) close() *Error {
	if h == nil || h.h == capi.InvalidHandle {
		return nil
	}
	raw := h.h
	h.h = capi.InvalidHandle
	if st := h.release(raw); !st.OK() {
		return statusError(h.lib, "release "+h.kind, st)
	}
	return nil
}

func (h *handle) kindName() string {
	if h == nil {
		return "handle"
	}
	return h.kind
}
