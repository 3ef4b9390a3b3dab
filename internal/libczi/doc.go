// Package libczi binds the native libCZIAPI shared library. The binding is
// only compiled with the "libczi" build tag and registers itself as the
// process-wide default backend from an init function; without the tag the
// package contributes nothing and callers fall back to an explicitly
// configured backend.
//
// Stream callbacks cross the C boundary through exported trampolines keyed
// by runtime/cgo.Handle values carried in the native side's opaque handle
// fields, so no Go pointer is ever stored in C memory.
package libczi
