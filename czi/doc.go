// Package czi is a safety layer over a native CZI image-container library.
//
// Every opaque native object (stream, reader, writer, sub-block, metadata
// segment, attachment) is wrapped in an owned, lifetime-checked value that
// releases the native resource exactly once, and caller-supplied io.ReaderAt /
// io.WriterAt storage is bridged to the native library's callback-based stream
// interface. Callers never see raw handles or native status codes; every
// fallible operation returns a value or a structured *Error.
//
// Wrapped objects are not safe for concurrent use. A handle belongs to one
// logical owner at a time; cross-thread coordination, where needed, is the
// caller's responsibility.
//
// The native backend is selected at build time. Linking against the real
// library requires the "libczi" build tag; tests and the czitool selftest run
// against the in-memory emulation in internal/memczi.
package czi
