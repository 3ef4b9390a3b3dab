// Package memczi is a pure-Go emulation of the native library boundary. It
// implements capi.Library over a small binary container so the wrapper layer
// and both stream bridges can be exercised end to end without linking the
// native library.
//
// The handle table tracks every object it hands out and counts releases, so
// tests can assert that wrappers release each handle exactly once.
package memczi
