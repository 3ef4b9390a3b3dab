package czi

import (
	"github.com/google/uuid"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// StreamOption configures stream construction.
type StreamOption func(*streamOptions)

type streamOptions struct {
	size int64
	lib  capi.Library
}

func applyStreamOptions(opts []StreamOption) *streamOptions {
	o := &streamOptions{size: -1}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// library resolves the backend for this stream: an explicit WithBackend, or
// the process-wide default registered by the linked native binding.
func (o *streamOptions) library() (capi.Library, *Error) {
	if o.lib != nil {
		return o.lib, nil
	}
	if lib, ok := capi.Default(); ok {
		return lib, nil
	}
	return nil, layerError(KindNativeInternal, "select backend", "no native library backend linked")
}

// WithStreamSize declares the total stream size upfront, skipping the lazy
// probe.
func WithStreamSize(n int64) StreamOption {
	return func(o *streamOptions) {
		if n >= 0 {
			o.size = n
		}
	}
}

// WithBackend selects an explicit native backend for the stream instead of
// the process default. Readers and writers inherit the backend of the stream
// they are built on.
func WithBackend(lib capi.Library) StreamOption {
	return func(o *streamOptions) {
		o.lib = lib
	}
}

// WriterOption configures writer creation.
type WriterOption func(*writerOptions)

type writerOptions struct {
	fileGUID                uuid.UUID
	reservedAttachmentDirs  int
	reservedMetadataSegment int
	minMIndex, maxMIndex    int
	mIndexBoundsSet         bool
	allowDuplicateSubBlocks bool
	streamOpts              []StreamOption
}

func defaultWriterOptions() *writerOptions {
	return &writerOptions{}
}

// WithFileGUID sets the document GUID written to the file header. A random
// GUID is generated when the option is absent.
func WithFileGUID(id uuid.UUID) WriterOption {
	return func(o *writerOptions) {
		o.fileGUID = id
	}
}

// WithReservedAttachmentDirectory reserves n directory slots for attachments.
func WithReservedAttachmentDirectory(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 {
			o.reservedAttachmentDirs = n
		}
	}
}

// WithReservedMetadataSegment reserves n bytes for the metadata segment.
func WithReservedMetadataSegment(n int) WriterOption {
	return func(o *writerOptions) {
		if n > 0 {
			o.reservedMetadataSegment = n
		}
	}
}

// WithMIndexBounds declares the inclusive mosaic-index range the document
// will use.
func WithMIndexBounds(min, max int) WriterOption {
	return func(o *writerOptions) {
		o.minMIndex, o.maxMIndex = min, max
		o.mIndexBoundsSet = true
	}
}

// WithAllowDuplicateSubBlocks lets the writer accept two sub-blocks with the
// same coordinate.
func WithAllowDuplicateSubBlocks() WriterOption {
	return func(o *writerOptions) {
		o.allowDuplicateSubBlocks = true
	}
}

// WithStreamOptions forwards stream options (backend selection, size hints)
// to the output stream CreateFile builds internally. It has no effect on
// NewWriter, which is handed an existing stream.
func WithStreamOptions(opts ...StreamOption) WriterOption {
	return func(o *writerOptions) {
		o.streamOpts = append(o.streamOpts, opts...)
	}
}
