// Package capi defines the boundary with the native libCZIAPI library: the
// status-code domain, opaque handle values, the set of entry points the
// wrapper layer calls, and the callback structures for externally provided
// streams.
//
// Raw status codes and handles never leave this boundary; the czi package
// translates every Status at the point of the call.
package capi

import "sync"

// Status is a native result code. The values below 60 mirror the codes the
// native library reports; 60 and up are reserved for backends that can
// distinguish stream and decode failures. Unknown values are still valid
// members of the domain and translate to an unclassified internal error.
type Status int32

const (
	StatusOK                 Status = 0
	StatusInvalidArgument    Status = 1
	StatusInvalidHandle      Status = 2
	StatusOutOfMemory        Status = 3
	StatusIndexOutOfRange    Status = 4
	StatusLockUnlockViolated Status = 20
	StatusUnspecified        Status = 50

	// Reserved extension codes.
	StatusStreamIO    Status = 60
	StatusCorruptData Status = 61
	StatusUnsupported Status = 62
)

// OK reports whether the status indicates success.
func (s Status) OK() bool { return s == StatusOK }

// Handle is an opaque reference to a native object. The zero value is never a
// valid handle.
type Handle uint64

// InvalidHandle is the sentinel for "no object".
const InvalidHandle Handle = 0

// RawDataType selects which payload SubBlockGetRawData copies.
type RawDataType int32

const (
	RawPixelData RawDataType = 0
	RawMetadata  RawDataType = 1
)

// StreamError carries the error information a stream callback reports back to
// the native side in place of a Go error value.
type StreamError struct {
	Code    Status
	Message string
}

// ExternalInputStream holds the callbacks backing a native input stream. The
// native library invokes them synchronously, possibly several times per
// logical read. The callbacks must remain callable until Close runs; Close may
// happen after the stream handle itself has been released.
type ExternalInputStream struct {
	// Read copies up to len(p) bytes starting at offset and returns the count
	// actually read. A short count with a nil StreamError is a valid short
	// read, not a failure.
	Read func(offset int64, p []byte) (int, *StreamError)

	// Size reports the total stream size if known.
	Size func() (int64, bool)

	// Close releases the caller-side resources. Invoked exactly once.
	Close func()
}

// ExternalOutputStream holds the callbacks backing a native output stream.
// Offsets may arrive non-monotonically; the native library rewrites header
// segments after appending data.
type ExternalOutputStream struct {
	// Write stores p at offset and returns the count actually written.
	Write func(offset int64, p []byte) (int, *StreamError)

	// Close releases the caller-side resources. Invoked exactly once.
	Close func()
}

// Library is the set of native entry points the wrapper layer uses. Every
// method returns a Status; out-values are only meaningful when the status is
// StatusOK. Implementations: the cgo binding (build tag "libczi") and the
// in-memory emulation in internal/memczi.
type Library interface {
	// Streams.
	CreateInputStreamFromExternal(ext *ExternalInputStream) (Handle, Status)
	CreateInputStreamFromFile(path string) (Handle, Status)
	ReleaseInputStream(h Handle) Status
	CreateOutputStreamFromExternal(ext *ExternalOutputStream) (Handle, Status)
	CreateOutputStreamForFile(path string, overwrite bool) (Handle, Status)
	ReleaseOutputStream(h Handle) Status

	// Reader.
	CreateReader() (Handle, Status)
	ReaderOpen(reader, stream Handle, options string) Status
	ReaderGetFileHeaderInfo(reader Handle) (FileHeaderInfo, Status)
	ReaderGetStatistics(reader Handle) (SubBlockStatistics, Status)
	ReaderGetPyramidStatistics(reader Handle) (string, Status)
	ReaderGetSubBlockInfo(reader Handle, index int32) (SubBlockInfo, Status)
	ReaderReadSubBlock(reader Handle, index int32) (Handle, Status)
	ReaderGetMetadataSegment(reader Handle) (Handle, Status)
	ReaderGetAttachmentCount(reader Handle) (int32, Status)
	ReaderGetAttachmentInfo(reader Handle, index int32) (AttachmentInfo, Status)
	ReaderReadAttachment(reader Handle, index int32) (Handle, Status)
	ReleaseReader(h Handle) Status

	// Sub-block and bitmap.
	SubBlockGetInfo(h Handle) (SubBlockInfo, Status)
	// SubBlockGetRawData follows the native two-call protocol: with a nil
	// buffer it reports the payload size; otherwise it copies at most len(p)
	// bytes and reports the full payload size.
	SubBlockGetRawData(h Handle, kind RawDataType, p []byte) (uint64, Status)
	SubBlockCreateBitmap(h Handle) (Handle, Status)
	ReleaseSubBlock(h Handle) Status
	BitmapGetInfo(h Handle) (BitmapInfo, Status)
	// BitmapLock exposes the decoded pixel memory. The returned slice aliases
	// native memory and is only valid until BitmapUnlock; callers copy before
	// unlocking. Lock and unlock calls must balance.
	BitmapLock(h Handle) (BitmapLockInfo, Status)
	BitmapUnlock(h Handle) Status
	ReleaseBitmap(h Handle) Status

	// Metadata segment. The returned XML is a copy owned by the caller.
	MetadataSegmentGetXML(h Handle) ([]byte, Status)
	ReleaseMetadataSegment(h Handle) Status

	// Attachment.
	AttachmentGetInfo(h Handle) (AttachmentInfo, Status)
	// AttachmentGetRawData follows the same two-call protocol as
	// SubBlockGetRawData.
	AttachmentGetRawData(h Handle, p []byte) (uint64, Status)
	ReleaseAttachment(h Handle) Status

	// Writer.
	CreateWriter(options string) (Handle, Status)
	WriterInit(writer, stream Handle, parameters string) Status
	WriterAddSubBlock(writer Handle, info *AddSubBlockInfo) Status
	WriterAddAttachment(writer Handle, info *AddAttachmentInfo) Status
	WriterWriteMetadata(writer Handle, info *WriteMetadataInfo) Status
	WriterClose(writer Handle) Status
	ReleaseWriter(h Handle) Status

	// Diagnostics.
	GetErrorMessage(code Status) (string, Status)
	GetVersionInfo() (VersionInfo, Status)
	GetBuildInformation() (BuildInformation, Status)
}

var (
	defaultMu  sync.Mutex
	defaultLib Library
)

// RegisterDefault installs the process-wide default library implementation.
// The first registration wins; later calls are ignored. The cgo backend
// registers itself from an init function when built with the "libczi" tag.
func RegisterDefault(lib Library) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLib == nil {
		defaultLib = lib
	}
}

// Default returns the registered default library, if any.
func Default() (Library, bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLib, defaultLib != nil
}
