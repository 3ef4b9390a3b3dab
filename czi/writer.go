package czi

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

// Writer authors a CZI document through the native library. A Writer owns
// the stream it was created over; Close finalizes the document (writing the
// final directory segments), releases the writer handle, flushes the
// outbound adapter and closes the stream, in that order.
type Writer struct {
	lib    capi.Library
	handle *handle
	stream *OutputStream
	guid   uuid.UUID
}

// NewWriter creates a writer over the given stream and takes ownership of
// it. On failure the stream stays owned by the caller.
func NewWriter(stream *OutputStream, opts ...WriterOption) (*Writer, error) {
	o := defaultWriterOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.fileGUID == (uuid.UUID{}) {
		o.fileGUID = uuid.New()
	}
	lib := stream.lib

	creation, err := json.MarshalToString(map[string]any{
		"allow_duplicate_subblocks": o.allowDuplicateSubBlocks,
	})
	if err != nil {
		return nil, layerError(KindNativeInternal, "create writer", "encoding creation options: "+err.Error())
	}

	h, st := lib.CreateWriter(creation)
	hd, cerr := acquired(lib, "writer", h, st, lib.ReleaseWriter)
	if cerr != nil {
		return nil, cerr
	}

	params := map[string]any{
		"file_guid": o.fileGUID.String(),
	}
	if o.reservedAttachmentDirs > 0 {
		params["reserved_size_attachments_directory"] = o.reservedAttachmentDirs
	}
	if o.reservedMetadataSegment > 0 {
		params["reserved_size_metadata_segment"] = o.reservedMetadataSegment
	}
	if o.mIndexBoundsSet {
		params["minimum_m_index"] = o.minMIndex
		params["maximum_m_index"] = o.maxMIndex
	}
	paramDoc, err := json.MarshalToString(params)
	if err != nil {
		hd.close()
		return nil, layerError(KindNativeInternal, "create writer", "encoding init parameters: "+err.Error())
	}

	raw, cerr := hd.raw()
	if cerr != nil {
		return nil, cerr
	}
	streamRaw, cerr := stream.handle.raw()
	if cerr != nil {
		hd.close()
		return nil, cerr
	}
	if st := lib.WriterInit(raw, streamRaw, paramDoc); !st.OK() {
		hd.close()
		if pending := stream.takePending(); pending != nil {
			return nil, wrapError(pending.Kind, "init writer", st, pending)
		}
		return nil, statusError(lib, "init writer", st)
	}

	return &Writer{lib: lib, handle: hd, stream: stream, guid: o.fileGUID}, nil
}

// CreateFile creates a writer over a native file-backed output stream. Use
// WithStreamOptions to configure that stream.
func CreateFile(path string, overwrite bool, opts ...WriterOption) (*Writer, error) {
	o := defaultWriterOptions()
	for _, opt := range opts {
		opt(o)
	}
	stream, err := CreateFileOutputStream(path, overwrite, o.streamOpts...)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(stream, opts...)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return w, nil
}

// FileGUID returns the document GUID the writer was created with.
func (w *Writer) FileGUID() uuid.UUID {
	return w.guid
}

// AddSubBlock appends one sub-block. For uncompressed payloads the declared
// dimensions must match the buffer exactly; a mismatch fails with
// KindInvalidArgument before anything reaches the native library. Compressed
// payloads are stored as given.
func (w *Writer) AddSubBlock(desc SubBlockDescriptor, pixels []byte) error {
	return w.addSubBlock(desc, pixels, nil)
}

// AddSubBlockWithMetadata appends one sub-block together with its own XML
// metadata.
func (w *Writer) AddSubBlockWithMetadata(desc SubBlockDescriptor, pixels, metadata []byte) error {
	return w.addSubBlock(desc, pixels, metadata)
}

func (w *Writer) addSubBlock(desc SubBlockDescriptor, pixels, metadata []byte) error {
	raw, cerr := w.handle.raw()
	if cerr != nil {
		return cerr
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return layerError(KindInvalidArgument, "add sub-block", "non-positive sub-block dimensions")
	}
	if desc.PixelType.BytesPerPixel() == 0 {
		return layerError(KindInvalidArgument, "add sub-block", "unknown pixel type")
	}
	if desc.Compression == CompressionUncompressed {
		if want := desc.StoredByteCount(); len(pixels) != want {
			return layerError(KindInvalidArgument, "add sub-block",
				"payload is "+strconv.Itoa(len(pixels))+" bytes, descriptor declares "+strconv.Itoa(want))
		}
	} else if len(pixels) == 0 {
		return layerError(KindInvalidArgument, "add sub-block", "empty compressed payload")
	}

	rect := desc.Rect
	if rect.W == 0 && rect.H == 0 {
		rect = Rect{X: rect.X, Y: rect.Y, W: desc.Width, H: desc.Height}
	}
	info := &capi.AddSubBlockInfo{
		Coordinate:     desc.Coordinate.toInterop(),
		MIndexValid:    desc.HasMIndex,
		MIndex:         int32(desc.MIndex),
		X:              int32(rect.X),
		Y:              int32(rect.Y),
		LogicalWidth:   int32(rect.W),
		LogicalHeight:  int32(rect.H),
		PhysicalWidth:  int32(desc.Width),
		PhysicalHeight: int32(desc.Height),
		PixelType:      int32(desc.PixelType),
		Compression:    int32(desc.Compression),
		Data:           pixels,
		Metadata:       metadata,
	}
	if st := w.lib.WriterAddSubBlock(raw, info); !st.OK() {
		return w.callError("add sub-block", st)
	}
	return nil
}

// AddAttachment appends a named attachment. The contentFileType is the
// short type tag readers use to interpret the payload (e.g. "CZTXT",
// "JPG"); a fresh content GUID is generated for the entry.
func (w *Writer) AddAttachment(name, contentFileType string, data []byte) error {
	raw, cerr := w.handle.raw()
	if cerr != nil {
		return cerr
	}
	if name == "" {
		return layerError(KindInvalidArgument, "add attachment", "empty attachment name")
	}
	info := &capi.AddAttachmentInfo{
		GUID:            [16]byte(uuid.New()),
		ContentFileType: contentFileType,
		Name:            name,
		Data:            data,
	}
	if st := w.lib.WriterAddAttachment(raw, info); !st.OK() {
		return w.callError("add attachment", st)
	}
	return nil
}

// WriteMetadata stores the document XML metadata. Calling it again replaces
// the previous document.
func (w *Writer) WriteMetadata(xml string) error {
	raw, cerr := w.handle.raw()
	if cerr != nil {
		return cerr
	}
	info := &capi.WriteMetadataInfo{XML: []byte(xml)}
	if st := w.lib.WriterWriteMetadata(raw, info); !st.OK() {
		return w.callError("write metadata", st)
	}
	return nil
}

// Close finalizes the document and releases everything the writer owns. The
// finalize step writes the directory segments and rewrites the header, so
// its error is surfaced, never swallowed; the native handles are released
// regardless. Writing after Close fails with KindAlreadyClosed. Closing
// twice is a no-op.
func (w *Writer) Close() error {
	if w.handle.closed() {
		return nil
	}
	raw, cerr := w.handle.raw()
	if cerr != nil {
		return cerr
	}

	var failure *Error
	if st := w.lib.WriterClose(raw); !st.OK() {
		failure = w.callError("finalize writer", st)
	}
	if cerr := w.handle.close(); cerr != nil && failure == nil {
		failure = cerr
	}
	if ferr := w.stream.flush(); ferr != nil && failure == nil {
		failure = ferr
	}
	serr := w.stream.Close()
	if failure != nil {
		return failure
	}
	return serr
}

func (w *Writer) callError(op string, st capi.Status) *Error {
	if pending := w.stream.takePending(); pending != nil {
		return wrapError(pending.Kind, op, st, pending)
	}
	return statusError(w.lib, op, st)
}
