package czi

import (
	"strconv"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reader reads a CZI document through the native library. A Reader owns the
// stream it was opened over: the stream handle is released only after the
// reader handle, so the native side never sees a dangling stream.
type Reader struct {
	lib    capi.Library
	handle *handle
	stream *InputStream
	stats  capi.SubBlockStatistics
}

// FileHeaderInfo is the document file header: GUID plus format version.
type FileHeaderInfo struct {
	GUID         uuid.UUID
	MajorVersion int
	MinorVersion int
}

// PyramidLayerStatistics counts the sub-blocks of one pyramid layer within a
// scene.
type PyramidLayerStatistics struct {
	MinificationFactor int
	PyramidLayerNo     int
	Count              int
}

// PyramidStatistics maps each scene index to its pyramid layer statistics.
type PyramidStatistics struct {
	Scenes map[int][]PyramidLayerStatistics
}

// Open opens a CZI document over the given stream and takes ownership of it:
// closing the reader closes the stream, and the caller must not use the
// stream afterwards. On failure the stream stays owned by the caller.
func Open(stream *InputStream) (*Reader, error) {
	lib := stream.lib

	h, st := lib.CreateReader()
	hd, cerr := acquired(lib, "reader", h, st, lib.ReleaseReader)
	if cerr != nil {
		return nil, cerr
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
	if st := lib.ReaderOpen(raw, streamRaw, "{}"); !st.OK() {
		hd.close()
		if pending := stream.takePending(); pending != nil {
			return nil, wrapError(pending.Kind, "open reader", st, pending)
		}
		return nil, statusError(lib, "open reader", st)
	}

	stats, st := lib.ReaderGetStatistics(raw)
	if !st.OK() {
		hd.close()
		if pending := stream.takePending(); pending != nil {
			return nil, wrapError(pending.Kind, "read statistics", st, pending)
		}
		return nil, statusError(lib, "read statistics", st)
	}

	return &Reader{lib: lib, handle: hd, stream: stream, stats: stats}, nil
}

// OpenFile opens a CZI document from a file path using a native file stream.
func OpenFile(path string, opts ...StreamOption) (*Reader, error) {
	stream, err := OpenFileInputStream(path, opts...)
	if err != nil {
		return nil, err
	}
	r, err := Open(stream)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the reader handle and then the stream it owns. Closing
// twice is a no-op.
func (r *Reader) Close() error {
	if r.handle.closed() {
		return nil
	}
	cerr := r.handle.close()
	serr := r.stream.Close()
	if cerr != nil {
		return cerr
	}
	return serr
}

// SubBlockCount returns the number of sub-blocks in the document.
func (r *Reader) SubBlockCount() int {
	return int(r.stats.SubBlockCount)
}

// Statistics returns the document's sub-block statistics.
func (r *Reader) Statistics() SubBlockStatistics {
	return statisticsFromInterop(r.stats)
}

// FileHeader returns the document GUID and format version.
func (r *Reader) FileHeader() (FileHeaderInfo, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return FileHeaderInfo{}, cerr
	}
	info, st := r.lib.ReaderGetFileHeaderInfo(raw)
	if !st.OK() {
		return FileHeaderInfo{}, r.callError("read file header", st)
	}
	return FileHeaderInfo{
		GUID:         uuid.UUID(info.GUID),
		MajorVersion: int(info.MajorVersion),
		MinorVersion: int(info.MinorVersion),
	}, nil
}

// PyramidStatistics retrieves and parses the native pyramid statistics
// document.
func (r *Reader) PyramidStatistics() (*PyramidStatistics, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return nil, cerr
	}
	doc, st := r.lib.ReaderGetPyramidStatistics(raw)
	if !st.OK() {
		return nil, r.callError("read pyramid statistics", st)
	}

	var parsed struct {
		ScenePyramidStatistics map[string][]struct {
			LayerInfo struct {
				MinificationFactor int `json:"minificationFactor"`
				PyramidLayerNo     int `json:"pyramidLayerNo"`
			} `json:"layerInfo"`
			Count int `json:"count"`
		} `json:"scenePyramidStatistics"`
	}
	if err := json.UnmarshalFromString(doc, &parsed); err != nil {
		return nil, wrapError(KindCorrupt, "parse pyramid statistics", capi.StatusCorruptData, err)
	}
	out := &PyramidStatistics{Scenes: make(map[int][]PyramidLayerStatistics, len(parsed.ScenePyramidStatistics))}
	for key, layers := range parsed.ScenePyramidStatistics {
		scene, err := strconv.Atoi(key)
		if err != nil {
			return nil, layerError(KindCorrupt, "parse pyramid statistics", "non-numeric scene index "+key)
		}
		flat := make([]PyramidLayerStatistics, len(layers))
		for i, layer := range layers {
			flat[i] = PyramidLayerStatistics{
				MinificationFactor: layer.LayerInfo.MinificationFactor,
				PyramidLayerNo:     layer.LayerInfo.PyramidLayerNo,
				Count:              layer.Count,
			}
		}
		out.Scenes[scene] = flat
	}
	return out, nil
}

// SubBlock returns the descriptor of the sub-block at index. Fails with
// KindInvalidArgument when index is out of range.
func (r *Reader) SubBlock(index int) (SubBlockDescriptor, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return SubBlockDescriptor{}, cerr
	}
	if index < 0 || index >= r.SubBlockCount() {
		return SubBlockDescriptor{}, layerError(KindInvalidArgument, "sub-block descriptor", "index "+strconv.Itoa(index)+" out of range")
	}
	info, st := r.lib.ReaderGetSubBlockInfo(raw, int32(index))
	if !st.OK() {
		return SubBlockDescriptor{}, r.callError("sub-block descriptor", st)
	}
	return descriptorFromInterop(index, info), nil
}

// DecodeSubBlock decodes the sub-block at index into a host-owned pixel
// buffer, decompressing if needed. Fails with KindCorrupt on malformed data
// and KindUnsupported when the linked native library cannot decode the
// compression/pixel-type combination.
func (r *Reader) DecodeSubBlock(index int) (*PixelBuffer, error) {
	sb, err := r.readSubBlock(index)
	if err != nil {
		return nil, err
	}
	defer sb.close()

	sbRaw, cerr := sb.raw()
	if cerr != nil {
		return nil, cerr
	}
	bh, st := r.lib.SubBlockCreateBitmap(sbRaw)
	bitmap, cerr := acquired(r.lib, "bitmap", bh, st, r.lib.ReleaseBitmap)
	if cerr != nil {
		if pending := r.stream.takePending(); pending != nil {
			return nil, wrapError(pending.Kind, "decode sub-block", cerr.Code, pending)
		}
		return nil, cerr
	}
	defer bitmap.close()

	bRaw, cerr := bitmap.raw()
	if cerr != nil {
		return nil, cerr
	}
	info, st := r.lib.BitmapGetInfo(bRaw)
	if !st.OK() {
		return nil, r.callError("bitmap info", st)
	}
	lock, st := r.lib.BitmapLock(bRaw)
	if !st.OK() {
		return nil, r.callError("lock bitmap", st)
	}

	// Copy out of native memory row by row before unlocking; the locked view
	// is only valid while the lock is held.
	pt := PixelType(info.PixelType)
	rowBytes := int(info.Width) * pt.BytesPerPixel()
	buf := &PixelBuffer{
		Width:     int(info.Width),
		Height:    int(info.Height),
		PixelType: pt,
		Stride:    rowBytes,
		Data:      make([]byte, rowBytes*int(info.Height)),
	}
	stride := int(lock.Stride)
	for row := 0; row < buf.Height; row++ {
		copy(buf.Data[row*rowBytes:(row+1)*rowBytes], lock.Data[row*stride:row*stride+rowBytes])
	}

	if st := r.lib.BitmapUnlock(bRaw); !st.OK() {
		return nil, r.callError("unlock bitmap", st)
	}
	return buf, nil
}

// RawSubBlockData returns the sub-block's stored pixel payload exactly as it
// sits in the container, possibly compressed.
func (r *Reader) RawSubBlockData(index int) ([]byte, error) {
	return r.rawSubBlock(index, capi.RawPixelData)
}

// SubBlockMetadata returns the sub-block's own XML metadata, or an empty
// slice when the sub-block carries none.
func (r *Reader) SubBlockMetadata(index int) ([]byte, error) {
	return r.rawSubBlock(index, capi.RawMetadata)
}

func (r *Reader) rawSubBlock(index int, kind capi.RawDataType) ([]byte, error) {
	sb, err := r.readSubBlock(index)
	if err != nil {
		return nil, err
	}
	defer sb.close()

	raw, cerr := sb.raw()
	if cerr != nil {
		return nil, cerr
	}
	// Two-call protocol: size first, then copy.
	size, st := r.lib.SubBlockGetRawData(raw, kind, nil)
	if !st.OK() {
		return nil, r.callError("sub-block raw data", st)
	}
	data := make([]byte, size)
	if size == 0 {
		return data, nil
	}
	n, st := r.lib.SubBlockGetRawData(raw, kind, data)
	if !st.OK() {
		return nil, r.callError("sub-block raw data", st)
	}
	if n < size {
		data = data[:n]
	}
	return data, nil
}

// readSubBlock materializes the native sub-block object for index.
func (r *Reader) readSubBlock(index int) (*handle, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return nil, cerr
	}
	if index < 0 || index >= r.SubBlockCount() {
		return nil, layerError(KindInvalidArgument, "read sub-block", "index "+strconv.Itoa(index)+" out of range")
	}
	h, st := r.lib.ReaderReadSubBlock(raw, int32(index))
	if !st.OK() {
		return nil, r.callError("read sub-block", st)
	}
	if h == capi.InvalidHandle {
		// The native library reports success with no object when the index
		// names no sub-block.
		return nil, layerError(KindInvalidArgument, "read sub-block", "no sub-block at index "+strconv.Itoa(index))
	}
	sb, cerr := acquired(r.lib, "sub-block", h, st, r.lib.ReleaseSubBlock)
	if cerr != nil {
		return nil, cerr
	}
	return sb, nil
}

// Metadata retrieves the document XML metadata. The native metadata segment
// is released before returning; the result owns its bytes.
func (r *Reader) Metadata() (*Metadata, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return nil, cerr
	}
	h, st := r.lib.ReaderGetMetadataSegment(raw)
	seg, cerr := acquired(r.lib, "metadata segment", h, st, r.lib.ReleaseMetadataSegment)
	if cerr != nil {
		if pending := r.stream.takePending(); pending != nil {
			return nil, wrapError(pending.Kind, "read metadata", cerr.Code, pending)
		}
		return nil, cerr
	}
	defer seg.close()

	segRaw, cerr := seg.raw()
	if cerr != nil {
		return nil, cerr
	}
	xml, st := r.lib.MetadataSegmentGetXML(segRaw)
	if !st.OK() {
		return nil, r.callError("read metadata", st)
	}
	return &Metadata{xml: xml}, nil
}

// AttachmentCount returns the number of attachments in the document.
func (r *Reader) AttachmentCount() (int, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return 0, cerr
	}
	n, st := r.lib.ReaderGetAttachmentCount(raw)
	if !st.OK() {
		return 0, r.callError("attachment count", st)
	}
	return int(n), nil
}

// AttachmentInfo returns directory information about the attachment at index
// without materializing its payload.
func (r *Reader) AttachmentInfo(index int) (AttachmentInfo, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return AttachmentInfo{}, cerr
	}
	info, st := r.lib.ReaderGetAttachmentInfo(raw, int32(index))
	if !st.OK() {
		return AttachmentInfo{}, r.callError("attachment info", st)
	}
	return attachmentInfoFromInterop(info), nil
}

// Attachment materializes the attachment at index: its payload is copied
// into host memory and the native attachment object is released before
// returning.
func (r *Reader) Attachment(index int) (*Attachment, error) {
	raw, cerr := r.handle.raw()
	if cerr != nil {
		return nil, cerr
	}
	h, st := r.lib.ReaderReadAttachment(raw, int32(index))
	if !st.OK() {
		return nil, r.callError("read attachment", st)
	}
	if h == capi.InvalidHandle {
		return nil, layerError(KindInvalidArgument, "read attachment", "no attachment at index "+strconv.Itoa(index))
	}
	att, cerr := acquired(r.lib, "attachment", h, st, r.lib.ReleaseAttachment)
	if cerr != nil {
		return nil, cerr
	}
	defer att.close()

	attRaw, cerr := att.raw()
	if cerr != nil {
		return nil, cerr
	}
	info, st := r.lib.AttachmentGetInfo(attRaw)
	if !st.OK() {
		return nil, r.callError("attachment info", st)
	}
	size, st := r.lib.AttachmentGetRawData(attRaw, nil)
	if !st.OK() {
		return nil, r.callError("attachment raw data", st)
	}
	data := make([]byte, size)
	if size > 0 {
		n, st := r.lib.AttachmentGetRawData(attRaw, data)
		if !st.OK() {
			return nil, r.callError("attachment raw data", st)
		}
		if n < size {
			data = data[:n]
		}
	}
	return &Attachment{info: attachmentInfoFromInterop(info), data: data}, nil
}

// callError turns a failed native call into an *Error, preferring the
// adapter-captured error when the failure originated in a stream callback.
func (r *Reader) callError(op string, st capi.Status) *Error {
	if pending := r.stream.takePending(); pending != nil {
		return wrapError(pending.Kind, op, st, pending)
	}
	return statusError(r.lib, op, st)
}
