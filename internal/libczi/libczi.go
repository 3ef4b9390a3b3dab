//go:build libczi

package libczi

/*
#cgo LDFLAGS: -lCZIAPI

#include <stdbool.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef void* CziObjectHandle;

typedef struct {
	uint32_t dimensions_valid;
	int32_t  value[9];
} CoordinateInterop;

typedef struct {
	int32_t x, y, w, h;
} IntRectInterop;

typedef struct {
	int32_t w, h;
} IntSizeInterop;

typedef struct {
	uint32_t dimensions_valid;
	int32_t  start[9];
	int32_t  size[9];
} DimBoundsInterop;

typedef struct {
	int32_t          sub_block_count;
	int32_t          min_m_index;
	int32_t          max_m_index;
	IntRectInterop   bounding_box;
	IntRectInterop   bounding_box_layer0;
	DimBoundsInterop dim_bounds;
} SubBlockStatisticsInterop;

typedef struct {
	int32_t           compression_mode_raw;
	int32_t           pixel_type;
	CoordinateInterop coordinate;
	IntRectInterop    logical_rect;
	IntSizeInterop    physical_size;
	int32_t           m_index;
} SubBlockInfoInterop;

typedef struct {
	uint8_t guid[16];
	int32_t majorVersion;
	int32_t minorVersion;
} FileHeaderInfoInterop;

typedef struct {
	uint8_t guid[16];
	uint8_t content_file_type[9];
	char    name[255];
	bool    name_overflow;
	void*   name_in_case_of_overflow;
} AttachmentInfoInterop;

typedef struct {
	CoordinateInterop coordinate;
	uint8_t           m_index_valid;
	int32_t           m_index;
	int32_t           x;
	int32_t           y;
	int32_t           logical_width;
	int32_t           logical_height;
	int32_t           physical_width;
	int32_t           physical_height;
	int32_t           pixel_type;
	int32_t           compression_mode_raw;
	uint32_t          size_data;
	const void*       data;
	uint32_t          stride;
	uint32_t          size_metadata;
	const void*       metadata;
	uint32_t          size_attachment;
	const void*       attachment;
} AddSubBlockInfoInterop;

typedef struct {
	uint8_t     guid[16];
	const char* content_file_type;
	const char* name;
	uint32_t    size_attachment_data;
	const void* attachment_data;
} AddAttachmentInfoInterop;

typedef struct {
	const char* metadata;
	uint32_t    size_metadata;
} WriteMetadataInfoInterop;

typedef struct {
	uint32_t width;
	uint32_t height;
	int32_t  pixelType;
} BitmapInfoInterop;

typedef struct {
	void*    ptrData;
	void*    ptrDataRoi;
	uint32_t stride;
	uint64_t size;
} BitmapLockInfoInterop;

typedef struct {
	int32_t error_code;
	void*   error_message;
} ExternalStreamErrorInfoInterop;

typedef struct {
	CziObjectHandle streamObject;
} ReaderOpenInfoInterop;

typedef struct {
	int32_t major;
	int32_t minor;
	int32_t patch;
	int32_t tweak;
} LibCZIVersionInfoInterop;

typedef struct {
	void* compilerIdentification;
	void* repositoryUrl;
	void* repositoryBranch;
	void* repositoryTag;
} LibCZIBuildInformationInterop;

typedef bool (*ExternalStreamReadFunction)(uint64_t opaque_handle1, uint64_t opaque_handle2,
	uint64_t offset, void* pv, uint64_t size, uint64_t* ptr_bytes_read,
	ExternalStreamErrorInfoInterop* error_info);
typedef bool (*ExternalStreamWriteFunction)(uint64_t opaque_handle1, uint64_t opaque_handle2,
	uint64_t offset, const void* pv, uint64_t size, uint64_t* ptr_bytes_written,
	ExternalStreamErrorInfoInterop* error_info);
typedef void (*ExternalStreamCloseFunction)(uint64_t opaque_handle1, uint64_t opaque_handle2);

typedef struct {
	uint64_t                    opaque_handle1;
	uint64_t                    opaque_handle2;
	ExternalStreamReadFunction  read_function;
	ExternalStreamCloseFunction close_function;
} ExternalInputStreamStructInterop;

typedef struct {
	uint64_t                    opaque_handle1;
	uint64_t                    opaque_handle2;
	ExternalStreamWriteFunction write_function;
	ExternalStreamCloseFunction close_function;
} ExternalOutputStreamStructInterop;

extern int32_t libCZI_Free(void* data);
extern int32_t libCZI_GetLibCZIVersionInfo(LibCZIVersionInfoInterop* version_info);
extern int32_t libCZI_GetLibCZIBuildInformation(LibCZIBuildInformationInterop* build_info);

extern int32_t libCZI_CreateInputStreamFromExternal(const ExternalInputStreamStructInterop* external_input_stream_struct, CziObjectHandle* stream_object);
extern int32_t libCZI_CreateInputStreamFromFileUTF8(const char* filename, CziObjectHandle* stream_object);
extern int32_t libCZI_ReleaseInputStream(CziObjectHandle stream_object);
extern int32_t libCZI_CreateOutputStreamFromExternal(const ExternalOutputStreamStructInterop* external_output_stream_struct, CziObjectHandle* stream_object);
extern int32_t libCZI_CreateOutputStreamForFileUTF8(const char* filename, bool overwrite, CziObjectHandle* stream_object);
extern int32_t libCZI_ReleaseOutputStream(CziObjectHandle stream_object);

extern int32_t libCZI_CreateReader(CziObjectHandle* reader_object);
extern int32_t libCZI_ReaderOpen(CziObjectHandle reader_object, const ReaderOpenInfoInterop* open_info);
extern int32_t libCZI_ReaderGetFileHeaderInfo(CziObjectHandle reader_object, FileHeaderInfoInterop* file_header_info);
extern int32_t libCZI_ReaderGetStatisticsSimple(CziObjectHandle reader_object, SubBlockStatisticsInterop* statistics);
extern int32_t libCZI_ReaderGetPyramidStatistics(CziObjectHandle reader_object, char** pyramid_statistics_as_json);
extern int32_t libCZI_TryGetSubBlockInfoForIndex(CziObjectHandle reader_object, int32_t index, SubBlockInfoInterop* sub_block_info);
extern int32_t libCZI_ReaderReadSubBlock(CziObjectHandle reader_object, int32_t index, CziObjectHandle* sub_block_object);
extern int32_t libCZI_ReaderGetMetadataSegment(CziObjectHandle reader_object, CziObjectHandle* metadata_segment_object);
extern int32_t libCZI_ReaderGetAttachmentCount(CziObjectHandle reader_object, int32_t* count);
extern int32_t libCZI_ReaderGetAttachmentInfoFromDirectory(CziObjectHandle reader_object, int32_t index, AttachmentInfoInterop* attachment_info);
extern int32_t libCZI_ReaderReadAttachment(CziObjectHandle reader_object, int32_t index, CziObjectHandle* attachment_object);
extern int32_t libCZI_ReleaseReader(CziObjectHandle reader_object);

extern int32_t libCZI_SubBlockGetInfo(CziObjectHandle sub_block_object, SubBlockInfoInterop* sub_block_info);
extern int32_t libCZI_SubBlockGetRawData(CziObjectHandle sub_block_object, int32_t type, uint64_t* size, void* data);
extern int32_t libCZI_SubBlockCreateBitmap(CziObjectHandle sub_block_object, CziObjectHandle* bitmap_object);
extern int32_t libCZI_ReleaseSubBlock(CziObjectHandle sub_block_object);

extern int32_t libCZI_BitmapGetInfo(CziObjectHandle bitmap_object, BitmapInfoInterop* bitmap_info);
extern int32_t libCZI_BitmapLock(CziObjectHandle bitmap_object, BitmapLockInfoInterop* lock_info);
extern int32_t libCZI_BitmapUnlock(CziObjectHandle bitmap_object);
extern int32_t libCZI_ReleaseBitmap(CziObjectHandle bitmap_object);

extern int32_t libCZI_MetadataSegmentGetMetadataAsXml(CziObjectHandle metadata_segment_object, void** data, uint64_t* size);
extern int32_t libCZI_ReleaseMetadataSegment(CziObjectHandle metadata_segment_object);

extern int32_t libCZI_AttachmentGetInfo(CziObjectHandle attachment_object, AttachmentInfoInterop* attachment_info);
extern int32_t libCZI_AttachmentGetRawData(CziObjectHandle attachment_object, uint64_t* size, void* data);
extern int32_t libCZI_ReleaseAttachment(CziObjectHandle attachment_object);

extern int32_t libCZI_CreateWriter(CziObjectHandle* writer_object, const char* options);
extern int32_t libCZI_WriterCreate(CziObjectHandle writer_object, CziObjectHandle output_stream_object, const char* parameters);
extern int32_t libCZI_WriterAddSubBlock(CziObjectHandle writer_object, const AddSubBlockInfoInterop* add_sub_block_info);
extern int32_t libCZI_WriterAddAttachment(CziObjectHandle writer_object, const AddAttachmentInfoInterop* add_attachment_info);
extern int32_t libCZI_WriterWriteMetadata(CziObjectHandle writer_object, const WriteMetadataInfoInterop* write_metadata_info);
extern int32_t libCZI_WriterClose(CziObjectHandle writer_object);
extern int32_t libCZI_ReleaseWriter(CziObjectHandle writer_object);

// Exported Go trampolines.
extern bool goCziStreamRead(uint64_t h1, uint64_t h2, uint64_t offset, void* pv, uint64_t size,
	uint64_t* bytesRead, ExternalStreamErrorInfoInterop* errInfo);
extern bool goCziStreamWrite(uint64_t h1, uint64_t h2, uint64_t offset, const void* pv, uint64_t size,
	uint64_t* bytesWritten, ExternalStreamErrorInfoInterop* errInfo);
extern void goCziStreamClose(uint64_t h1, uint64_t h2);
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

func init() {
	capi.RegisterDefault(&library{})
}

// library implements capi.Library on top of the native entry points.
type library struct{}

func status(code C.int32_t) capi.Status {
	return capi.Status(code)
}

func handleOut(h C.CziObjectHandle) capi.Handle {
	return capi.Handle(uintptr(unsafe.Pointer(h)))
}

func handleIn(h capi.Handle) C.CziObjectHandle {
	return C.CziObjectHandle(unsafe.Pointer(uintptr(h)))
}

// Stream callbacks. The cgo.Handle of the Go callback set travels in
// opaque_handle1; opaque_handle2 is unused.

//export goCziStreamRead
func goCziStreamRead(h1, h2 C.uint64_t, offset C.uint64_t, pv unsafe.Pointer, size C.uint64_t,
	bytesRead *C.uint64_t, errInfo *C.ExternalStreamErrorInfoInterop) C.bool {
	ext := cgo.Handle(h1).Value().(*capi.ExternalInputStream)
	buf := unsafe.Slice((*byte)(pv), int(size))
	n, serr := ext.Read(int64(offset), buf)
	*bytesRead = C.uint64_t(n)
	if serr != nil {
		if errInfo != nil {
			errInfo.error_code = C.int32_t(serr.Code)
			errInfo.error_message = nil
		}
		return C.bool(false)
	}
	return C.bool(true)
}

//export goCziStreamWrite
func goCziStreamWrite(h1, h2 C.uint64_t, offset C.uint64_t, pv unsafe.Pointer, size C.uint64_t,
	bytesWritten *C.uint64_t, errInfo *C.ExternalStreamErrorInfoInterop) C.bool {
	ext := cgo.Handle(h1).Value().(*capi.ExternalOutputStream)
	buf := unsafe.Slice((*byte)(pv), int(size))
	n, serr := ext.Write(int64(offset), buf)
	*bytesWritten = C.uint64_t(n)
	if serr != nil {
		if errInfo != nil {
			errInfo.error_code = C.int32_t(serr.Code)
			errInfo.error_message = nil
		}
		return C.bool(false)
	}
	return C.bool(true)
}

//export goCziStreamClose
func goCziStreamClose(h1, h2 C.uint64_t) {
	h := cgo.Handle(h1)
	switch ext := h.Value().(type) {
	case *capi.ExternalInputStream:
		if ext.Close != nil {
			ext.Close()
		}
	case *capi.ExternalOutputStream:
		if ext.Close != nil {
			ext.Close()
		}
	}
	h.Delete()
}

func (l *library) CreateInputStreamFromExternal(ext *capi.ExternalInputStream) (capi.Handle, capi.Status) {
	if ext == nil || ext.Read == nil {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	gh := cgo.NewHandle(ext)
	var s C.ExternalInputStreamStructInterop
	s.opaque_handle1 = C.uint64_t(gh)
	s.opaque_handle2 = 0
	s.read_function = C.ExternalStreamReadFunction(C.goCziStreamRead)
	s.close_function = C.ExternalStreamCloseFunction(C.goCziStreamClose)

	var out C.CziObjectHandle
	st := status(C.libCZI_CreateInputStreamFromExternal(&s, &out))
	if !st.OK() {
		gh.Delete()
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) CreateInputStreamFromFile(path string) (capi.Handle, capi.Status) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var out C.CziObjectHandle
	st := status(C.libCZI_CreateInputStreamFromFileUTF8(cpath, &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReleaseInputStream(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseInputStream(handleIn(h)))
}

func (l *library) CreateOutputStreamFromExternal(ext *capi.ExternalOutputStream) (capi.Handle, capi.Status) {
	if ext == nil || ext.Write == nil {
		return capi.InvalidHandle, capi.StatusInvalidArgument
	}
	gh := cgo.NewHandle(ext)
	var s C.ExternalOutputStreamStructInterop
	s.opaque_handle1 = C.uint64_t(gh)
	s.opaque_handle2 = 0
	s.write_function = C.ExternalStreamWriteFunction(C.goCziStreamWrite)
	s.close_function = C.ExternalStreamCloseFunction(C.goCziStreamClose)

	var out C.CziObjectHandle
	st := status(C.libCZI_CreateOutputStreamFromExternal(&s, &out))
	if !st.OK() {
		gh.Delete()
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) CreateOutputStreamForFile(path string, overwrite bool) (capi.Handle, capi.Status) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	var out C.CziObjectHandle
	st := status(C.libCZI_CreateOutputStreamForFileUTF8(cpath, C.bool(overwrite), &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReleaseOutputStream(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseOutputStream(handleIn(h)))
}

func (l *library) CreateReader() (capi.Handle, capi.Status) {
	var out C.CziObjectHandle
	st := status(C.libCZI_CreateReader(&out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReaderOpen(reader, stream capi.Handle, options string) capi.Status {
	info := C.ReaderOpenInfoInterop{streamObject: handleIn(stream)}
	_ = options // the native open info carries no option document
	return status(C.libCZI_ReaderOpen(handleIn(reader), &info))
}

func coordinateOut(c C.CoordinateInterop) capi.Coordinate {
	out := capi.Coordinate{Dims: uint32(c.dimensions_valid)}
	for i := 0; i < capi.MaxDimensions; i++ {
		out.Values[i] = int32(c.value[i])
	}
	return out
}

func coordinateIn(c capi.Coordinate) C.CoordinateInterop {
	var out C.CoordinateInterop
	out.dimensions_valid = C.uint32_t(c.Dims)
	for i := 0; i < capi.MaxDimensions; i++ {
		out.value[i] = C.int32_t(c.Values[i])
	}
	return out
}

func rectOut(r C.IntRectInterop) capi.IntRect {
	return capi.IntRect{X: int32(r.x), Y: int32(r.y), W: int32(r.w), H: int32(r.h)}
}

func subBlockInfoOut(in C.SubBlockInfoInterop) capi.SubBlockInfo {
	info := capi.SubBlockInfo{
		Compression:  int32(in.compression_mode_raw),
		PixelType:    int32(in.pixel_type),
		Coordinate:   coordinateOut(in.coordinate),
		LogicalRect:  rectOut(in.logical_rect),
		PhysicalSize: capi.IntSize{W: int32(in.physical_size.w), H: int32(in.physical_size.h)},
		MIndex:       int32(in.m_index),
	}
	// The native side reports "no M-index" as the maximum int value.
	info.MIndexValid = info.MIndex != int32(0x7FFFFFFF)
	return info
}

func (l *library) ReaderGetFileHeaderInfo(reader capi.Handle) (capi.FileHeaderInfo, capi.Status) {
	var raw C.FileHeaderInfoInterop
	st := status(C.libCZI_ReaderGetFileHeaderInfo(handleIn(reader), &raw))
	if !st.OK() {
		return capi.FileHeaderInfo{}, st
	}
	out := capi.FileHeaderInfo{
		MajorVersion: int32(raw.majorVersion),
		MinorVersion: int32(raw.minorVersion),
	}
	for i := 0; i < 16; i++ {
		out.GUID[i] = byte(raw.guid[i])
	}
	return out, st
}

func (l *library) ReaderGetStatistics(reader capi.Handle) (capi.SubBlockStatistics, capi.Status) {
	var raw C.SubBlockStatisticsInterop
	st := status(C.libCZI_ReaderGetStatisticsSimple(handleIn(reader), &raw))
	if !st.OK() {
		return capi.SubBlockStatistics{}, st
	}
	out := capi.SubBlockStatistics{
		SubBlockCount:     int32(raw.sub_block_count),
		MinMIndex:         int32(raw.min_m_index),
		MaxMIndex:         int32(raw.max_m_index),
		BoundingBox:       rectOut(raw.bounding_box),
		BoundingBoxLayer0: rectOut(raw.bounding_box_layer0),
	}
	out.DimBounds.Dims = uint32(raw.dim_bounds.dimensions_valid)
	for i := 0; i < capi.MaxDimensions; i++ {
		out.DimBounds.Start[i] = int32(raw.dim_bounds.start[i])
		out.DimBounds.Size[i] = int32(raw.dim_bounds.size[i])
	}
	return out, st
}

func (l *library) ReaderGetPyramidStatistics(reader capi.Handle) (string, capi.Status) {
	var doc *C.char
	st := status(C.libCZI_ReaderGetPyramidStatistics(handleIn(reader), &doc))
	if !st.OK() {
		return "", st
	}
	out := C.GoString(doc)
	C.libCZI_Free(unsafe.Pointer(doc))
	return out, st
}

func (l *library) ReaderGetSubBlockInfo(reader capi.Handle, index int32) (capi.SubBlockInfo, capi.Status) {
	var raw C.SubBlockInfoInterop
	st := status(C.libCZI_TryGetSubBlockInfoForIndex(handleIn(reader), C.int32_t(index), &raw))
	if !st.OK() {
		return capi.SubBlockInfo{}, st
	}
	return subBlockInfoOut(raw), st
}

func (l *library) ReaderReadSubBlock(reader capi.Handle, index int32) (capi.Handle, capi.Status) {
	var out C.CziObjectHandle
	st := status(C.libCZI_ReaderReadSubBlock(handleIn(reader), C.int32_t(index), &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReaderGetMetadataSegment(reader capi.Handle) (capi.Handle, capi.Status) {
	var out C.CziObjectHandle
	st := status(C.libCZI_ReaderGetMetadataSegment(handleIn(reader), &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReaderGetAttachmentCount(reader capi.Handle) (int32, capi.Status) {
	var count C.int32_t
	st := status(C.libCZI_ReaderGetAttachmentCount(handleIn(reader), &count))
	return int32(count), st
}

func attachmentInfoOut(raw *C.AttachmentInfoInterop) capi.AttachmentInfo {
	out := capi.AttachmentInfo{}
	for i := 0; i < 16; i++ {
		out.GUID[i] = byte(raw.guid[i])
	}
	ft := make([]byte, 0, 8)
	for i := 0; i < 8 && raw.content_file_type[i] != 0; i++ {
		ft = append(ft, byte(raw.content_file_type[i]))
	}
	out.ContentFileType = string(ft)
	if bool(raw.name_overflow) && raw.name_in_case_of_overflow != nil {
		out.Name = C.GoString((*C.char)(raw.name_in_case_of_overflow))
		C.libCZI_Free(raw.name_in_case_of_overflow)
	} else {
		out.Name = C.GoString(&raw.name[0])
	}
	return out
}

func (l *library) ReaderGetAttachmentInfo(reader capi.Handle, index int32) (capi.AttachmentInfo, capi.Status) {
	var raw C.AttachmentInfoInterop
	st := status(C.libCZI_ReaderGetAttachmentInfoFromDirectory(handleIn(reader), C.int32_t(index), &raw))
	if !st.OK() {
		return capi.AttachmentInfo{}, st
	}
	return attachmentInfoOut(&raw), st
}

func (l *library) ReaderReadAttachment(reader capi.Handle, index int32) (capi.Handle, capi.Status) {
	var out C.CziObjectHandle
	st := status(C.libCZI_ReaderReadAttachment(handleIn(reader), C.int32_t(index), &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReleaseReader(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseReader(handleIn(h)))
}

func (l *library) SubBlockGetInfo(h capi.Handle) (capi.SubBlockInfo, capi.Status) {
	var raw C.SubBlockInfoInterop
	st := status(C.libCZI_SubBlockGetInfo(handleIn(h), &raw))
	if !st.OK() {
		return capi.SubBlockInfo{}, st
	}
	return subBlockInfoOut(raw), st
}

func (l *library) SubBlockGetRawData(h capi.Handle, kind capi.RawDataType, p []byte) (uint64, capi.Status) {
	size := C.uint64_t(len(p))
	var data unsafe.Pointer
	if p != nil {
		data = unsafe.Pointer(&p[0])
	}
	st := status(C.libCZI_SubBlockGetRawData(handleIn(h), C.int32_t(kind), &size, data))
	return uint64(size), st
}

func (l *library) SubBlockCreateBitmap(h capi.Handle) (capi.Handle, capi.Status) {
	var out C.CziObjectHandle
	st := status(C.libCZI_SubBlockCreateBitmap(handleIn(h), &out))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) ReleaseSubBlock(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseSubBlock(handleIn(h)))
}

func (l *library) BitmapGetInfo(h capi.Handle) (capi.BitmapInfo, capi.Status) {
	var raw C.BitmapInfoInterop
	st := status(C.libCZI_BitmapGetInfo(handleIn(h), &raw))
	if !st.OK() {
		return capi.BitmapInfo{}, st
	}
	return capi.BitmapInfo{
		Width:     int32(raw.width),
		Height:    int32(raw.height),
		PixelType: int32(raw.pixelType),
	}, st
}

func (l *library) BitmapLock(h capi.Handle) (capi.BitmapLockInfo, capi.Status) {
	var raw C.BitmapLockInfoInterop
	st := status(C.libCZI_BitmapLock(handleIn(h), &raw))
	if !st.OK() {
		return capi.BitmapLockInfo{}, st
	}
	return capi.BitmapLockInfo{
		Data:   unsafe.Slice((*byte)(raw.ptrDataRoi), int(raw.size)),
		Stride: int32(raw.stride),
	}, st
}

func (l *library) BitmapUnlock(h capi.Handle) capi.Status {
	return status(C.libCZI_BitmapUnlock(handleIn(h)))
}

func (l *library) ReleaseBitmap(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseBitmap(handleIn(h)))
}

func (l *library) MetadataSegmentGetXML(h capi.Handle) ([]byte, capi.Status) {
	var data unsafe.Pointer
	var size C.uint64_t
	st := status(C.libCZI_MetadataSegmentGetMetadataAsXml(handleIn(h), &data, &size))
	if !st.OK() {
		return nil, st
	}
	out := C.GoBytes(data, C.int(size))
	C.libCZI_Free(data)
	return out, st
}

func (l *library) ReleaseMetadataSegment(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseMetadataSegment(handleIn(h)))
}

func (l *library) AttachmentGetInfo(h capi.Handle) (capi.AttachmentInfo, capi.Status) {
	var raw C.AttachmentInfoInterop
	st := status(C.libCZI_AttachmentGetInfo(handleIn(h), &raw))
	if !st.OK() {
		return capi.AttachmentInfo{}, st
	}
	return attachmentInfoOut(&raw), st
}

func (l *library) AttachmentGetRawData(h capi.Handle, p []byte) (uint64, capi.Status) {
	size := C.uint64_t(len(p))
	var data unsafe.Pointer
	if p != nil {
		data = unsafe.Pointer(&p[0])
	}
	st := status(C.libCZI_AttachmentGetRawData(handleIn(h), &size, data))
	return uint64(size), st
}

func (l *library) ReleaseAttachment(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseAttachment(handleIn(h)))
}

func (l *library) CreateWriter(options string) (capi.Handle, capi.Status) {
	copts := C.CString(options)
	defer C.free(unsafe.Pointer(copts))
	var out C.CziObjectHandle
	st := status(C.libCZI_CreateWriter(&out, copts))
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	return handleOut(out), st
}

func (l *library) WriterInit(writer, stream capi.Handle, parameters string) capi.Status {
	cparams := C.CString(parameters)
	defer C.free(unsafe.Pointer(cparams))
	return status(C.libCZI_WriterCreate(handleIn(writer), handleIn(stream), cparams))
}

func (l *library) WriterAddSubBlock(writer capi.Handle, info *capi.AddSubBlockInfo) capi.Status {
	if info == nil {
		return capi.StatusInvalidArgument
	}
	var raw C.AddSubBlockInfoInterop
	raw.coordinate = coordinateIn(info.Coordinate)
	if info.MIndexValid {
		raw.m_index_valid = 1
	}
	raw.m_index = C.int32_t(info.MIndex)
	raw.x = C.int32_t(info.X)
	raw.y = C.int32_t(info.Y)
	raw.logical_width = C.int32_t(info.LogicalWidth)
	raw.logical_height = C.int32_t(info.LogicalHeight)
	raw.physical_width = C.int32_t(info.PhysicalWidth)
	raw.physical_height = C.int32_t(info.PhysicalHeight)
	raw.pixel_type = C.int32_t(info.PixelType)
	raw.compression_mode_raw = C.int32_t(info.Compression)
	raw.size_data = C.uint32_t(len(info.Data))
	if len(info.Data) > 0 {
		raw.data = unsafe.Pointer(&info.Data[0])
	}
	raw.size_metadata = C.uint32_t(len(info.Metadata))
	if len(info.Metadata) > 0 {
		raw.metadata = unsafe.Pointer(&info.Metadata[0])
	}
	return status(C.libCZI_WriterAddSubBlock(handleIn(writer), &raw))
}

func (l *library) WriterAddAttachment(writer capi.Handle, info *capi.AddAttachmentInfo) capi.Status {
	if info == nil {
		return capi.StatusInvalidArgument
	}
	cft := C.CString(info.ContentFileType)
	defer C.free(unsafe.Pointer(cft))
	cname := C.CString(info.Name)
	defer C.free(unsafe.Pointer(cname))

	var raw C.AddAttachmentInfoInterop
	for i := 0; i < 16; i++ {
		raw.guid[i] = C.uint8_t(info.GUID[i])
	}
	raw.content_file_type = cft
	raw.name = cname
	raw.size_attachment_data = C.uint32_t(len(info.Data))
	if len(info.Data) > 0 {
		raw.attachment_data = unsafe.Pointer(&info.Data[0])
	}
	return status(C.libCZI_WriterAddAttachment(handleIn(writer), &raw))
}

func (l *library) WriterWriteMetadata(writer capi.Handle, info *capi.WriteMetadataInfo) capi.Status {
	if info == nil {
		return capi.StatusInvalidArgument
	}
	var raw C.WriteMetadataInfoInterop
	raw.size_metadata = C.uint32_t(len(info.XML))
	if len(info.XML) > 0 {
		raw.metadata = (*C.char)(unsafe.Pointer(&info.XML[0]))
	}
	return status(C.libCZI_WriterWriteMetadata(handleIn(writer), &raw))
}

func (l *library) WriterClose(writer capi.Handle) capi.Status {
	return status(C.libCZI_WriterClose(handleIn(writer)))
}

func (l *library) ReleaseWriter(h capi.Handle) capi.Status {
	return status(C.libCZI_ReleaseWriter(handleIn(h)))
}

// GetErrorMessage maps codes locally; the native library reports codes only.
func (l *library) GetErrorMessage(code capi.Status) (string, capi.Status) {
	switch code {
	case capi.StatusOK:
		return "no error", capi.StatusOK
	case capi.StatusInvalidArgument:
		return "invalid argument", capi.StatusOK
	case capi.StatusInvalidHandle:
		return "invalid handle", capi.StatusOK
	case capi.StatusOutOfMemory:
		return "out of memory", capi.StatusOK
	case capi.StatusIndexOutOfRange:
		return "index out of range", capi.StatusOK
	case capi.StatusLockUnlockViolated:
		return "lock/unlock semantics violated", capi.StatusOK
	case capi.StatusUnspecified:
		return "unspecified error", capi.StatusOK
	}
	return "unknown status", capi.StatusOK
}

func (l *library) GetVersionInfo() (capi.VersionInfo, capi.Status) {
	var raw C.LibCZIVersionInfoInterop
	st := status(C.libCZI_GetLibCZIVersionInfo(&raw))
	if !st.OK() {
		return capi.VersionInfo{}, st
	}
	return capi.VersionInfo{
		Major: int32(raw.major),
		Minor: int32(raw.minor),
		Patch: int32(raw.patch),
		Tweak: int32(raw.tweak),
	}, st
}

func takeNativeString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	s := C.GoString((*C.char)(p))
	C.libCZI_Free(p)
	return s
}

func (l *library) GetBuildInformation() (capi.BuildInformation, capi.Status) {
	var raw C.LibCZIBuildInformationInterop
	st := status(C.libCZI_GetLibCZIBuildInformation(&raw))
	if !st.OK() {
		return capi.BuildInformation{}, st
	}
	return capi.BuildInformation{
		CompilerIdentification: takeNativeString(raw.compilerIdentification),
		RepositoryURL:          takeNativeString(raw.repositoryUrl),
		RepositoryBranch:       takeNativeString(raw.repositoryBranch),
		RepositoryTag:          takeNativeString(raw.repositoryTag),
	}, st
}

var _ capi.Library = (*library)(nil)
