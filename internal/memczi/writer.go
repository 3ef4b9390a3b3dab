package memczi

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/robert-malhotra/go-czi/internal/binary"
	"github.com/robert-malhotra/go-czi/internal/capi"
)

type writerOptions struct {
	AllowDuplicateSubBlocks bool `json:"allow_duplicate_subblocks"`
}

type writerParameters struct {
	FileGUID                string `json:"file_guid"`
	ReservedAttachmentDirs  int    `json:"reserved_size_attachments_directory"`
	ReservedMetadataSegment int    `json:"reserved_size_metadata_segment"`
	MinimumMIndex           *int32 `json:"minimum_m_index"`
	MaximumMIndex           *int32 `json:"maximum_m_index"`
}

// writer is the object behind a writer handle. Payload segments are written
// through the output stream as sub-blocks arrive; the directory and the
// final header are written when the document closes.
type writer struct {
	lib *Library

	out       *outputStream
	bw        *binary.Writer
	streamSet bool
	finalized bool

	guid            [16]byte
	allowDuplicates bool
	minMIndex       *int32
	maxMIndex       *int32

	dir      directory
	metaXML  []byte
	seen     map[string]struct{}
	attached [][]byte
}

func (l *Library) CreateWriter(options string) (capi.Handle, capi.Status) {
	var opts writerOptions
	if options != "" {
		if err := json.UnmarshalFromString(options, &opts); err != nil {
			return capi.InvalidHandle, capi.StatusInvalidArgument
		}
	}
	w := &writer{
		lib:             l,
		allowDuplicates: opts.AllowDuplicateSubBlocks,
		seen:            make(map[string]struct{}),
	}
	return l.add(kindWriter, w), capi.StatusOK
}

func (l *Library) WriterInit(writerH, streamH capi.Handle, parameters string) capi.Status {
	v, st := l.lookup(writerH, kindWriter)
	if !st.OK() {
		return st
	}
	w := v.(*writer)
	if w.streamSet || w.finalized {
		return capi.StatusInvalidArgument
	}
	sv, st := l.lookup(streamH, kindOutputStream)
	if !st.OK() {
		return st
	}

	var params writerParameters
	if parameters != "" {
		if err := json.UnmarshalFromString(parameters, &params); err != nil {
			return capi.StatusInvalidArgument
		}
	}
	if params.FileGUID != "" {
		g, err := uuid.Parse(params.FileGUID)
		if err != nil {
			return capi.StatusInvalidArgument
		}
		w.guid = g
	}
	if params.MinimumMIndex != nil && params.MaximumMIndex != nil {
		if *params.MinimumMIndex > *params.MaximumMIndex {
			return capi.StatusInvalidArgument
		}
		w.minMIndex = params.MinimumMIndex
		w.maxMIndex = params.MaximumMIndex
	}

	w.out = sv.(*outputStream)
	w.bw = binary.NewWriter(w.out.w)
	w.streamSet = true

	// Provisional header; the directory offset is patched in on close.
	hdr := header{guid: w.guid, major: formatMajor, minor: formatMinor}
	if err := writeHeader(w.bw, &hdr); err != nil {
		w.streamSet = false
		w.out = nil
		w.bw = nil
		return asStatus(err)
	}
	return capi.StatusOK
}

func coordinateKey(c capi.Coordinate, mValid bool, m int32) string {
	key := fmt.Sprintf("d%x:", c.Dims)
	for i, v := range c.Values {
		if c.Dims&(1<<uint(i)) != 0 {
			key += fmt.Sprintf("%d=%d,", i+1, v)
		}
	}
	if mValid {
		key += fmt.Sprintf("m=%d", m)
	}
	return key
}

func (l *Library) WriterAddSubBlock(writerH capi.Handle, info *capi.AddSubBlockInfo) capi.Status {
	v, st := l.lookup(writerH, kindWriter)
	if !st.OK() {
		return st
	}
	w := v.(*writer)
	if w.finalized {
		return capi.StatusInvalidHandle
	}
	if !w.streamSet {
		return capi.StatusInvalidArgument
	}
	if info == nil || info.PhysicalWidth <= 0 || info.PhysicalHeight <= 0 || len(info.Data) == 0 {
		return capi.StatusInvalidArgument
	}
	if info.MIndexValid && w.minMIndex != nil {
		if info.MIndex < *w.minMIndex || info.MIndex > *w.maxMIndex {
			return capi.StatusInvalidArgument
		}
	}
	key := coordinateKey(info.Coordinate, info.MIndexValid, info.MIndex)
	if !w.allowDuplicates {
		if _, dup := w.seen[key]; dup {
			return capi.StatusInvalidArgument
		}
	}

	entry := subBlockEntry{
		coord:       info.Coordinate,
		mIndexValid: info.MIndexValid,
		mIndex:      info.MIndex,
		logical:     capi.IntRect{X: info.X, Y: info.Y, W: info.LogicalWidth, H: info.LogicalHeight},
		physical:    capi.IntSize{W: info.PhysicalWidth, H: info.PhysicalHeight},
		pixelType:   info.PixelType,
		compression: info.Compression,
		dataOffset:  uint64(w.bw.Pos()),
		dataSize:    uint32(len(info.Data)),
	}
	if err := w.bw.WriteBytes(info.Data); err != nil {
		return asStatus(err)
	}
	if len(info.Metadata) > 0 {
		entry.metaOffset = uint64(w.bw.Pos())
		entry.metaSize = uint32(len(info.Metadata))
		if err := w.bw.WriteBytes(info.Metadata); err != nil {
			return asStatus(err)
		}
	}
	w.dir.subBlocks = append(w.dir.subBlocks, entry)
	w.seen[key] = struct{}{}
	return capi.StatusOK
}

func (l *Library) WriterAddAttachment(writerH capi.Handle, info *capi.AddAttachmentInfo) capi.Status {
	v, st := l.lookup(writerH, kindWriter)
	if !st.OK() {
		return st
	}
	w := v.(*writer)
	if w.finalized {
		return capi.StatusInvalidHandle
	}
	if !w.streamSet || info == nil || info.Name == "" {
		return capi.StatusInvalidArgument
	}
	w.dir.attachments = append(w.dir.attachments, attachmentEntry{
		guid:            info.GUID,
		name:            info.Name,
		contentFileType: info.ContentFileType,
	})
	data := make([]byte, len(info.Data))
	copy(data, info.Data)
	w.attached = append(w.attached, data)
	return capi.StatusOK
}

func (l *Library) WriterWriteMetadata(writerH capi.Handle, info *capi.WriteMetadataInfo) capi.Status {
	v, st := l.lookup(writerH, kindWriter)
	if !st.OK() {
		return st
	}
	w := v.(*writer)
	if w.finalized {
		return capi.StatusInvalidHandle
	}
	if !w.streamSet || info == nil {
		return capi.StatusInvalidArgument
	}
	w.metaXML = make([]byte, len(info.XML))
	copy(w.metaXML, info.XML)
	return capi.StatusOK
}

// WriterClose finalizes the document: attachment payloads and the metadata
// segment are appended, then the directory, then the header at offset 0 is
// rewritten with the directory location. A failed finalize still leaves the
// writer finalized; retrying is not possible.
func (l *Library) WriterClose(writerH capi.Handle) capi.Status {
	v, st := l.lookup(writerH, kindWriter)
	if !st.OK() {
		return st
	}
	w := v.(*writer)
	if w.finalized {
		return capi.StatusInvalidHandle
	}
	if !w.streamSet {
		return capi.StatusInvalidArgument
	}
	w.finalized = true

	for i, data := range w.attached {
		w.dir.attachments[i].offset = uint64(w.bw.Pos())
		w.dir.attachments[i].size = uint32(len(data))
		if err := w.bw.WriteBytes(data); err != nil {
			return asStatus(err)
		}
	}
	if len(w.metaXML) > 0 {
		w.dir.metaPresent = true
		w.dir.metaOffset = uint64(w.bw.Pos())
		w.dir.metaSize = uint32(len(w.metaXML))
		if err := w.bw.WriteBytes(w.metaXML); err != nil {
			return asStatus(err)
		}
	}

	raw, err := encodeDirectory(&w.dir)
	if err != nil {
		return capi.StatusUnspecified
	}
	hdr := header{
		guid:      w.guid,
		major:     formatMajor,
		minor:     formatMinor,
		dirOffset: uint64(w.bw.Pos()),
		dirSize:   uint64(len(raw)),
		dirCRC:    directoryChecksum(raw),
	}
	if err := w.bw.WriteBytes(raw); err != nil {
		return asStatus(err)
	}
	if err := writeHeader(w.bw.At(0), &hdr); err != nil {
		return asStatus(err)
	}
	return capi.StatusOK
}

func (l *Library) ReleaseWriter(h capi.Handle) capi.Status {
	_, st := l.remove(h, kindWriter)
	return st
}
