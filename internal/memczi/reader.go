package memczi

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/robert-malhotra/go-czi/internal/binary"
	"github.com/robert-malhotra/go-czi/internal/capi"
)

const dimScene = 5

// reader is the object behind a reader handle. Payloads are not cached:
// every sub-block, metadata and attachment access goes back through the
// stream, so the read bridge stays exercised for the reader's lifetime.
type reader struct {
	src    *binary.Reader
	hdr    header
	dir    *directory
	opened bool
}

func (l *Library) CreateReader() (capi.Handle, capi.Status) {
	return l.add(kindReader, &reader{}), capi.StatusOK
}

func (l *Library) ReaderOpen(readerH, streamH capi.Handle, options string) capi.Status {
	v, st := l.lookup(readerH, kindReader)
	if !st.OK() {
		return st
	}
	r := v.(*reader)
	if r.opened {
		return capi.StatusInvalidArgument
	}
	sv, st := l.lookup(streamH, kindInputStream)
	if !st.OK() {
		return st
	}
	if options != "" {
		var ignored map[string]any
		if err := json.UnmarshalFromString(options, &ignored); err != nil {
			return capi.StatusInvalidArgument
		}
	}
	stream := sv.(*inputStream)

	src := binary.NewReader(stream.r)
	hdr, st := readHeader(src.At(0))
	if !st.OK() {
		return st
	}
	if stream.sizeKnown && hdr.dirOffset+hdr.dirSize > uint64(stream.size) {
		return capi.StatusCorruptData
	}
	raw, err := src.At(int64(hdr.dirOffset)).ReadBytes(int(hdr.dirSize))
	if err != nil {
		return asStatus(err)
	}
	if directoryChecksum(raw) != hdr.dirCRC {
		return capi.StatusCorruptData
	}
	dir, st := decodeDirectory(raw)
	if !st.OK() {
		return st
	}

	r.src = src
	r.hdr = hdr
	r.dir = dir
	r.opened = true
	return capi.StatusOK
}

func (l *Library) openedReader(h capi.Handle) (*reader, capi.Status) {
	v, st := l.lookup(h, kindReader)
	if !st.OK() {
		return nil, st
	}
	r := v.(*reader)
	if !r.opened {
		return nil, capi.StatusInvalidArgument
	}
	return r, capi.StatusOK
}

func (l *Library) ReaderGetFileHeaderInfo(h capi.Handle) (capi.FileHeaderInfo, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.FileHeaderInfo{}, st
	}
	return capi.FileHeaderInfo{
		GUID:         r.hdr.guid,
		MajorVersion: r.hdr.major,
		MinorVersion: r.hdr.minor,
	}, capi.StatusOK
}

func (l *Library) ReaderGetStatistics(h capi.Handle) (capi.SubBlockStatistics, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.SubBlockStatistics{}, st
	}

	stats := capi.SubBlockStatistics{
		SubBlockCount: int32(len(r.dir.subBlocks)),
		MinMIndex:     math.MaxInt32,
		MaxMIndex:     math.MinInt32,
	}
	firstBox, firstLayer0 := true, true
	for i := range r.dir.subBlocks {
		e := &r.dir.subBlocks[i]
		if e.mIndexValid {
			if e.mIndex < stats.MinMIndex {
				stats.MinMIndex = e.mIndex
			}
			if e.mIndex > stats.MaxMIndex {
				stats.MaxMIndex = e.mIndex
			}
		}
		if firstBox {
			stats.BoundingBox = e.logical
			firstBox = false
		} else {
			stats.BoundingBox = unionRect(stats.BoundingBox, e.logical)
		}
		if e.logical.W == e.physical.W && e.logical.H == e.physical.H {
			if firstLayer0 {
				stats.BoundingBoxLayer0 = e.logical
				firstLayer0 = false
			} else {
				stats.BoundingBoxLayer0 = unionRect(stats.BoundingBoxLayer0, e.logical)
			}
		}
		for dim := int32(1); dim <= capi.MaxDimensions; dim++ {
			v, ok := e.coord.Get(dim)
			if !ok {
				continue
			}
			bit := uint32(1) << uint(dim-1)
			idx := dim - 1
			if stats.DimBounds.Dims&bit == 0 {
				stats.DimBounds.Dims |= bit
				stats.DimBounds.Start[idx] = v
				stats.DimBounds.Size[idx] = 1
				continue
			}
			start := stats.DimBounds.Start[idx]
			end := start + stats.DimBounds.Size[idx] - 1
			if v < start {
				start = v
			}
			if v > end {
				end = v
			}
			stats.DimBounds.Start[idx] = start
			stats.DimBounds.Size[idx] = end - start + 1
		}
	}
	return stats, capi.StatusOK
}

func unionRect(a, b capi.IntRect) capi.IntRect {
	x1, y1 := a.X, a.Y
	if b.X < x1 {
		x1 = b.X
	}
	if b.Y < y1 {
		y1 = b.Y
	}
	x2, y2 := a.X+a.W, a.Y+a.H
	if b.X+b.W > x2 {
		x2 = b.X + b.W
	}
	if b.Y+b.H > y2 {
		y2 = b.Y + b.H
	}
	return capi.IntRect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// pyramidLayer classifies a sub-block by its logical/physical size ratio.
// Layer 0 reports a zero minification factor; pyramid layers report the
// per-step factor 2 and the number of halvings.
func pyramidLayer(e *subBlockEntry) (minification, layerNo int) {
	if e.physical.W <= 0 || e.logical.W <= e.physical.W {
		return 0, 0
	}
	ratio := int(e.logical.W / e.physical.W)
	n := 0
	for f := 1; f < ratio; f *= 2 {
		n++
	}
	return 2, n
}

func (l *Library) ReaderGetPyramidStatistics(h capi.Handle) (string, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return "", st
	}

	type layerKey struct {
		minification int
		layerNo      int
	}
	scenes := make(map[int]map[layerKey]int)
	for i := range r.dir.subBlocks {
		e := &r.dir.subBlocks[i]
		scene := 0
		if v, ok := e.coord.Get(dimScene); ok {
			scene = int(v)
		}
		minification, layerNo := pyramidLayer(e)
		if scenes[scene] == nil {
			scenes[scene] = make(map[layerKey]int)
		}
		scenes[scene][layerKey{minification, layerNo}]++
	}

	type layerDoc struct {
		LayerInfo struct {
			MinificationFactor int `json:"minificationFactor"`
			PyramidLayerNo     int `json:"pyramidLayerNo"`
		} `json:"layerInfo"`
		Count int `json:"count"`
	}
	doc := struct {
		ScenePyramidStatistics map[string][]layerDoc `json:"scenePyramidStatistics"`
	}{ScenePyramidStatistics: make(map[string][]layerDoc, len(scenes))}

	for scene, layers := range scenes {
		keys := make([]layerKey, 0, len(layers))
		for k := range layers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].layerNo < keys[j].layerNo })
		entries := make([]layerDoc, 0, len(keys))
		for _, k := range keys {
			var entry layerDoc
			entry.LayerInfo.MinificationFactor = k.minification
			entry.LayerInfo.PyramidLayerNo = k.layerNo
			entry.Count = layers[k]
			entries = append(entries, entry)
		}
		doc.ScenePyramidStatistics[fmt.Sprint(scene)] = entries
	}

	out, err := json.MarshalToString(doc)
	if err != nil {
		return "", capi.StatusUnspecified
	}
	return out, capi.StatusOK
}

func (l *Library) ReaderGetSubBlockInfo(h capi.Handle, index int32) (capi.SubBlockInfo, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.SubBlockInfo{}, st
	}
	if index < 0 || int(index) >= len(r.dir.subBlocks) {
		return capi.SubBlockInfo{}, capi.StatusIndexOutOfRange
	}
	return r.dir.subBlocks[index].info(), capi.StatusOK
}

// subBlock is the object behind a sub-block handle: the directory entry plus
// the payloads, read from the stream when the sub-block was materialized.
type subBlock struct {
	entry subBlockEntry
	data  []byte
	meta  []byte
}

func (l *Library) ReaderReadSubBlock(h capi.Handle, index int32) (capi.Handle, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	// Out of range mirrors the native behavior: success with a null handle.
	if index < 0 || int(index) >= len(r.dir.subBlocks) {
		return capi.InvalidHandle, capi.StatusOK
	}
	e := r.dir.subBlocks[index]
	data, err := r.src.At(int64(e.dataOffset)).ReadBytes(int(e.dataSize))
	if err != nil {
		return capi.InvalidHandle, asStatus(err)
	}
	var meta []byte
	if e.metaSize > 0 {
		if meta, err = r.src.At(int64(e.metaOffset)).ReadBytes(int(e.metaSize)); err != nil {
			return capi.InvalidHandle, asStatus(err)
		}
	}
	return l.add(kindSubBlock, &subBlock{entry: e, data: data, meta: meta}), capi.StatusOK
}

func (l *Library) SubBlockGetInfo(h capi.Handle) (capi.SubBlockInfo, capi.Status) {
	v, st := l.lookup(h, kindSubBlock)
	if !st.OK() {
		return capi.SubBlockInfo{}, st
	}
	return v.(*subBlock).entry.info(), capi.StatusOK
}

func (l *Library) SubBlockGetRawData(h capi.Handle, kind capi.RawDataType, p []byte) (uint64, capi.Status) {
	v, st := l.lookup(h, kindSubBlock)
	if !st.OK() {
		return 0, st
	}
	sb := v.(*subBlock)
	var payload []byte
	switch kind {
	case capi.RawPixelData:
		payload = sb.data
	case capi.RawMetadata:
		payload = sb.meta
	default:
		return 0, capi.StatusInvalidArgument
	}
	if p != nil {
		copy(p, payload)
	}
	return uint64(len(payload)), capi.StatusOK
}

func (l *Library) ReleaseSubBlock(h capi.Handle) capi.Status {
	_, st := l.remove(h, kindSubBlock)
	return st
}

// bitmap is the object behind a bitmap handle: decoded, tightly packed
// pixels plus the outstanding lock count.
type bitmap struct {
	mu    sync.Mutex
	info  capi.BitmapInfo
	data  []byte
	locks int
}

func bytesPerPixel(pixelType int32) int {
	switch pixelType {
	case 0: // Gray8
		return 1
	case 1: // Gray16
		return 2
	case 2: // Gray32Float
		return 4
	case 3: // Bgr24
		return 3
	case 4: // Bgr48
		return 6
	case 8: // Bgr96Float
		return 12
	case 9: // Bgra32
		return 4
	case 10: // Gray64ComplexFloat
		return 8
	case 11: // Bgr192ComplexFloat
		return 24
	case 12: // Gray32
		return 4
	case 13: // Gray64Float
		return 8
	}
	return 0
}

var (
	zstdOnce   sync.Once
	zstdDec    *zstd.Decoder
	zstdDecErr error
)

func zstdDecode(data []byte) ([]byte, error) {
	zstdOnce.Do(func() {
		zstdDec, zstdDecErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	if zstdDecErr != nil {
		return nil, zstdDecErr
	}
	return zstdDec.DecodeAll(data, nil)
}

func (l *Library) SubBlockCreateBitmap(h capi.Handle) (capi.Handle, capi.Status) {
	v, st := l.lookup(h, kindSubBlock)
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	sb := v.(*subBlock)
	e := &sb.entry

	bpp := bytesPerPixel(e.pixelType)
	if bpp == 0 {
		return capi.InvalidHandle, capi.StatusUnsupported
	}
	want := int(e.physical.W) * int(e.physical.H) * bpp

	var pixels []byte
	switch e.compression {
	case 0: // uncompressed
		if len(sb.data) != want {
			return capi.InvalidHandle, capi.StatusCorruptData
		}
		pixels = make([]byte, want)
		copy(pixels, sb.data)
	case 5, 6: // zstd0, zstd1
		decoded, err := zstdDecode(sb.data)
		if err != nil {
			return capi.InvalidHandle, capi.StatusCorruptData
		}
		if len(decoded) != want {
			return capi.InvalidHandle, capi.StatusCorruptData
		}
		pixels = decoded
	case 4: // JPG XR
		return capi.InvalidHandle, capi.StatusUnsupported
	default:
		return capi.InvalidHandle, capi.StatusUnsupported
	}

	bm := &bitmap{
		info: capi.BitmapInfo{
			Width:     e.physical.W,
			Height:    e.physical.H,
			PixelType: e.pixelType,
		},
		data: pixels,
	}
	return l.add(kindBitmap, bm), capi.StatusOK
}

func (l *Library) BitmapGetInfo(h capi.Handle) (capi.BitmapInfo, capi.Status) {
	v, st := l.lookup(h, kindBitmap)
	if !st.OK() {
		return capi.BitmapInfo{}, st
	}
	return v.(*bitmap).info, capi.StatusOK
}

func (l *Library) BitmapLock(h capi.Handle) (capi.BitmapLockInfo, capi.Status) {
	v, st := l.lookup(h, kindBitmap)
	if !st.OK() {
		return capi.BitmapLockInfo{}, st
	}
	bm := v.(*bitmap)
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.locks++
	stride := bm.info.Width * int32(bytesPerPixel(bm.info.PixelType))
	return capi.BitmapLockInfo{Data: bm.data, Stride: stride}, capi.StatusOK
}

func (l *Library) BitmapUnlock(h capi.Handle) capi.Status {
	v, st := l.lookup(h, kindBitmap)
	if !st.OK() {
		return st
	}
	bm := v.(*bitmap)
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.locks == 0 {
		return capi.StatusLockUnlockViolated
	}
	bm.locks--
	return capi.StatusOK
}

func (l *Library) ReleaseBitmap(h capi.Handle) capi.Status {
	v, st := l.lookup(h, kindBitmap)
	if !st.OK() {
		return st
	}
	bm := v.(*bitmap)
	bm.mu.Lock()
	locked := bm.locks != 0
	bm.mu.Unlock()
	if locked {
		return capi.StatusLockUnlockViolated
	}
	_, st = l.remove(h, kindBitmap)
	return st
}

// metadataSegment is the object behind a metadata segment handle.
type metadataSegment struct {
	xml []byte
}

func (l *Library) ReaderGetMetadataSegment(h capi.Handle) (capi.Handle, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	var xml []byte
	if r.dir.metaPresent && r.dir.metaSize > 0 {
		var err error
		if xml, err = r.src.At(int64(r.dir.metaOffset)).ReadBytes(int(r.dir.metaSize)); err != nil {
			return capi.InvalidHandle, asStatus(err)
		}
	}
	return l.add(kindMetadataSegment, &metadataSegment{xml: xml}), capi.StatusOK
}

func (l *Library) MetadataSegmentGetXML(h capi.Handle) ([]byte, capi.Status) {
	v, st := l.lookup(h, kindMetadataSegment)
	if !st.OK() {
		return nil, st
	}
	seg := v.(*metadataSegment)
	out := make([]byte, len(seg.xml))
	copy(out, seg.xml)
	return out, capi.StatusOK
}

func (l *Library) ReleaseMetadataSegment(h capi.Handle) capi.Status {
	_, st := l.remove(h, kindMetadataSegment)
	return st
}

// attachment is the object behind an attachment handle.
type attachment struct {
	info capi.AttachmentInfo
	data []byte
}

func (l *Library) ReaderGetAttachmentCount(h capi.Handle) (int32, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return 0, st
	}
	return int32(len(r.dir.attachments)), capi.StatusOK
}

func (l *Library) ReaderGetAttachmentInfo(h capi.Handle, index int32) (capi.AttachmentInfo, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.AttachmentInfo{}, st
	}
	if index < 0 || int(index) >= len(r.dir.attachments) {
		return capi.AttachmentInfo{}, capi.StatusIndexOutOfRange
	}
	a := &r.dir.attachments[index]
	return capi.AttachmentInfo{GUID: a.guid, ContentFileType: a.contentFileType, Name: a.name}, capi.StatusOK
}

func (l *Library) ReaderReadAttachment(h capi.Handle, index int32) (capi.Handle, capi.Status) {
	r, st := l.openedReader(h)
	if !st.OK() {
		return capi.InvalidHandle, st
	}
	if index < 0 || int(index) >= len(r.dir.attachments) {
		return capi.InvalidHandle, capi.StatusIndexOutOfRange
	}
	a := &r.dir.attachments[index]
	data, err := r.src.At(int64(a.offset)).ReadBytes(int(a.size))
	if err != nil {
		return capi.InvalidHandle, asStatus(err)
	}
	att := &attachment{
		info: capi.AttachmentInfo{GUID: a.guid, ContentFileType: a.contentFileType, Name: a.name},
		data: data,
	}
	return l.add(kindAttachment, att), capi.StatusOK
}

func (l *Library) AttachmentGetInfo(h capi.Handle) (capi.AttachmentInfo, capi.Status) {
	v, st := l.lookup(h, kindAttachment)
	if !st.OK() {
		return capi.AttachmentInfo{}, st
	}
	return v.(*attachment).info, capi.StatusOK
}

func (l *Library) AttachmentGetRawData(h capi.Handle, p []byte) (uint64, capi.Status) {
	v, st := l.lookup(h, kindAttachment)
	if !st.OK() {
		return 0, st
	}
	a := v.(*attachment)
	if p != nil {
		copy(p, a.data)
	}
	return uint64(len(a.data)), capi.StatusOK
}

func (l *Library) ReleaseAttachment(h capi.Handle) capi.Status {
	_, st := l.remove(h, kindAttachment)
	return st
}

func (l *Library) ReleaseReader(h capi.Handle) capi.Status {
	_, st := l.remove(h, kindReader)
	return st
}
