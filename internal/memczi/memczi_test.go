package memczi

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/robert-malhotra/go-czi/internal/capi"
)

func memInput(data []byte) *capi.ExternalInputStream {
	return &capi.ExternalInputStream{
		Read: func(off int64, p []byte) (int, *capi.StreamError) {
			if off < 0 {
				return 0, &capi.StreamError{Code: capi.StatusInvalidArgument, Message: "negative offset"}
			}
			if off >= int64(len(data)) {
				return 0, nil
			}
			return copy(p, data[off:]), nil
		},
		Size:  func() (int64, bool) { return int64(len(data)), true },
		Close: func() {},
	}
}

func memOutput(buf *growBuffer) *capi.ExternalOutputStream {
	return &capi.ExternalOutputStream{
		Write: func(off int64, p []byte) (int, *capi.StreamError) {
			n, _ := buf.WriteAt(p, off)
			return n, nil
		},
		Close: func() {},
	}
}

func mustStatus(t *testing.T, st capi.Status, op string) {
	t.Helper()
	if !st.OK() {
		t.Fatalf("%s: status %d", op, st)
	}
}

func gray8Block(t *testing.T, lib *Library, w capi.Handle, zIndex int32, data []byte, width, height int32) {
	t.Helper()
	var coord capi.Coordinate
	coord.Set(1, zIndex)
	st := lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate:     coord,
		X:              0,
		Y:              0,
		LogicalWidth:   width,
		LogicalHeight:  height,
		PhysicalWidth:  width,
		PhysicalHeight: height,
		PixelType:      0,
		Compression:    0,
		Data:           data,
	})
	mustStatus(t, st, "add sub-block")
}

// writeDocument authors a small document and returns the serialized bytes.
func writeDocument(t *testing.T, lib *Library) []byte {
	t.Helper()
	buf := &growBuffer{}
	out, st := lib.CreateOutputStreamFromExternal(memOutput(buf))
	mustStatus(t, st, "create output stream")
	w, st := lib.CreateWriter(`{"allow_duplicate_subblocks":false}`)
	mustStatus(t, st, "create writer")
	mustStatus(t, lib.WriterInit(w, out, `{"file_guid":"15a3ef21-5b52-4cd2-9a4e-7c9d68c1a001"}`), "writer init")

	pixels := make([]byte, 4*2)
	for i := range pixels {
		pixels[i] = byte(i + 1)
	}
	gray8Block(t, lib, w, 0, pixels, 4, 2)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := enc.EncodeAll(pixels, nil)
	enc.Close()
	var coord capi.Coordinate
	coord.Set(1, 1)
	st = lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate:     coord,
		MIndexValid:    true,
		MIndex:         7,
		LogicalWidth:   4,
		LogicalHeight:  2,
		PhysicalWidth:  4,
		PhysicalHeight: 2,
		PixelType:      0,
		Compression:    5,
		Data:           compressed,
		Metadata:       []byte("<METADATA/>"),
	})
	mustStatus(t, st, "add compressed sub-block")

	st = lib.WriterAddAttachment(w, &capi.AddAttachmentInfo{
		GUID:            [16]byte{1},
		ContentFileType: "CZTXT",
		Name:            "Label",
		Data:            []byte("hello attachment"),
	})
	mustStatus(t, st, "add attachment")
	mustStatus(t, lib.WriterWriteMetadata(w, &capi.WriteMetadataInfo{XML: []byte("<ImageDocument/>")}), "write metadata")
	mustStatus(t, lib.WriterClose(w), "writer close")
	mustStatus(t, lib.ReleaseWriter(w), "release writer")
	mustStatus(t, lib.ReleaseOutputStream(out), "release output stream")
	return buf.buf
}

func openDocument(t *testing.T, lib *Library, doc []byte) (capi.Handle, capi.Handle) {
	t.Helper()
	in, st := lib.CreateInputStreamFromExternal(memInput(doc))
	mustStatus(t, st, "create input stream")
	r, st := lib.CreateReader()
	mustStatus(t, st, "create reader")
	mustStatus(t, lib.ReaderOpen(r, in, "{}"), "reader open")
	return r, in
}

func TestRoundTrip(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	r, in := openDocument(t, lib, doc)

	hdr, st := lib.ReaderGetFileHeaderInfo(r)
	mustStatus(t, st, "file header")
	if hdr.GUID == ([16]byte{}) {
		t.Fatal("file GUID not preserved")
	}
	if hdr.MajorVersion != formatMajor {
		t.Fatalf("major version = %d", hdr.MajorVersion)
	}

	stats, st := lib.ReaderGetStatistics(r)
	mustStatus(t, st, "statistics")
	if stats.SubBlockCount != 2 {
		t.Fatalf("sub-block count = %d", stats.SubBlockCount)
	}
	if stats.MinMIndex != 7 || stats.MaxMIndex != 7 {
		t.Fatalf("m-index range = [%d, %d]", stats.MinMIndex, stats.MaxMIndex)
	}
	if stats.BoundingBox != (capi.IntRect{X: 0, Y: 0, W: 4, H: 2}) {
		t.Fatalf("bounding box = %+v", stats.BoundingBox)
	}
	if stats.DimBounds.Dims&1 == 0 || stats.DimBounds.Start[0] != 0 || stats.DimBounds.Size[0] != 2 {
		t.Fatalf("Z bounds = %+v", stats.DimBounds)
	}

	info, st := lib.ReaderGetSubBlockInfo(r, 1)
	mustStatus(t, st, "sub-block info")
	if info.Compression != 5 || !info.MIndexValid || info.MIndex != 7 {
		t.Fatalf("sub-block info = %+v", info)
	}
	if _, st := lib.ReaderGetSubBlockInfo(r, 99); st != capi.StatusIndexOutOfRange {
		t.Fatalf("out-of-range info status = %d", st)
	}

	// Decode the compressed sub-block through the bitmap path.
	sb, st := lib.ReaderReadSubBlock(r, 1)
	mustStatus(t, st, "read sub-block")
	bm, st := lib.SubBlockCreateBitmap(sb)
	mustStatus(t, st, "create bitmap")
	lock, st := lib.BitmapLock(bm)
	mustStatus(t, st, "lock bitmap")
	if len(lock.Data) != 8 || lock.Data[0] != 1 || lock.Data[7] != 8 {
		t.Fatalf("decoded pixels = %v", lock.Data)
	}
	mustStatus(t, lib.BitmapUnlock(bm), "unlock bitmap")
	mustStatus(t, lib.ReleaseBitmap(bm), "release bitmap")

	// Two-call raw data protocol.
	size, st := lib.SubBlockGetRawData(sb, capi.RawMetadata, nil)
	mustStatus(t, st, "raw metadata size")
	buf := make([]byte, size)
	if _, st := lib.SubBlockGetRawData(sb, capi.RawMetadata, buf); !st.OK() {
		t.Fatalf("raw metadata copy status = %d", st)
	}
	if string(buf) != "<METADATA/>" {
		t.Fatalf("sub-block metadata = %q", buf)
	}
	mustStatus(t, lib.ReleaseSubBlock(sb), "release sub-block")

	// Out of range read reports success with a null handle.
	h, st := lib.ReaderReadSubBlock(r, 99)
	if h != capi.InvalidHandle || !st.OK() {
		t.Fatalf("out-of-range read = (%d, %d)", h, st)
	}

	// Document metadata.
	seg, st := lib.ReaderGetMetadataSegment(r)
	mustStatus(t, st, "metadata segment")
	xml, st := lib.MetadataSegmentGetXML(seg)
	mustStatus(t, st, "metadata xml")
	if string(xml) != "<ImageDocument/>" {
		t.Fatalf("metadata xml = %q", xml)
	}
	mustStatus(t, lib.ReleaseMetadataSegment(seg), "release metadata segment")

	// Attachment round trip.
	count, st := lib.ReaderGetAttachmentCount(r)
	mustStatus(t, st, "attachment count")
	if count != 1 {
		t.Fatalf("attachment count = %d", count)
	}
	ainfo, st := lib.ReaderGetAttachmentInfo(r, 0)
	mustStatus(t, st, "attachment info")
	if ainfo.Name != "Label" || ainfo.ContentFileType != "CZTXT" {
		t.Fatalf("attachment info = %+v", ainfo)
	}
	att, st := lib.ReaderReadAttachment(r, 0)
	mustStatus(t, st, "read attachment")
	asize, st := lib.AttachmentGetRawData(att, nil)
	mustStatus(t, st, "attachment size")
	abuf := make([]byte, asize)
	lib.AttachmentGetRawData(att, abuf)
	if string(abuf) != "hello attachment" {
		t.Fatalf("attachment data = %q", abuf)
	}
	mustStatus(t, lib.ReleaseAttachment(att), "release attachment")

	// Pyramid statistics carry the single scene with both layer-0 blocks.
	doc2, st := lib.ReaderGetPyramidStatistics(r)
	mustStatus(t, st, "pyramid statistics")
	if !strings.Contains(doc2, `"scenePyramidStatistics"`) || !strings.Contains(doc2, `"count":2`) {
		t.Fatalf("pyramid statistics = %s", doc2)
	}

	mustStatus(t, lib.ReleaseReader(r), "release reader")
	mustStatus(t, lib.ReleaseInputStream(in), "release input stream")

	if live := lib.LiveHandles(); live != 0 {
		t.Fatalf("%d handles leaked", live)
	}
	_, _, doubles := lib.Stats()
	if doubles != 0 {
		t.Fatalf("%d double releases", doubles)
	}
}

func TestCorruptMagic(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	doc[0] ^= 0xFF
	in, st := lib.CreateInputStreamFromExternal(memInput(doc))
	mustStatus(t, st, "create input stream")
	r, _ := lib.CreateReader()
	if st := lib.ReaderOpen(r, in, "{}"); st != capi.StatusCorruptData {
		t.Fatalf("open status = %d, want corrupt data", st)
	}
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestCorruptDirectoryChecksum(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	// Flip a byte in the trailing directory.
	doc[len(doc)-1] ^= 0xFF
	in, _ := lib.CreateInputStreamFromExternal(memInput(doc))
	r, _ := lib.CreateReader()
	if st := lib.ReaderOpen(r, in, "{}"); st != capi.StatusCorruptData {
		t.Fatalf("open status = %d, want corrupt data", st)
	}
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestOversizedDirectoryCountRejected(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	// Forge a directory entry count far beyond the bytes backing it and
	// recompute the checksum, so only the count bound can refuse it.
	dirOffset := binary.LittleEndian.Uint64(doc[32:40])
	dirSize := binary.LittleEndian.Uint64(doc[40:48])
	binary.LittleEndian.PutUint32(doc[dirOffset:], 0xFFFFFFF0)
	binary.LittleEndian.PutUint32(doc[48:52], directoryChecksum(doc[dirOffset:dirOffset+dirSize]))

	in, _ := lib.CreateInputStreamFromExternal(memInput(doc))
	r, _ := lib.CreateReader()
	if st := lib.ReaderOpen(r, in, "{}"); st != capi.StatusCorruptData {
		t.Fatalf("open status = %d, want corrupt data", st)
	}
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestTruncatedPayload(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	// Serve a stream that ends right after the header; the directory offset
	// points past the end.
	truncated := doc[:headerSize+2]
	in2, _ := lib.CreateInputStreamFromExternal(memInput(truncated))
	r2, _ := lib.CreateReader()
	if st := lib.ReaderOpen(r2, in2, "{}"); st != capi.StatusCorruptData {
		t.Fatalf("open status = %d, want corrupt data", st)
	}
	lib.ReleaseReader(r2)
	lib.ReleaseInputStream(in2)
}

func TestStreamFailureSurfacesCode(t *testing.T) {
	lib := New()
	ext := &capi.ExternalInputStream{
		Read: func(off int64, p []byte) (int, *capi.StreamError) {
			return 0, &capi.StreamError{Code: capi.StatusStreamIO, Message: "disk on fire"}
		},
		Close: func() {},
	}
	in, _ := lib.CreateInputStreamFromExternal(ext)
	r, _ := lib.CreateReader()
	if st := lib.ReaderOpen(r, in, "{}"); st != capi.StatusStreamIO {
		t.Fatalf("open status = %d, want stream I/O", st)
	}
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestDoubleReleaseCounted(t *testing.T) {
	lib := New()
	r, _ := lib.CreateReader()
	mustStatus(t, lib.ReleaseReader(r), "first release")
	if st := lib.ReleaseReader(r); st != capi.StatusInvalidHandle {
		t.Fatalf("second release status = %d", st)
	}
	if _, _, doubles := lib.Stats(); doubles != 1 {
		t.Fatalf("double release count = %d", doubles)
	}
}

func TestDuplicateSubBlockRejected(t *testing.T) {
	lib := New()
	buf := &growBuffer{}
	out, _ := lib.CreateOutputStreamFromExternal(memOutput(buf))
	w, _ := lib.CreateWriter("")
	mustStatus(t, lib.WriterInit(w, out, "{}"), "writer init")

	pixels := make([]byte, 4)
	gray8Block(t, lib, w, 0, pixels, 2, 2)
	var coord capi.Coordinate
	coord.Set(1, 0)
	st := lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate: coord, LogicalWidth: 2, LogicalHeight: 2,
		PhysicalWidth: 2, PhysicalHeight: 2, PixelType: 0, Compression: 0, Data: pixels,
	})
	if st != capi.StatusInvalidArgument {
		t.Fatalf("duplicate status = %d, want invalid argument", st)
	}
	lib.WriterClose(w)
	lib.ReleaseWriter(w)
	lib.ReleaseOutputStream(out)
}

func TestDuplicateSubBlockAllowedWhenOptedIn(t *testing.T) {
	lib := New()
	buf := &growBuffer{}
	out, _ := lib.CreateOutputStreamFromExternal(memOutput(buf))
	w, _ := lib.CreateWriter(`{"allow_duplicate_subblocks":true}`)
	mustStatus(t, lib.WriterInit(w, out, "{}"), "writer init")

	pixels := make([]byte, 4)
	gray8Block(t, lib, w, 0, pixels, 2, 2)
	gray8Block(t, lib, w, 0, pixels, 2, 2)
	mustStatus(t, lib.WriterClose(w), "writer close")
	lib.ReleaseWriter(w)
	lib.ReleaseOutputStream(out)
}

func TestWriteAfterCloseFails(t *testing.T) {
	lib := New()
	buf := &growBuffer{}
	out, _ := lib.CreateOutputStreamFromExternal(memOutput(buf))
	w, _ := lib.CreateWriter("")
	mustStatus(t, lib.WriterInit(w, out, "{}"), "writer init")
	mustStatus(t, lib.WriterClose(w), "writer close")

	var coord capi.Coordinate
	coord.Set(1, 0)
	st := lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate: coord, LogicalWidth: 1, LogicalHeight: 1,
		PhysicalWidth: 1, PhysicalHeight: 1, PixelType: 0, Compression: 0, Data: []byte{0},
	})
	if st != capi.StatusInvalidHandle {
		t.Fatalf("add-after-close status = %d, want invalid handle", st)
	}
	lib.ReleaseWriter(w)
	lib.ReleaseOutputStream(out)
}

func TestMIndexBoundsEnforced(t *testing.T) {
	lib := New()
	buf := &growBuffer{}
	out, _ := lib.CreateOutputStreamFromExternal(memOutput(buf))
	w, _ := lib.CreateWriter("")
	mustStatus(t, lib.WriterInit(w, out, `{"minimum_m_index":0,"maximum_m_index":3}`), "writer init")

	var coord capi.Coordinate
	coord.Set(1, 0)
	st := lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate: coord, MIndexValid: true, MIndex: 9,
		LogicalWidth: 1, LogicalHeight: 1, PhysicalWidth: 1, PhysicalHeight: 1,
		PixelType: 0, Compression: 0, Data: []byte{0},
	})
	if st != capi.StatusInvalidArgument {
		t.Fatalf("out-of-bounds m-index status = %d", st)
	}
	lib.WriterClose(w)
	lib.ReleaseWriter(w)
	lib.ReleaseOutputStream(out)
}

func TestJpgXRUnsupported(t *testing.T) {
	lib := New()
	buf := &growBuffer{}
	out, _ := lib.CreateOutputStreamFromExternal(memOutput(buf))
	w, _ := lib.CreateWriter("")
	mustStatus(t, lib.WriterInit(w, out, "{}"), "writer init")
	var coord capi.Coordinate
	coord.Set(1, 0)
	st := lib.WriterAddSubBlock(w, &capi.AddSubBlockInfo{
		Coordinate: coord, LogicalWidth: 2, LogicalHeight: 2,
		PhysicalWidth: 2, PhysicalHeight: 2, PixelType: 0, Compression: 4,
		Data: []byte{0xDE, 0xAD},
	})
	mustStatus(t, st, "add jpgxr sub-block")
	mustStatus(t, lib.WriterClose(w), "writer close")
	lib.ReleaseWriter(w)
	lib.ReleaseOutputStream(out)

	r, in := openDocument(t, lib, buf.buf)
	sb, st := lib.ReaderReadSubBlock(r, 0)
	mustStatus(t, st, "read sub-block")
	if _, st := lib.SubBlockCreateBitmap(sb); st != capi.StatusUnsupported {
		t.Fatalf("jpgxr decode status = %d, want unsupported", st)
	}
	lib.ReleaseSubBlock(sb)
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestBitmapLockSemantics(t *testing.T) {
	lib := New()
	doc := writeDocument(t, lib)
	r, in := openDocument(t, lib, doc)
	sb, _ := lib.ReaderReadSubBlock(r, 0)
	bm, st := lib.SubBlockCreateBitmap(sb)
	mustStatus(t, st, "create bitmap")

	if st := lib.BitmapUnlock(bm); st != capi.StatusLockUnlockViolated {
		t.Fatalf("unbalanced unlock status = %d", st)
	}
	if _, st := lib.BitmapLock(bm); !st.OK() {
		t.Fatalf("lock status = %d", st)
	}
	if st := lib.ReleaseBitmap(bm); st != capi.StatusLockUnlockViolated {
		t.Fatalf("release-while-locked status = %d", st)
	}
	mustStatus(t, lib.BitmapUnlock(bm), "unlock")
	mustStatus(t, lib.ReleaseBitmap(bm), "release bitmap")
	lib.ReleaseSubBlock(sb)
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestFileStreams(t *testing.T) {
	lib := New()
	path := t.TempDir() + "/doc.mczi"

	out, st := lib.CreateOutputStreamForFile(path, true)
	mustStatus(t, st, "create file output stream")
	w, _ := lib.CreateWriter("")
	mustStatus(t, lib.WriterInit(w, out, "{}"), "writer init")
	gray8Block(t, lib, w, 0, []byte{1, 2, 3, 4}, 2, 2)
	mustStatus(t, lib.WriterClose(w), "writer close")
	mustStatus(t, lib.ReleaseWriter(w), "release writer")
	mustStatus(t, lib.ReleaseOutputStream(out), "release output stream")

	if _, st := lib.CreateOutputStreamForFile(path, false); st != capi.StatusStreamIO {
		t.Fatalf("no-overwrite status = %d", st)
	}

	in, st := lib.CreateInputStreamFromFile(path)
	mustStatus(t, st, "create file input stream")
	r, _ := lib.CreateReader()
	mustStatus(t, lib.ReaderOpen(r, in, "{}"), "reader open")
	stats, _ := lib.ReaderGetStatistics(r)
	if stats.SubBlockCount != 1 {
		t.Fatalf("sub-block count = %d", stats.SubBlockCount)
	}
	lib.ReleaseReader(r)
	lib.ReleaseInputStream(in)
}

func TestDiagnostics(t *testing.T) {
	lib := New()
	msg, st := lib.GetErrorMessage(capi.StatusLockUnlockViolated)
	mustStatus(t, st, "error message")
	if msg == "" {
		t.Fatal("empty error message")
	}
	v, st := lib.GetVersionInfo()
	mustStatus(t, st, "version info")
	if v.Minor == 0 && v.Major == 0 && v.Patch == 0 {
		t.Fatal("zero version")
	}
	bi, st := lib.GetBuildInformation()
	mustStatus(t, st, "build information")
	if bi.CompilerIdentification == "" {
		t.Fatal("empty compiler identification")
	}
}
