package memczi

import (
	"bytes"
	"hash/crc32"
	"io"

	"github.com/robert-malhotra/go-czi/internal/binary"
	"github.com/robert-malhotra/go-czi/internal/capi"
)

// Container layout: a fixed-size header at offset 0, payload segments
// appended behind it, and a directory at the end. The header is written
// provisionally at init and rewritten when the writer closes, once the
// directory offset is known.
//
//	header:   magic[8] guid[16] major:u32 minor:u32
//	          dirOffset:u64 dirSize:u64 dirCRC:u32 pad -> headerSize
//	directory: subBlockCount:u32 subBlockEntry...
//	           metaPresent:u8 metaOffset:u64 metaSize:u32
//	           attachmentCount:u32 attachmentEntry...

var containerMagic = [8]byte{'M', 'C', 'Z', 'I', '0', '0', '0', '1'}

const (
	headerSize = 64

	formatMajor = 1
	formatMinor = 0
)

type subBlockEntry struct {
	coord       capi.Coordinate
	mIndexValid bool
	mIndex      int32
	logical     capi.IntRect
	physical    capi.IntSize
	pixelType   int32
	compression int32
	dataOffset  uint64
	dataSize    uint32
	metaOffset  uint64
	metaSize    uint32
}

func (e *subBlockEntry) info() capi.SubBlockInfo {
	return capi.SubBlockInfo{
		Compression:  e.compression,
		PixelType:    e.pixelType,
		Coordinate:   e.coord,
		LogicalRect:  e.logical,
		PhysicalSize: e.physical,
		MIndex:       e.mIndex,
		MIndexValid:  e.mIndexValid,
	}
}

type attachmentEntry struct {
	guid            [16]byte
	name            string
	contentFileType string
	offset          uint64
	size            uint32
}

type directory struct {
	subBlocks   []subBlockEntry
	metaPresent bool
	metaOffset  uint64
	metaSize    uint32
	attachments []attachmentEntry
}

type header struct {
	guid      [16]byte
	major     int32
	minor     int32
	dirOffset uint64
	dirSize   uint64
	dirCRC    uint32
}

// growBuffer is an in-memory io.WriterAt used to serialize the directory
// before it is appended to the stream in one piece.
type growBuffer struct {
	buf []byte
}

func (b *growBuffer) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if int64(len(b.buf)) < end {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

func writeHeader(w *binary.Writer, h *header) error {
	if err := w.WriteBytes(containerMagic[:]); err != nil {
		return err
	}
	if err := w.WriteGUID(h.guid); err != nil {
		return err
	}
	if err := w.WriteInt32(h.major); err != nil {
		return err
	}
	if err := w.WriteInt32(h.minor); err != nil {
		return err
	}
	if err := w.WriteUint64(h.dirOffset); err != nil {
		return err
	}
	if err := w.WriteUint64(h.dirSize); err != nil {
		return err
	}
	if err := w.WriteUint32(h.dirCRC); err != nil {
		return err
	}
	return w.WriteZeros(headerSize - int(w.Pos()))
}

func readHeader(r *binary.Reader) (header, capi.Status) {
	var h header
	magic, err := r.ReadBytes(len(containerMagic))
	if err != nil {
		return h, asStatus(err)
	}
	if !bytes.Equal(magic, containerMagic[:]) {
		return h, capi.StatusCorruptData
	}
	if h.guid, err = r.ReadGUID(); err != nil {
		return h, asStatus(err)
	}
	if h.major, err = r.ReadInt32(); err != nil {
		return h, asStatus(err)
	}
	if h.minor, err = r.ReadInt32(); err != nil {
		return h, asStatus(err)
	}
	if h.dirOffset, err = r.ReadUint64(); err != nil {
		return h, asStatus(err)
	}
	if h.dirSize, err = r.ReadUint64(); err != nil {
		return h, asStatus(err)
	}
	if h.dirCRC, err = r.ReadUint32(); err != nil {
		return h, asStatus(err)
	}
	if h.dirOffset < headerSize || h.dirSize == 0 {
		return h, capi.StatusCorruptData
	}
	return h, capi.StatusOK
}

func encodeDirectory(d *directory) ([]byte, error) {
	buf := &growBuffer{}
	w := binary.NewWriter(buf)

	if err := w.WriteUint32(uint32(len(d.subBlocks))); err != nil {
		return nil, err
	}
	for i := range d.subBlocks {
		e := &d.subBlocks[i]
		if err := w.WriteUint32(e.coord.Dims); err != nil {
			return nil, err
		}
		for _, v := range e.coord.Values {
			if err := w.WriteInt32(v); err != nil {
				return nil, err
			}
		}
		if err := w.WriteBool(e.mIndexValid); err != nil {
			return nil, err
		}
		if err := w.WriteInt32(e.mIndex); err != nil {
			return nil, err
		}
		for _, v := range []int32{e.logical.X, e.logical.Y, e.logical.W, e.logical.H, e.physical.W, e.physical.H} {
			if err := w.WriteInt32(v); err != nil {
				return nil, err
			}
		}
		if err := w.WriteInt32(e.pixelType); err != nil {
			return nil, err
		}
		if err := w.WriteInt32(e.compression); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(e.dataOffset); err != nil {
			return nil, err
		}
		if err := w.WriteUint32(e.dataSize); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(e.metaOffset); err != nil {
			return nil, err
		}
		if err := w.WriteUint32(e.metaSize); err != nil {
			return nil, err
		}
	}

	if err := w.WriteBool(d.metaPresent); err != nil {
		return nil, err
	}
	if err := w.WriteUint64(d.metaOffset); err != nil {
		return nil, err
	}
	if err := w.WriteUint32(d.metaSize); err != nil {
		return nil, err
	}

	if err := w.WriteUint32(uint32(len(d.attachments))); err != nil {
		return nil, err
	}
	for i := range d.attachments {
		a := &d.attachments[i]
		if err := w.WriteGUID(a.guid); err != nil {
			return nil, err
		}
		if err := w.WriteString(a.name); err != nil {
			return nil, err
		}
		if err := w.WriteString(a.contentFileType); err != nil {
			return nil, err
		}
		if err := w.WriteUint64(a.offset); err != nil {
			return nil, err
		}
		if err := w.WriteUint32(a.size); err != nil {
			return nil, err
		}
	}
	return buf.buf, nil
}

func decodeDirectory(raw []byte) (*directory, capi.Status) {
	r := binary.NewReader(bytes.NewReader(raw))
	d := &directory{}

	count, err := r.ReadUint32()
	if err != nil {
		return nil, capi.StatusCorruptData
	}
	// Each entry occupies a fixed number of directory bytes. A count the
	// remaining bytes cannot hold is corrupt and must not drive the
	// allocation.
	const entryWireSize = 4 + 4*capi.MaxDimensions + 1 + 4 + 8*4 + 8 + 4 + 8 + 4
	if uint64(count)*entryWireSize > uint64(len(raw)) {
		return nil, capi.StatusCorruptData
	}
	d.subBlocks = make([]subBlockEntry, count)
	for i := range d.subBlocks {
		e := &d.subBlocks[i]
		if e.coord.Dims, err = r.ReadUint32(); err != nil {
			return nil, capi.StatusCorruptData
		}
		for j := range e.coord.Values {
			if e.coord.Values[j], err = r.ReadInt32(); err != nil {
				return nil, capi.StatusCorruptData
			}
		}
		if e.mIndexValid, err = r.ReadBool(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if e.mIndex, err = r.ReadInt32(); err != nil {
			return nil, capi.StatusCorruptData
		}
		fields := []*int32{&e.logical.X, &e.logical.Y, &e.logical.W, &e.logical.H, &e.physical.W, &e.physical.H, &e.pixelType, &e.compression}
		for _, f := range fields {
			if *f, err = r.ReadInt32(); err != nil {
				return nil, capi.StatusCorruptData
			}
		}
		if e.dataOffset, err = r.ReadUint64(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if e.dataSize, err = r.ReadUint32(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if e.metaOffset, err = r.ReadUint64(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if e.metaSize, err = r.ReadUint32(); err != nil {
			return nil, capi.StatusCorruptData
		}
	}

	if d.metaPresent, err = r.ReadBool(); err != nil {
		return nil, capi.StatusCorruptData
	}
	if d.metaOffset, err = r.ReadUint64(); err != nil {
		return nil, capi.StatusCorruptData
	}
	if d.metaSize, err = r.ReadUint32(); err != nil {
		return nil, capi.StatusCorruptData
	}

	acount, err := r.ReadUint32()
	if err != nil {
		return nil, capi.StatusCorruptData
	}
	d.attachments = make([]attachmentEntry, acount)
	for i := range d.attachments {
		a := &d.attachments[i]
		if a.guid, err = r.ReadGUID(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if a.name, err = r.ReadString(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if a.contentFileType, err = r.ReadString(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if a.offset, err = r.ReadUint64(); err != nil {
			return nil, capi.StatusCorruptData
		}
		if a.size, err = r.ReadUint32(); err != nil {
			return nil, capi.StatusCorruptData
		}
	}
	return d, capi.StatusOK
}

func directoryChecksum(raw []byte) uint32 {
	return crc32.ChecksumIEEE(raw)
}

var _ io.WriterAt = (*growBuffer)(nil)
