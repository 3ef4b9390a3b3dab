package capi

// MaxDimensions is the number of coordinate dimensions the container knows
// about (Z, C, T, R, S, I, H, V, B).
const MaxDimensions = 9

// Coordinate is the boundary form of a sub-block coordinate: a validity
// bitmask (bit i-1 set means dimension index i carries a value) and the value
// for each dimension.
type Coordinate struct {
	Dims   uint32
	Values [MaxDimensions]int32
}

// Set records a value for the 1-based dimension index.
func (c *Coordinate) Set(dim int32, value int32) {
	if dim < 1 || dim > MaxDimensions {
		return
	}
	c.Dims |= 1 << uint(dim-1)
	c.Values[dim-1] = value
}

// Get reports the value for the 1-based dimension index, if present.
func (c *Coordinate) Get(dim int32) (int32, bool) {
	if dim < 1 || dim > MaxDimensions || c.Dims&(1<<uint(dim-1)) == 0 {
		return 0, false
	}
	return c.Values[dim-1], true
}

// IntRect is an axis-aligned pixel rectangle.
type IntRect struct {
	X, Y, W, H int32
}

// IntSize is a width/height pair.
type IntSize struct {
	W, H int32
}

// DimBounds describes, per valid dimension, the start value and extent the
// document's sub-blocks cover.
type DimBounds struct {
	Dims  uint32
	Start [MaxDimensions]int32
	Size  [MaxDimensions]int32
}

// SubBlockInfo is the boundary form of a sub-block directory entry.
type SubBlockInfo struct {
	Compression  int32
	PixelType    int32
	Coordinate   Coordinate
	LogicalRect  IntRect
	PhysicalSize IntSize
	MIndex       int32
	MIndexValid  bool
}

// SubBlockStatistics summarizes the document's sub-block directory.
type SubBlockStatistics struct {
	SubBlockCount     int32
	MinMIndex         int32
	MaxMIndex         int32
	BoundingBox       IntRect
	BoundingBoxLayer0 IntRect
	DimBounds         DimBounds
}

// FileHeaderInfo mirrors the container file header: document GUID and the
// major/minor version of the format.
type FileHeaderInfo struct {
	GUID         [16]byte
	MajorVersion int32
	MinorVersion int32
}

// AttachmentInfo is the boundary form of an attachment directory entry.
type AttachmentInfo struct {
	GUID            [16]byte
	ContentFileType string
	Name            string
}

// AddSubBlockInfo carries everything the writer needs to append one
// sub-block. Data holds the pixel payload in the declared compression;
// Metadata optionally holds per-sub-block XML.
type AddSubBlockInfo struct {
	Coordinate     Coordinate
	MIndexValid    bool
	MIndex         int32
	X, Y           int32
	LogicalWidth   int32
	LogicalHeight  int32
	PhysicalWidth  int32
	PhysicalHeight int32
	PixelType      int32
	Compression    int32
	Data           []byte
	Metadata       []byte
}

// AddAttachmentInfo carries one attachment for the writer.
type AddAttachmentInfo struct {
	GUID            [16]byte
	ContentFileType string
	Name            string
	Data            []byte
}

// WriteMetadataInfo carries the document XML metadata for the writer.
type WriteMetadataInfo struct {
	XML []byte
}

// BitmapInfo describes a decoded bitmap.
type BitmapInfo struct {
	Width     int32
	Height    int32
	PixelType int32
}

// BitmapLockInfo grants access to locked pixel memory. Data aliases
// native-owned memory and is only valid until the matching unlock.
type BitmapLockInfo struct {
	Data   []byte
	Stride int32
}

// VersionInfo is the native library's version.
type VersionInfo struct {
	Major, Minor, Patch, Tweak int32
}

// BuildInformation describes how the native library was built.
type BuildInformation struct {
	CompilerIdentification string
	RepositoryURL          string
	RepositoryBranch       string
	RepositoryTag          string
}
