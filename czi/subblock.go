package czi

import (
	"github.com/robert-malhotra/go-czi/internal/capi"
)

// Dimension identifies one axis of the acquisition coordinate space.
type Dimension int32

const (
	DimZ Dimension = 1 // focus
	DimC Dimension = 2 // channel
	DimT Dimension = 3 // time
	DimR Dimension = 4 // rotation
	DimS Dimension = 5 // scene
	DimI Dimension = 6 // illumination
	DimH Dimension = 7 // phase
	DimV Dimension = 8 // view
	DimB Dimension = 9 // block (deprecated in the format, still readable)
)

func (d Dimension) String() string {
	switch d {
	case DimZ:
		return "Z"
	case DimC:
		return "C"
	case DimT:
		return "T"
	case DimR:
		return "R"
	case DimS:
		return "S"
	case DimI:
		return "I"
	case DimH:
		return "H"
	case DimV:
		return "V"
	case DimB:
		return "B"
	default:
		return "?"
	}
}

// Coordinate is a sparse multi-dimensional index into the acquisition: only
// the dimensions the sub-block actually varies over carry a value.
type Coordinate map[Dimension]int

func (c Coordinate) toInterop() capi.Coordinate {
	var out capi.Coordinate
	for d, v := range c {
		out.Set(int32(d), int32(v))
	}
	return out
}

func coordinateFromInterop(in capi.Coordinate) Coordinate {
	c := make(Coordinate)
	for d := int32(1); d <= capi.MaxDimensions; d++ {
		if v, ok := in.Get(d); ok {
			c[Dimension(d)] = int(v)
		}
	}
	return c
}

// Rect is an axis-aligned pixel rectangle in document coordinates.
type Rect struct {
	X, Y, W, H int
}

func rectFromInterop(r capi.IntRect) Rect {
	return Rect{X: int(r.X), Y: int(r.Y), W: int(r.W), H: int(r.H)}
}

// PixelType identifies the sample layout of a sub-block's pixels.
type PixelType int32

const (
	PixelGray8              PixelType = 0
	PixelGray16             PixelType = 1
	PixelGray32Float        PixelType = 2
	PixelBgr24              PixelType = 3
	PixelBgr48              PixelType = 4
	PixelBgr96Float         PixelType = 8
	PixelBgra32             PixelType = 9
	PixelGray64ComplexFloat PixelType = 10
	PixelBgr192ComplexFloat PixelType = 11
	PixelGray32             PixelType = 12
	PixelGray64Float        PixelType = 13
)

// BytesPerPixel returns the storage size of one pixel, or 0 for an unknown
// pixel type.
func (p PixelType) BytesPerPixel() int {
	switch p {
	case PixelGray8:
		return 1
	case PixelGray16:
		return 2
	case PixelGray32Float, PixelGray32, PixelBgra32:
		return 4
	case PixelBgr24:
		return 3
	case PixelBgr48:
		return 6
	case PixelBgr96Float:
		return 12
	case PixelGray64ComplexFloat, PixelGray64Float:
		return 8
	case PixelBgr192ComplexFloat:
		return 24
	default:
		return 0
	}
}

func (p PixelType) String() string {
	switch p {
	case PixelGray8:
		return "Gray8"
	case PixelGray16:
		return "Gray16"
	case PixelGray32Float:
		return "Gray32Float"
	case PixelBgr24:
		return "Bgr24"
	case PixelBgr48:
		return "Bgr48"
	case PixelBgr96Float:
		return "Bgr96Float"
	case PixelBgra32:
		return "Bgra32"
	case PixelGray64ComplexFloat:
		return "Gray64ComplexFloat"
	case PixelBgr192ComplexFloat:
		return "Bgr192ComplexFloat"
	case PixelGray32:
		return "Gray32"
	case PixelGray64Float:
		return "Gray64Float"
	default:
		return "Unknown"
	}
}

// CompressionKind identifies how a sub-block payload is stored.
type CompressionKind int32

const (
	CompressionUncompressed CompressionKind = 0
	CompressionJpgXR        CompressionKind = 4
	CompressionZstd0        CompressionKind = 5
	CompressionZstd1        CompressionKind = 6
)

func (c CompressionKind) String() string {
	switch c {
	case CompressionUncompressed:
		return "Uncompressed"
	case CompressionJpgXR:
		return "JpgXR"
	case CompressionZstd0:
		return "Zstd0"
	case CompressionZstd1:
		return "Zstd1"
	default:
		return "Unknown"
	}
}

// SubBlockDescriptor describes one sub-block: its coordinate, logical
// bounding rectangle, stored (physical) pixel dimensions, pixel type and
// compression. Descriptors are immutable once constructed; the pixel payload
// itself is fetched on demand and never cached here.
type SubBlockDescriptor struct {
	Index       int
	Coordinate  Coordinate
	Rect        Rect // logical placement in the document plane
	Width       int  // stored pixel columns
	Height      int  // stored pixel rows
	PixelType   PixelType
	Compression CompressionKind
	MIndex      int
	HasMIndex   bool
}

// StoredByteCount returns the byte length an uncompressed payload of this
// descriptor's dimensions must have, or 0 when the pixel type is unknown.
func (d SubBlockDescriptor) StoredByteCount() int {
	return d.Width * d.Height * d.PixelType.BytesPerPixel()
}

func descriptorFromInterop(index int, in capi.SubBlockInfo) SubBlockDescriptor {
	return SubBlockDescriptor{
		Index:       index,
		Coordinate:  coordinateFromInterop(in.Coordinate),
		Rect:        rectFromInterop(in.LogicalRect),
		Width:       int(in.PhysicalSize.W),
		Height:      int(in.PhysicalSize.H),
		PixelType:   PixelType(in.PixelType),
		Compression: CompressionKind(in.Compression),
		MIndex:      int(in.MIndex),
		HasMIndex:   in.MIndexValid,
	}
}

// PixelBuffer is a decoded, host-owned pixel payload. Rows are tightly
// packed: Stride == Width * PixelType.BytesPerPixel().
type PixelBuffer struct {
	Width     int
	Height    int
	PixelType PixelType
	Stride    int
	Data      []byte
}

// DimensionBounds is the per-dimension start/extent envelope of a document's
// sub-blocks.
type DimensionBounds map[Dimension]struct{ Start, Size int }

// SubBlockStatistics summarizes the sub-block directory.
type SubBlockStatistics struct {
	SubBlockCount     int
	MinMIndex         int
	MaxMIndex         int
	BoundingBox       Rect
	BoundingBoxLayer0 Rect
	DimBounds         DimensionBounds
}

func statisticsFromInterop(in capi.SubBlockStatistics) SubBlockStatistics {
	bounds := make(DimensionBounds)
	for d := int32(1); d <= capi.MaxDimensions; d++ {
		if in.DimBounds.Dims&(1<<uint(d-1)) != 0 {
			bounds[Dimension(d)] = struct{ Start, Size int }{
				Start: int(in.DimBounds.Start[d-1]),
				Size:  int(in.DimBounds.Size[d-1]),
			}
		}
	}
	return SubBlockStatistics{
		SubBlockCount:     int(in.SubBlockCount),
		MinMIndex:         int(in.MinMIndex),
		MaxMIndex:         int(in.MaxMIndex),
		BoundingBox:       rectFromInterop(in.BoundingBox),
		BoundingBoxLayer0: rectFromInterop(in.BoundingBoxLayer0),
		DimBounds:         bounds,
	}
}
