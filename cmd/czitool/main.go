// Command czitool inspects CZI containers: document info, metadata,
// sub-block extraction, and a self-test that exercises the whole stack
// against the in-memory backend.
package main

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-czi/czi"
	// Registers the native backend when built with the "libczi" tag.
	_ "github.com/robert-malhotra/go-czi/internal/libczi"
	"github.com/robert-malhotra/go-czi/internal/memczi"
)

var useEmulated bool

func main() {
	root := &cobra.Command{
		Use:   "czitool",
		Short: "Inspect and extract from CZI containers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if useEmulated {
				memczi.Register()
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&useEmulated, "emulated", false,
		"use the in-memory backend instead of the linked native library")

	root.AddCommand(infoCmd(), metadataCmd(), extractCmd(), selftestCmd(), versionCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Print document header, statistics and attachment directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := czi.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			hdr, err := r.FileHeader()
			if err != nil {
				return err
			}
			fmt.Printf("GUID:        %s\n", hdr.GUID)
			fmt.Printf("Version:     %d.%d\n", hdr.MajorVersion, hdr.MinorVersion)

			stats := r.Statistics()
			fmt.Printf("Sub-blocks:  %d\n", stats.SubBlockCount)
			fmt.Printf("Bounds:      (%d,%d) %dx%d\n",
				stats.BoundingBox.X, stats.BoundingBox.Y, stats.BoundingBox.W, stats.BoundingBox.H)
			if stats.MinMIndex <= stats.MaxMIndex {
				fmt.Printf("M range:     [%d, %d]\n", stats.MinMIndex, stats.MaxMIndex)
			}
			dims := make([]czi.Dimension, 0, len(stats.DimBounds))
			for d := range stats.DimBounds {
				dims = append(dims, d)
			}
			sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
			for _, d := range dims {
				b := stats.DimBounds[d]
				fmt.Printf("Dim %s:       start %d, size %d\n", d, b.Start, b.Size)
			}

			if ps, err := r.PyramidStatistics(); err == nil {
				scenes := make([]int, 0, len(ps.Scenes))
				for s := range ps.Scenes {
					scenes = append(scenes, s)
				}
				sort.Ints(scenes)
				for _, s := range scenes {
					for _, layer := range ps.Scenes[s] {
						fmt.Printf("Scene %d layer %d: %d sub-blocks\n", s, layer.PyramidLayerNo, layer.Count)
					}
				}
			}

			n, err := r.AttachmentCount()
			if err != nil {
				return err
			}
			for i := 0; i < n; i++ {
				info, err := r.AttachmentInfo(i)
				if err != nil {
					return err
				}
				fmt.Printf("Attachment %d: %q (%s)\n", i, info.Name, info.ContentFileType)
			}
			return nil
		},
	}
}

func metadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metadata <file>",
		Short: "Print the document XML metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := czi.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer r.Close()
			md, err := r.Metadata()
			if err != nil {
				return err
			}
			fmt.Println(md.XML())
			return nil
		},
	}
}

func extractCmd() *cobra.Command {
	var index int
	var out string
	var decode bool
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract one sub-block payload to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := czi.OpenFile(args[0])
			if err != nil {
				return err
			}
			defer r.Close()

			var data []byte
			if decode {
				buf, err := r.DecodeSubBlock(index)
				if err != nil {
					return err
				}
				data = buf.Data
				fmt.Printf("Decoded %dx%d %s, %d bytes\n", buf.Width, buf.Height, buf.PixelType, len(data))
			} else {
				if data, err = r.RawSubBlockData(index); err != nil {
					return err
				}
				fmt.Printf("Stored payload, %d bytes\n", len(data))
			}
			return os.WriteFile(out, data, 0o644)
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "sub-block index")
	cmd.Flags().StringVar(&out, "out", "subblock.bin", "output path")
	cmd.Flags().BoolVar(&decode, "decode", false, "decompress to raw pixels")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the backing library version",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := czi.NativeVersion()
			if err != nil {
				return err
			}
			fmt.Printf("libCZI %d.%d.%d\n", v.Major, v.Minor, v.Patch)
			if bi, err := czi.NativeBuildInformation(); err == nil && bi.CompilerIdentification != "" {
				fmt.Printf("built with %s\n", bi.CompilerIdentification)
			}
			return nil
		},
	}
}

// growBuffer is an in-memory write target for the self-test.
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

func selftestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Write and re-read a document through the in-memory backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib := memczi.New()

			buf := &growBuffer{}
			out, err := czi.NewOutputStream(buf, czi.WithBackend(lib))
			if err != nil {
				return err
			}
			w, err := czi.NewWriter(out)
			if err != nil {
				out.Close()
				return err
			}
			pixels := make([]byte, 16*16)
			for i := range pixels {
				pixels[i] = byte(i)
			}
			if err := w.AddSubBlock(czi.SubBlockDescriptor{
				Width: 16, Height: 16, PixelType: czi.PixelGray8,
			}, pixels); err != nil {
				w.Close()
				return err
			}
			if err := w.WriteMetadata("<ImageDocument/>"); err != nil {
				w.Close()
				return err
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Printf("wrote document: %d bytes\n", len(buf.buf))

			in, err := czi.NewInputStream(bytes.NewReader(buf.buf), czi.WithBackend(lib))
			if err != nil {
				return err
			}
			r, err := czi.Open(in)
			if err != nil {
				in.Close()
				return err
			}
			decoded, err := r.DecodeSubBlock(0)
			if err != nil {
				r.Close()
				return err
			}
			if !bytes.Equal(decoded.Data, pixels) {
				r.Close()
				return fmt.Errorf("pixel mismatch after round trip")
			}
			if err := r.Close(); err != nil {
				return err
			}

			created, released, doubles := lib.Stats()
			fmt.Printf("handles: %d created, %d released, %d double releases, %d live\n",
				created, released, doubles, lib.LiveHandles())
			if lib.LiveHandles() != 0 || doubles != 0 {
				return fmt.Errorf("handle accounting failed")
			}
			fmt.Println("selftest passed")
			return nil
		},
	}
}
