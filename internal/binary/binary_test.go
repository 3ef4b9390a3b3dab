package binary

import (
	"bytes"
	"io"
	"testing"
)

// writerAtBuffer is a minimal growable io.WriterAt over a byte slice.
type writerAtBuffer struct {
	buf []byte
}

func (b *writerAtBuffer) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if int64(len(b.buf)) < end {
		grown := make([]byte, end)
		copy(grown, b.buf)
		b.buf = grown
	}
	copy(b.buf[off:], p)
	return len(p), nil
}

func TestRoundTrip(t *testing.T) {
	sink := &writerAtBuffer{}
	w := NewWriter(sink)

	guid := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if err := w.WriteUint32(0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint64(1 << 40); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteInt32(-42); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBool(true); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteGUID(guid); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("scene statistics"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBlob(nil); err != nil {
		t.Fatal(err)
	}

	r := NewReader(bytes.NewReader(sink.buf))
	if v, err := r.ReadUint32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("ReadUint32 = %x, %v", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 1<<40 {
		t.Fatalf("ReadUint64 = %d, %v", v, err)
	}
	if v, err := r.ReadInt32(); err != nil || v != -42 {
		t.Fatalf("ReadInt32 = %d, %v", v, err)
	}
	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
	if g, err := r.ReadGUID(); err != nil || g != guid {
		t.Fatalf("ReadGUID = %v, %v", g, err)
	}
	if s, err := r.ReadString(); err != nil || s != "scene statistics" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if b, err := r.ReadBlob(); err != nil || len(b) != 0 {
		t.Fatalf("ReadBlob = %v, %v", b, err)
	}
	if want := int64(len(sink.buf)); r.Pos() != want {
		t.Fatalf("Pos = %d, want %d", r.Pos(), want)
	}
}

func TestPositionedRewrite(t *testing.T) {
	sink := &writerAtBuffer{}
	w := NewWriter(sink)

	// Provisional header, then payload, then rewrite the header in place.
	if err := w.WriteUint64(0); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("payload"); err != nil {
		t.Fatal(err)
	}
	if err := w.At(0).WriteUint64(12345); err != nil {
		t.Fatal(err)
	}

	r := NewReader(bytes.NewReader(sink.buf))
	if v, err := r.ReadUint64(); err != nil || v != 12345 {
		t.Fatalf("header after rewrite = %d, %v", v, err)
	}
	if s, err := r.ReadString(); err != nil || s != "payload" {
		t.Fatalf("payload = %q, %v", s, err)
	}
}

func TestReaderAtAndSkip(t *testing.T) {
	data := []byte{0, 0, 0, 0, 0x2A, 0, 0, 0}
	r := NewReader(bytes.NewReader(data))
	if v, err := r.At(4).ReadUint32(); err != nil || v != 0x2A {
		t.Fatalf("At(4).ReadUint32 = %d, %v", v, err)
	}
	r.Skip(4)
	if v, err := r.ReadUint32(); err != nil || v != 0x2A {
		t.Fatalf("Skip+ReadUint32 = %d, %v", v, err)
	}
}

func TestReadPastEnd(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	if _, err := r.ReadUint32(); err == nil {
		t.Fatal("expected error reading past end")
	}
	r2 := NewReader(bytes.NewReader(nil))
	if _, err := r2.ReadBytes(1); err != io.EOF && err != io.ErrUnexpectedEOF {
		t.Fatalf("unexpected error: %v", err)
	}
}
