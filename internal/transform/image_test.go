package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/atmikgoswami/mediaforge/internal/domain"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestImageCompressProducesJPEG(t *testing.T) {
	out, err := (&ImageCompress{}).Apply(context.Background(), [][]byte{pngFixture(t, 32, 32)},
		domain.Params{Quality: 60})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.ContentType != "image/jpeg" || out.Ext != ".jpg" {
		t.Errorf("output = %s %s", out.ContentType, out.Ext)
	}
	if _, format, err := image.Decode(bytes.NewReader(out.Data)); err != nil || format != "jpeg" {
		t.Errorf("decoded format = %q, err = %v", format, err)
	}
}

func TestImageResizeKeepAspect(t *testing.T) {
	// 64x32 fit into a 20x20 box keeps the 2:1 ratio.
	out, err := (&ImageResize{}).Apply(context.Background(), [][]byte{pngFixture(t, 64, 32)},
		domain.Params{Width: 20, Height: 20, KeepAspect: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	w, h := decodeDims(t, out.Data)
	if w != 20 || h != 10 {
		t.Errorf("dimensions = %dx%d, want 20x10", w, h)
	}
	if out.ContentType != "image/png" {
		t.Errorf("resize must keep source format, got %s", out.ContentType)
	}
}

func TestImageResizeExact(t *testing.T) {
	out, err := (&ImageResize{}).Apply(context.Background(), [][]byte{pngFixture(t, 64, 32)},
		domain.Params{Width: 20, Height: 20, KeepAspect: false})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	w, h := decodeDims(t, out.Data)
	if w != 20 || h != 20 {
		t.Errorf("dimensions = %dx%d, want 20x20", w, h)
	}
}

func TestImageResizeRejectsBadDimensions(t *testing.T) {
	_, err := (&ImageResize{}).Apply(context.Background(), [][]byte{pngFixture(t, 8, 8)},
		domain.Params{Width: 0, Height: 20})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.FailurePermanent {
		t.Errorf("class = %v", domain.ClassOf(err))
	}
}

func TestImageConvertToJPEG(t *testing.T) {
	out, err := (&ImageConvert{}).Apply(context.Background(), [][]byte{pngFixture(t, 16, 16)},
		domain.Params{TargetFormat: "jpeg"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if out.ContentType != "image/jpeg" {
		t.Errorf("content type = %s", out.ContentType)
	}
}

func TestImageConvertUnsupportedTarget(t *testing.T) {
	_, err := (&ImageConvert{}).Apply(context.Background(), [][]byte{pngFixture(t, 16, 16)},
		domain.Params{TargetFormat: "heic"})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.FailurePermanent {
		t.Errorf("class = %v", domain.ClassOf(err))
	}
}

func TestDecodeGarbageIsPermanent(t *testing.T) {
	_, err := (&ImageCompress{}).Apply(context.Background(), [][]byte{[]byte("not an image")},
		domain.Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if domain.ClassOf(err) != domain.FailurePermanent {
		t.Errorf("garbage input must classify permanent, got %v", domain.ClassOf(err))
	}
}

func TestRegistryCoversAllKinds(t *testing.T) {
	reg := NewRegistry()
	kinds := []domain.Kind{
		domain.KindImageCompress, domain.KindImageResize, domain.KindImageConvert,
		domain.KindPDFCompress, domain.KindPDFMerge, domain.KindPDFExtract,
	}
	for _, k := range kinds {
		tr, ok := reg.Lookup(k)
		if !ok {
			t.Errorf("no transformer registered for %s", k)
			continue
		}
		if tr.Kind() != k {
			t.Errorf("transformer for %s reports %s", k, tr.Kind())
		}
	}
	if _, ok := reg.Lookup(domain.Kind("image-sharpen")); ok {
		t.Error("lookup of unknown kind must fail")
	}
}
