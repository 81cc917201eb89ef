package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"

	"github.com/atmikgoswami/mediaforge/internal/domain"
)

const defaultJPEGQuality = 75

type ImageCompress struct{}

func (*ImageCompress) Kind() domain.Kind { return domain.KindImageCompress }

// Apply re-encodes the image as JPEG at the requested quality.
func (*ImageCompress) Apply(_ context.Context, inputs [][]byte, p domain.Params) (*Output, error) {
	img, _, err := decodeImage(inputs[0])
	if err != nil {
		return nil, err
	}
	quality := p.Quality
	if quality == 0 {
		quality = defaultJPEGQuality
	}
	return encodeImage(img, "jpg", quality)
}

type ImageResize struct{}

func (*ImageResize) Kind() domain.Kind { return domain.KindImageResize }

func (*ImageResize) Apply(_ context.Context, inputs [][]byte, p domain.Params) (*Output, error) {
	img, format, err := decodeImage(inputs[0])
	if err != nil {
		return nil, err
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, domain.Permanent(fmt.Errorf("resize needs positive dimensions, got %dx%d", p.Width, p.Height))
	}

	if p.KeepAspect {
		img = imaging.Fit(img, p.Width, p.Height, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, p.Width, p.Height, imaging.Lanczos)
	}
	// Keep the source format so a resized PNG stays a PNG.
	return encodeImage(img, format, defaultJPEGQuality)
}

type ImageConvert struct{}

func (*ImageConvert) Kind() domain.Kind { return domain.KindImageConvert }

func (*ImageConvert) Apply(_ context.Context, inputs [][]byte, p domain.Params) (*Output, error) {
	img, _, err := decodeImage(inputs[0])
	if err != nil {
		return nil, err
	}
	target := strings.ToLower(p.TargetFormat)
	if target == "" {
		return nil, domain.Permanent(fmt.Errorf("convert needs a target format"))
	}
	return encodeImage(img, target, 95)
}

// decodeImage sniffs the payload and decodes it. Bytes that are not a
// decodable image will fail identically on every delivery.
func decodeImage(data []byte) (image.Image, string, error) {
	if mimetype.Detect(data).Is("image/webp") {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", domain.Permanent(fmt.Errorf("decode webp: %w", err))
		}
		return img, "webp", nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", domain.Permanent(fmt.Errorf("decode image: %w", err))
	}
	return img, format, nil
}

func encodeImage(img image.Image, format string, quality int) (*Output, error) {
	var buf bytes.Buffer
	switch format {
	case "jpg", "jpeg":
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode jpeg: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/jpeg", Ext: ".jpg"}, nil
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode png: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/png", Ext: ".png"}, nil
	case "gif":
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode gif: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/gif", Ext: ".gif"}, nil
	case "bmp":
		if err := imaging.Encode(&buf, img, imaging.BMP); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode bmp: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/bmp", Ext: ".bmp"}, nil
	case "tiff", "tif":
		if err := imaging.Encode(&buf, img, imaging.TIFF); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode tiff: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/tiff", Ext: ".tiff"}, nil
	case "webp":
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, domain.Permanent(fmt.Errorf("encode webp: %w", err))
		}
		return &Output{Data: buf.Bytes(), ContentType: "image/webp", Ext: ".webp"}, nil
	default:
		return nil, domain.Permanent(fmt.Errorf("unsupported image format %q", format))
	}
}
