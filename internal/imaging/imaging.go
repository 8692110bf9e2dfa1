// Package imaging re-encodes and resizes images for upload and display.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Output formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
)

// DefaultFormat is the format images are normalized to unless told otherwise.
const DefaultFormat = FormatPNG

const jpegQuality = 90

// Options control Normalize.
type Options struct {
	// Format is the target encoding; empty means DefaultFormat.
	Format string
	// KeepAlpha leaves the alpha channel untouched.
	KeepAlpha bool
}

// CanonicalFormat maps aliases such as "jpg" and "tif" onto a supported
// format name. It returns "" for formats that cannot be encoded.
func CanonicalFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPEG
	case "gif":
		return FormatGIF
	case "bmp":
		return FormatBMP
	case "tif", "tiff":
		return FormatTIFF
	}
	return ""
}

// Normalize decodes data, drops the alpha channel unless KeepAlpha is set,
// and re-encodes it in the requested format. It returns the encoded bytes
// and the canonical format name.
func Normalize(data []byte, opts Options) ([]byte, string, error) {
	format := CanonicalFormat(opts.Format)
	if format == "" {
		return nil, "", fmt.Errorf("unsupported output format %q", opts.Format)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if !opts.KeepAlpha {
		img = removeAlpha(img)
	}

	out, err := encode(img, format)
	if err != nil {
		return nil, "", err
	}
	return out, format, nil
}

// removeAlpha copies the colour channels as stored and forces every pixel
// opaque.
func removeAlpha(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(&buf, img)
	case FormatJPEG:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality})
	case FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case FormatBMP:
		err = bmp.Encode(&buf, img)
	case FormatTIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

// Fit scales img down to fit within maxW x maxH, keeping its aspect ratio.
// Images that already fit are returned unchanged.
func Fit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Downscale decodes data, fits it within maxW x maxH and encodes it as PNG.
func Downscale(data []byte, maxW, maxH int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return encode(Fit(img, maxW, maxH), FormatPNG)
}

// DownscaleBase64 is Downscale over standard base64 text.
func DownscaleBase64(payload string, maxW, maxH int) (string, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 image: %w", err)
	}
	out, err := Downscale(data, maxW, maxH)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}
