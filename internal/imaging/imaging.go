package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 2048

// MaxBytes is the largest accepted upload per image.
const MaxBytes = 8 << 20

// JPEGQuality is the compression quality for re-encoded JPEGs.
const JPEGQuality = 85

// formats maps the sniffed MIME type to the extension stored on disk.
var formats = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// Result contains the normalized image.
type Result struct {
	Data []byte
	MIME string
	Ext  string
}

// Normalize reads an uploaded image, validates the format by sniffing bytes,
// and downscales it if it is larger than MaxDimension. The output keeps the
// input's format; images that need no resizing are returned byte-for-byte.
func Normalize(r io.Reader) (*Result, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}
	if len(data) > MaxBytes {
		return nil, fmt.Errorf("image larger than %s", humanize.IBytes(MaxBytes))
	}

	// Sniff the actual MIME type instead of trusting client headers.
	mime := http.DetectContentType(data)
	ext, ok := formats[mime]
	if !ok {
		return nil, fmt.Errorf("unsupported image format: %s (only JPEG and PNG accepted)", mime)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := img.Bounds()
	if b.Dx() <= MaxDimension && b.Dy() <= MaxDimension {
		return &Result{Data: data, MIME: mime, Ext: ext}, nil
	}

	img = downscale(img, MaxDimension)

	var buf bytes.Buffer
	switch mime {
	case "image/png":
		err = png.Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", mime, err)
	}

	return &Result{Data: buf.Bytes(), MIME: mime, Ext: ext}, nil
}

// MIMEFromExt returns the content type for a stored extension.
func MIMEFromExt(ext string) string {
	for mime, e := range formats {
		if e == ext {
			return mime
		}
	}
	if ext == ".jpeg" {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

// downscale resizes the image so neither dimension exceeds maxDim,
// preserving aspect ratio. Uses Catmull-Rom interpolation.
func downscale(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
