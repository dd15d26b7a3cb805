// Package media implements the image derivation producers the origin's
// derivation cache invokes for the image.* transform family: resizing, and an
// autofill variant that pads to an exact box instead of distorting the
// aspect ratio. Inspect reports EXIF orientation; Resize and ResizeAutofill
// do not read it and never rotate the image.
//
// Every function here is a pure transform of its input bytes and explicit
// parameters — no wall-clock, no randomness, no filesystem paths baked into
// the signatures — so that it can be driven directly by a derivation
// fingerprint's Params without a hidden side channel.
package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is an image's portrait/landscape/square classification after
// EXIF correction.
type Orientation int

const (
	OrientationUnknown Orientation = iota
	OrientationPortrait
	OrientationLandscape
	OrientationSquare
)

// Info describes a decoded image ahead of any resize.
type Info struct {
	Width           int
	Height          int
	Orientation     Orientation
	EXIFOrientation int
	Format          string
}

// Inspect decodes just enough of data to report dimensions and EXIF
// orientation, without performing a resize. data is read twice (once for
// the image header, once for EXIF), each time through its own reader.
func Inspect(data []byte) (Info, error) {
	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, err
	}

	info := Info{Width: config.Width, Height: config.Height, Format: format}
	info.Orientation = dimensionOrientation(config.Width, config.Height)

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return info, nil // no EXIF, dimension-based orientation stands
	}
	tag, err := exifData.Get(exif.Orientation)
	if err != nil {
		return info, nil
	}
	value, err := tag.Int(0)
	if err != nil {
		return info, nil
	}
	info.EXIFOrientation = value

	switch value {
	case 5, 6, 7, 8: // rotated 90°: width/height are swapped relative to storage
		info.Orientation = dimensionOrientation(config.Height, config.Width)
	default:
		info.Orientation = dimensionOrientation(config.Width, config.Height)
	}
	return info, nil
}

func dimensionOrientation(w, h int) Orientation {
	switch {
	case w > h:
		return OrientationLandscape
	case h > w:
		return OrientationPortrait
	default:
		return OrientationSquare
	}
}

// Codec selects the output encoder for Resize/ResizeAutofill. JPEGXL is
// accepted as a transform parameter for forward compatibility with the
// image.resize.jxl transform id, but encodes as JPEG at the given quality: no
// pure-Go JPEG-XL encoder was available to wire up (see DESIGN.md). The
// fingerprint and manifest format do not change when a real encoder lands —
// only the bytes Produce returns do.
type Codec int

const (
	CodecJPEG Codec = iota
	CodecPNG
	CodecJPEGXL
)

// Resize decodes data, resizes to width x height (0 maintains aspect ratio
// on that axis), and encodes with codec at the given quality (JPEG/JPEGXL
// only; ignored for PNG). Uses Lanczos3, the same high-quality resampling
// the reference encoder family standardizes on.
func Resize(data []byte, width, height int, codec Codec, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var resized image.Image
	switch {
	case width == 0 && height == 0:
		return nil, errors.New("media: width or height must be greater than 0")
	case width == 0:
		resized = resize.Resize(0, uint(height), img, resize.Lanczos3)
	case height == 0:
		resized = resize.Resize(uint(width), 0, img, resize.Lanczos3)
	default:
		resized = resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	}

	return encode(resized, codec, quality)
}

// ResizeAutofill resizes to the given height preserving aspect ratio, then
// pads to an exact forcedWidth x height box using the source's top-left
// pixel as the fill color — useful for thumbnail grids where every tile
// must be identically sized without distorting any one image.
func ResizeAutofill(data []byte, forcedWidth, height int, codec Codec, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bgColor := img.At(0, 0)
	resized := resize.Resize(0, uint(height), img, resize.Lanczos3)

	canvas := image.NewRGBA(image.Rect(0, 0, forcedWidth, height))
	fill(canvas, bgColor)

	xOffset := (forcedWidth - resized.Bounds().Dx()) / 2
	paste(canvas, resized, image.Point{X: xOffset, Y: 0})

	return encode(canvas, codec, quality)
}

func fill(dst *image.RGBA, c color.Color) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, c)
		}
	}
}

func paste(dst *image.RGBA, src image.Image, at image.Point) {
	sb := src.Bounds()
	db := dst.Bounds()
	for y := 0; y < sb.Dy(); y++ {
		for x := 0; x < sb.Dx(); x++ {
			px, py := at.X+x, at.Y+y
			if px >= 0 && px < db.Dx() && py >= 0 && py < db.Dy() {
				dst.Set(px, py, src.At(x, y))
			}
		}
	}
}

func encode(img image.Image, codec Codec, quality int) ([]byte, error) {
	if quality <= 0 {
		quality = 90
	}
	var buf bytes.Buffer
	var err error
	switch codec {
	case CodecPNG:
		err = png.Encode(&buf, img)
	case CodecJPEG, CodecJPEGXL:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	default:
		return nil, errors.New("media: unsupported codec")
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ContentType returns the MIME type Produce's bytes should be advertised as.
// CodecJPEGXL output is JPEG bytes, so it is advertised as image/jpeg.
func (c Codec) ContentType() string {
	switch c {
	case CodecPNG:
		return "image/png"
	default:
		return "image/jpeg"
	}
}
