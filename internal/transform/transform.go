// Package transform decodes originals, applies EXIF orientation and a fit
// box, and encodes the result.
package transform

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fruitsalade/renditions/internal/media"
)

// PNGCompression is the fixed effort level used for the lossless format.
const PNGCompression = png.BestCompression

// Source is a decoded original, already rotated upright.
type Source struct {
	Image       image.Image
	Width       int
	Height      int
	Orientation int
	Format      string
}

// Decode decodes data and applies its EXIF orientation.
func Decode(data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	orientation := Orientation(data)

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	img = applyOrientation(img, orientation)

	b := img.Bounds()
	return &Source{
		Image:       img,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Orientation: orientation,
		Format:      format,
	}, nil
}

// Info describes an original without decoding its pixels.
type Info struct {
	Width       int
	Height      int
	Orientation int
	ContentType string
}

// Probe reads the upright dimensions and content type of data.
func Probe(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image config: %w", err)
	}
	info := &Info{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Orientation: Orientation(data),
		ContentType: "image/" + format,
	}
	if swapsAxes(info.Orientation) {
		info.Width, info.Height = info.Height, info.Width
	}
	return info, nil
}

// Fit maps img onto box. Cover crops to exactly the box, centered. Inside
// scales down preserving aspect ratio and returns img unchanged when it
// already fits.
func Fit(img image.Image, box media.Box) (image.Image, error) {
	if box.Width <= 0 || box.Height <= 0 {
		return nil, fmt.Errorf("invalid box %dx%d", box.Width, box.Height)
	}
	switch box.Fit {
	case media.Cover:
		return imaging.Fill(img, box.Width, box.Height, imaging.Center, imaging.Lanczos), nil
	case media.Inside:
		b := img.Bounds()
		if b.Dx() <= box.Width && b.Dy() <= box.Height {
			return img, nil
		}
		return imaging.Fit(img, box.Width, box.Height, imaging.Lanczos), nil
	default:
		return nil, fmt.Errorf("unsupported fit mode %q", box.Fit)
	}
}

// Encode encodes img in format. quality applies to lossy formats only.
func Encode(img image.Image, format media.Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case media.JPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: media.ClampQuality(quality)}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case media.PNG:
		enc := png.Encoder{CompressionLevel: PNGCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return buf.Bytes(), nil
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
