package transform

import (
	"bytes"

	"github.com/rwcarlsen/goexif/exif"
)

// Orientation reads the EXIF orientation tag of data. Images without EXIF,
// or with an out-of-range value, report 1 (upright).
func Orientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// No EXIF data is not an error
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// swapsAxes reports whether orientation o rotates the image by 90 degrees.
func swapsAxes(o int) bool {
	return o >= 5 && o <= 8
}
