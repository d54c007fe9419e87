package media

import (
	"fmt"
	"strings"

	"github.com/fruitsalade/renditions/internal/mediaerr"
)

// Format is an encoded output format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

// DefaultQuality is the encode quality used when a request does not set one.
const DefaultQuality = 80

// Formats is the supported output format set.
var Formats = []Format{JPEG, PNG}

// ParseFormat normalizes a format name. "jpg" is accepted as an alias of jpeg.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	default:
		return "", mediaerr.Invalid("unsupported format %q", s)
	}
}

// Lossless reports whether the format ignores the quality setting.
func (f Format) Lossless() bool {
	return f == PNG
}

// Ext returns the canonical file extension without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// ClampQuality returns q limited to [1,100], or DefaultQuality when q is zero.
func ClampQuality(q int) int {
	switch {
	case q == 0:
		return DefaultQuality
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}

func (f Format) String() string { return string(f) }

// Validate returns an error unless f is in the supported set.
func (f Format) Validate() error {
	for _, s := range Formats {
		if f == s {
			return nil
		}
	}
	return fmt.Errorf("format %q: %w", string(f), mediaerr.ErrInvalidArgument)
}
