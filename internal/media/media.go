// Package media holds the records the variant pipeline reads and produces:
// uploaded originals, derived variants and the preset table.
package media

import (
	"time"

	"github.com/fruitsalade/renditions/internal/mediaerr"
)

// Visibility controls whether stored objects are served through public or signed URLs.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// VisibilityFor maps the MediaFile public flag to a visibility class.
func VisibilityFor(isPublic bool) Visibility {
	if isPublic {
		return Public
	}
	return Private
}

// ParseVisibility validates a visibility name. The empty string selects Private.
func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case "", Private:
		return Private, nil
	case Public:
		return Public, nil
	default:
		return "", mediaerr.Invalid("unsupported visibility %q", s)
	}
}

// KindCustom is the kind recorded for variants produced by custom requests.
const KindCustom = "custom"

// MediaFile is an uploaded original. The pipeline never mutates it.
type MediaFile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	StorageKey  string    `json:"storage_key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	IsPublic    bool      `json:"is_public"`
	CreatedAt   time.Time `json:"created_at"`
}

// Visibility returns the visibility class of the media file.
func (m *MediaFile) Visibility() Visibility {
	return VisibilityFor(m.IsPublic)
}

// ProcessingSettings records the exact transform that produced a variant.
type ProcessingSettings struct {
	SourceWidth  int       `json:"source_width"`
	SourceHeight int       `json:"source_height"`
	Orientation  int       `json:"orientation"`
	Fit          FitMode   `json:"fit"`
	TargetWidth  int       `json:"target_width"`
	TargetHeight int       `json:"target_height"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Variant is one derived rendition of a MediaFile.
//
// Width and Height are the dimensions of the encoded output, which may be
// smaller than the requested box for the inside fit mode. Quality is nil for
// lossless formats. URL and SignedURL are resolved when the variant is served
// and are not persisted.
type Variant struct {
	ID         string             `json:"id"`
	MediaID    string             `json:"media_id"`
	StorageKey string             `json:"storage_key"`
	Kind       string             `json:"kind"`
	Format     Format             `json:"format"`
	Width      int                `json:"width"`
	Height     int                `json:"height"`
	Size       int64              `json:"size"`
	Quality    *int               `json:"quality,omitempty"`
	Settings   ProcessingSettings `json:"processing_settings"`
	Visibility Visibility         `json:"visibility"`
	Available  bool               `json:"available"`
	CreatedAt  time.Time          `json:"created_at"`

	URL       string `json:"url,omitempty"`
	SignedURL string `json:"signed_url,omitempty"`
}

// Matches reports whether the variant is a servable rendition of kind in format.
func (v *Variant) Matches(kind string, format Format) bool {
	return v.Available && v.Kind == kind && v.Format == format
}

// MatchesCustom reports whether the variant is a servable custom rendition
// produced for the requested box, fit and format.
func (v *Variant) MatchesCustom(width, height int, fit FitMode, format Format) bool {
	return v.Available &&
		v.Kind == KindCustom &&
		v.Format == format &&
		v.Settings.Fit == fit &&
		v.Settings.TargetWidth == width &&
		v.Settings.TargetHeight == height
}
