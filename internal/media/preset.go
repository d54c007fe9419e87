package media

import (
	"fmt"
	"sort"

	"github.com/fruitsalade/renditions/internal/mediaerr"
)

// FitMode describes how a source is mapped onto a target box.
type FitMode string

const (
	// Cover crops to exactly fill the box, centered.
	Cover FitMode = "cover"
	// Inside scales down to fit within the box and never enlarges.
	Inside FitMode = "inside"
)

// ParseFitMode validates a fit mode name. The empty string selects Cover.
func ParseFitMode(s string) (FitMode, error) {
	switch FitMode(s) {
	case "", Cover:
		return Cover, nil
	case Inside:
		return Inside, nil
	default:
		return "", mediaerr.Invalid("unsupported fit mode %q", s)
	}
}

// Box is a target size with its fit mode.
type Box struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fit    FitMode `json:"fit"`
}

// PresetTable maps preset kind names to boxes. It is immutable once built.
type PresetTable struct {
	boxes map[string]Box
}

// NewPresetTable builds a table from the given entries.
func NewPresetTable(entries map[string]Box) (PresetTable, error) {
	boxes := make(map[string]Box, len(entries))
	for name, b := range entries {
		if name == "" || name == KindCustom {
			return PresetTable{}, fmt.Errorf("preset name %q is reserved", name)
		}
		if b.Width <= 0 || b.Height <= 0 {
			return PresetTable{}, fmt.Errorf("preset %s: box %dx%d must be positive", name, b.Width, b.Height)
		}
		if _, err := ParseFitMode(string(b.Fit)); err != nil || b.Fit == "" {
			return PresetTable{}, fmt.Errorf("preset %s: invalid fit mode %q", name, b.Fit)
		}
		boxes[name] = b
	}
	return PresetTable{boxes: boxes}, nil
}

// DefaultPresets returns the built-in preset table.
func DefaultPresets() PresetTable {
	t, err := NewPresetTable(map[string]Box{
		"thumbnail": {Width: 150, Height: 150, Fit: Cover},
		"small":     {Width: 320, Height: 320, Fit: Inside},
		"medium":    {Width: 800, Height: 800, Fit: Inside},
		"large":     {Width: 1600, Height: 1600, Fit: Inside},
	})
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the box for kind, or ErrUnsupportedSize.
func (t PresetTable) Lookup(kind string) (Box, error) {
	b, ok := t.boxes[kind]
	if !ok {
		return Box{}, fmt.Errorf("preset %q: %w", kind, mediaerr.ErrUnsupportedSize)
	}
	return b, nil
}

// Names returns the preset names in sorted order.
func (t PresetTable) Names() []string {
	names := make([]string, 0, len(t.boxes))
	for n := range t.boxes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of presets.
func (t PresetTable) Len() int { return len(t.boxes) }
