package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/mediaerr"
)

func TestDefaultPresets(t *testing.T) {
	p := DefaultPresets()
	assert.Equal(t, []string{"large", "medium", "small", "thumbnail"}, p.Names())

	b, err := p.Lookup("thumbnail")
	require.NoError(t, err)
	assert.Equal(t, Box{Width: 150, Height: 150, Fit: Cover}, b)

	b, err = p.Lookup("small")
	require.NoError(t, err)
	assert.Equal(t, Inside, b.Fit)

	_, err = p.Lookup("poster")
	assert.ErrorIs(t, err, mediaerr.ErrUnsupportedSize)
}

func TestNewPresetTableRejectsInvalid(t *testing.T) {
	_, err := NewPresetTable(map[string]Box{"custom": {Width: 1, Height: 1, Fit: Cover}})
	assert.Error(t, err)

	_, err = NewPresetTable(map[string]Box{"tiny": {Width: 0, Height: 1, Fit: Cover}})
	assert.Error(t, err)

	_, err = NewPresetTable(map[string]Box{"tiny": {Width: 10, Height: 10}})
	assert.Error(t, err)

	_, err = NewPresetTable(map[string]Box{"tiny": {Width: 10, Height: 10, Fit: "stretch"}})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JPG")
	require.NoError(t, err)
	assert.Equal(t, JPEG, f)
	assert.Equal(t, "jpg", f.Ext())
	assert.Equal(t, "image/jpeg", f.ContentType())
	assert.False(t, f.Lossless())

	f, err = ParseFormat("png")
	require.NoError(t, err)
	assert.True(t, f.Lossless())
	assert.Equal(t, "png", f.Ext())

	_, err = ParseFormat("tga")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)
	assert.ErrorIs(t, Format("heic").Validate(), mediaerr.ErrInvalidArgument)
}

func TestClampQuality(t *testing.T) {
	assert.Equal(t, DefaultQuality, ClampQuality(0))
	assert.Equal(t, 1, ClampQuality(-5))
	assert.Equal(t, 100, ClampQuality(140))
	assert.Equal(t, 55, ClampQuality(55))
}

func TestVariantMatching(t *testing.T) {
	v := &Variant{
		Kind:      KindCustom,
		Format:    PNG,
		Width:     500,
		Height:    375,
		Available: true,
		Settings:  ProcessingSettings{Fit: Inside, TargetWidth: 500, TargetHeight: 500},
	}
	assert.True(t, v.MatchesCustom(500, 500, Inside, PNG))
	assert.False(t, v.MatchesCustom(500, 375, Inside, PNG))
	assert.False(t, v.MatchesCustom(500, 500, Cover, PNG))
	assert.False(t, v.Matches("thumbnail", PNG))

	v.Available = false
	assert.False(t, v.MatchesCustom(500, 500, Inside, PNG))
}

func TestVisibility(t *testing.T) {
	assert.Equal(t, Public, (&MediaFile{IsPublic: true}).Visibility())
	assert.Equal(t, Private, (&MediaFile{}).Visibility())
}

func TestParseVisibility(t *testing.T) {
	v, err := ParseVisibility("")
	require.NoError(t, err)
	assert.Equal(t, Private, v)

	v, err = ParseVisibility("public")
	require.NoError(t, err)
	assert.Equal(t, Public, v)

	_, err = ParseVisibility("group")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)
}
