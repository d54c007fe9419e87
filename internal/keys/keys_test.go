package keys

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fruitsalade/renditions/internal/media"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "holidayphoto_1.final-v2", Sanitize("holiday photo_1.final-v2"))
	assert.Equal(t, "..etcpasswd", Sanitize("../etc/passwd"))
	assert.Equal(t, "caf", Sanitize("café"))
}

func TestOriginalKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	key := originalKey("app1", "u42", "My Trip (1).JPEG", now, "abcd1234")
	assert.Equal(t, "media/app1/u42/originals/1700000000123-abcd1234-MyTrip1.jpeg", key)

	key = originalKey("app1", "u42", "/tmp/日本.png", now, "abcd1234")
	assert.Equal(t, "media/app1/u42/originals/1700000000123-abcd1234-file.png", key)
}

func TestOriginalKeyIsUniquePerUpload(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		k := Original("app", "u1", "same.jpg", now)
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
	assert.Regexp(t, regexp.MustCompile(`^media/app/u1/originals/\d+-[0-9a-f]{8}-same\.jpg$`), Original("app", "u1", "same.jpg", now))
}

func TestVariantKey(t *testing.T) {
	assert.Equal(t, "thumbnails/u1/m9/thumbnail_150x150.jpg",
		Variant("", "u1", "m9", "thumbnail", media.Box{Width: 150, Height: 150, Fit: media.Cover}, media.JPEG))
	assert.Equal(t, "thumbnails/u1/m9/small_320x320.jpg",
		Variant("", "u1", "m9", "small", media.Box{Width: 320, Height: 320, Fit: media.Inside}, media.JPEG))
	assert.Equal(t, "previews/u1/m9/custom_500x500.png",
		Variant("previews", "u1", "m9", media.KindCustom, media.Box{Width: 500, Height: 500, Fit: media.Cover}, media.PNG))
}

func TestCustomVariantKeyDependsOnFit(t *testing.T) {
	cover := Variant("", "u1", "m9", media.KindCustom, media.Box{Width: 500, Height: 500, Fit: media.Cover}, media.PNG)
	inside := Variant("", "u1", "m9", media.KindCustom, media.Box{Width: 500, Height: 500, Fit: media.Inside}, media.PNG)
	assert.NotEqual(t, cover, inside)
	assert.Equal(t, "thumbnails/u1/m9/custom_500x500_inside.png", inside)
}
