// Package keys builds storage keys for originals and derived variants.
package keys

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fruitsalade/renditions/internal/media"
)

// DefaultNamespace is the key prefix for preset and custom variants.
const DefaultNamespace = "thumbnails"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Sanitize strips every character outside [A-Za-z0-9._-].
func Sanitize(name string) string {
	return unsafeChars.ReplaceAllString(name, "")
}

// ShortID returns an 8 character random token.
func ShortID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:4])
}

// Original returns the key of an uploaded original:
//
//	media/{appID}/{userID}/originals/{unixMillis}-{shortID}-{base}{ext}
//
// The timestamp and random token keep concurrent uploads of the same file
// name by one user apart.
func Original(appID, userID, fileName string, now time.Time) string {
	return originalKey(appID, userID, fileName, now, ShortID())
}

func originalKey(appID, userID, fileName string, now time.Time, token string) string {
	base := filepath.Base(fileName)
	ext := strings.ToLower(filepath.Ext(base))
	base = Sanitize(strings.TrimSuffix(base, filepath.Ext(base)))
	ext = Sanitize(ext)
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("media/%s/%s/originals/%d-%s-%s%s",
		Sanitize(appID), Sanitize(userID), now.UnixMilli(), token, base, ext)
}

// Variant returns the key of a derived variant:
//
//	{namespace}/{userID}/{mediaID}/{kind}_{width}x{height}.{ext}
//
// width and height are the requested box, not the encoded output size.
// Custom variants fitted inside the box get an "_inside" suffix, so the two
// fits of one custom box never share an object.
func Variant(namespace, userID, mediaID, kind string, box media.Box, format media.Format) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	suffix := ""
	if kind == media.KindCustom && box.Fit == media.Inside {
		suffix = "_" + string(media.Inside)
	}
	return fmt.Sprintf("%s/%s/%s/%s_%dx%d%s.%s",
		namespace, Sanitize(userID), Sanitize(mediaID), Sanitize(kind), box.Width, box.Height, suffix, format.Ext())
}
