// Package blobs holds what the blob store backends share: key naming and
// the URL-to-id rule for backends that address blobs by bare id.
package blobs

import (
	"car-management/core"
	"path"
	"strings"

	"github.com/oklog/ulid/v2"
)

var extensions = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
	"image/heic":    ".heic",
	"image/tiff":    ".tiff",
}

// Extension picks a file extension for an upload, preferring the content
// type over the client-supplied filename.
func Extension(file core.Upload) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(file.ContentType, ";", 2)[0]))
	if ext, ok := extensions[ct]; ok {
		return ext
	}
	if ext := strings.ToLower(path.Ext(file.Filename)); ValidID(strings.TrimPrefix(ext, ".")) {
		return ext
	}
	return ".img"
}

// NewID returns a fresh blob id.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// ValidID reports whether id is usable as a single path segment.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\*?[]`) && !strings.ContainsRune(id, 0)
}

// PublicID derives a blob id from its URL: the last path segment up to
// its first dot, so ".../media/01hx.jpg?x=1" yields "01hx".
func PublicID(url string) (string, error) {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	segment := url[strings.LastIndex(url, "/")+1:]
	id, _, _ := strings.Cut(segment, ".")
	if !ValidID(id) {
		return "", core.InvalidArgumentf("cannot derive blob id from %q", url)
	}
	return id, nil
}
