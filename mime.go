package relay

import (
	"mime"
	"path/filepath"
)

const defaultContentType = "text/plain"

// AddExtensionType allows you to add an custom
// file extension e.g. `.test` and the associated
// Content-Type with the extension for example `text/plain`.
func AddExtensionType(ext string, typ string) error {
	return mime.AddExtensionType(ext, typ)
}

// contentType returns the configured content type. Iff none is
// configured the official mime-type for the extension of filename
// is used and text/plain if even that is unknown.
func contentType(filename, configured string) string {
	if configured != "" {
		return configured
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return defaultContentType
}
