// Package core provides the shared model types for visual-diff.
package core

import (
	"encoding/base64"
	"fmt"
)

// ImageKind identifies which of the three screenshot directories an image lives in.
type ImageKind string

// Image kinds
const (
	KindBase    ImageKind = "base"    // Accepted reference image
	KindCurrent ImageKind = "current" // Image captured by this run
	KindDiff    ImageKind = "diff"    // Visualization of mismatching pixels
)

// Kinds lists every image kind in display order.
var Kinds = []ImageKind{KindBase, KindCurrent, KindDiff}

// Valid returns true for base, current and diff.
func (k ImageKind) Valid() bool {
	switch k {
	case KindBase, KindCurrent, KindDiff:
		return true
	}
	return false
}

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeJSON = "application/json"
)

// ImageExt is the file extension of every stored screenshot.
const ImageExt = ".png"

// Attachment is an image payload attached to a report entry
type Attachment struct {
	Name        string    `json:"name"`        // Screenshot name
	Kind        ImageKind `json:"kind"`        // base, current or diff
	ContentType string    `json:"contentType"` // MIME type
	Path        string    `json:"path"`        // File path on disk
	Body        []byte    `json:"-"`           // In-memory content (not serialized to JSON)
}

// NewImageAttachment creates a PNG attachment of the given kind
func NewImageAttachment(name string, kind ImageKind, path string, data []byte) Attachment {
	return Attachment{
		Name:        name,
		Kind:        kind,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// DataURL returns the attachment body as a base64 data URL, or "" when empty.
func (a Attachment) DataURL() string {
	return DataURL(a.ContentType, a.Body)
}

// DataURL encodes data as a data URL of the given content type.
func DataURL(contentType string, data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if contentType == "" {
		contentType = ContentTypePNG
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(data))
}
