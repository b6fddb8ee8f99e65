// Package media resolves the images and videos attached to a session into
// the list sent with each turn.
package media

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Source says where an entry came from.
type Source string

const (
	SourceUpload Source = "upload"
	SourceEdge   Source = "edge"
)

// Type is the kind of media.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Entry is one attached image or video.
//
// DataURL holds a data: URL, a remote URL, a blob: reference to a transient
// in-process payload, or a media-cache:// placeholder for an offloaded one.
type Entry struct {
	ID       string  `json:"id"`
	Source   Source  `json:"source"`
	Type     Type    `json:"type"`
	DataURL  string  `json:"dataUrl"`
	Duration float64 `json:"duration,omitempty"`
	EdgeID   string  `json:"edgeId,omitempty"`
	NodeID   string  `json:"nodeId,omitempty"`
	FileName string  `json:"fileName,omitempty"`
}

// Clone copies a slice of entries.
func Clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	return append([]Entry(nil), entries...)
}

// Remove drops the upload entry with the given id. Edge entries follow the
// canvas and cannot be removed by the user.
func Remove(entries []Entry, id string) ([]Entry, bool) {
	for i, e := range entries {
		if e.ID == id && e.Source == SourceUpload {
			return append(entries[:i:i], entries[i+1:]...), true
		}
	}
	return entries, false
}

// IsDataURL reports whether s is an inline data: URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// EncodeDataURL builds a base64 data: URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a base64 data: URL into its MIME type and payload.
func DecodeDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url")
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mimeType, data, nil
}

// TypeOf guesses the media type from a MIME type.
func TypeOf(mimeType string) Type {
	if strings.HasPrefix(mimeType, "video/") {
		return TypeVideo
	}
	return TypeImage
}
