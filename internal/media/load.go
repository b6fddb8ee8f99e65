package media

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MaxImageSize is the maximum allowed image upload (5MB)
	MaxImageSize = 5 * 1024 * 1024
	// MaxVideoSize is the maximum allowed video upload (50MB)
	MaxVideoSize = 50 * 1024 * 1024
)

// SupportedTypes maps file extensions to MIME types
var SupportedTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
}

// IsMediaFile returns true if the file extension indicates a supported format
func IsMediaFile(path string) bool {
	_, ok := SupportedTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// LoadFile reads a user upload from disk into blobs and returns an upload
// entry referencing it.
func LoadFile(path string, blobs *BlobStore) (Entry, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fmt.Errorf("file not found: %s", path)
		}
		return Entry{}, fmt.Errorf("cannot access file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	mimeType, ok := SupportedTypes[ext]
	if !ok {
		return Entry{}, fmt.Errorf("unsupported media format: %s", ext)
	}
	kind := TypeOf(mimeType)

	limit := int64(MaxImageSize)
	if kind == TypeVideo {
		limit = MaxVideoSize
	}
	if info.Size() > limit {
		return Entry{}, fmt.Errorf("%s too large: %s (max %s)", kind, FormatBytes(int(info.Size())), FormatBytes(int(limit)))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read file: %w", err)
	}

	// Verify images by content; containers like .mov are not reliably sniffed.
	if kind == TypeImage && !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return Entry{}, fmt.Errorf("file is not a valid image")
	}

	return Entry{
		ID:       uuid.NewString(),
		Source:   SourceUpload,
		Type:     kind,
		DataURL:  blobs.Register(mimeType, data),
		FileName: filepath.Base(absPath),
	}, nil
}

// FormatBytes formats byte size as human-readable string
func FormatBytes(bytes int) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
