package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/yanmxa/genmotion/internal/log"
)

const (
	// LargePayloadThreshold is the data URL length above which a payload is
	// moved into the cache before the session is persisted.
	LargePayloadThreshold = 100 * 1024

	placeholderPrefix = "media-cache://"
)

// IsPlaceholder reports whether s points into the media cache.
func IsPlaceholder(s string) bool {
	return strings.HasPrefix(s, placeholderPrefix)
}

// Placeholder returns the cache placeholder for an entry id.
func Placeholder(id string) string {
	return placeholderPrefix + id
}

// Offload prepares entries for persistence. Blob references are inlined,
// since they do not survive the process, and data URLs over the threshold
// are moved into the cache behind a placeholder. Entries whose blob was
// already revoked are dropped.
func Offload(ctx context.Context, cache *Cache, blobs *BlobStore, entries []Entry) ([]Entry, error) {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if IsBlobRef(e.DataURL) {
			if blobs == nil {
				continue
			}
			dataURL, err := blobs.DataURL(e.DataURL)
			if err != nil {
				log.Logger().Warn("dropping media with revoked blob", zap.String("id", e.ID), zap.Error(err))
				continue
			}
			e.DataURL = dataURL
		}
		if IsDataURL(e.DataURL) && len(e.DataURL) > LargePayloadThreshold {
			if err := cache.Set(ctx, e.ID, e.DataURL); err != nil {
				return nil, fmt.Errorf("offload media %s: %w", e.ID, err)
			}
			e.DataURL = Placeholder(e.ID)
		}
		out = append(out, e)
	}
	return out, nil
}

// Resolve produces the list sent with a turn: placeholders are restored
// from the cache and blob references are inlined, each reference converted
// once per call. Entries whose payload is gone are dropped and logged.
func Resolve(ctx context.Context, cache *Cache, blobs *BlobStore, entries []Entry) ([]Entry, error) {
	converted := make(map[string]string)
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		switch {
		case IsPlaceholder(e.DataURL):
			data, err := cache.Get(ctx, strings.TrimPrefix(e.DataURL, placeholderPrefix))
			if errors.Is(err, ErrNotCached) {
				log.Logger().Warn("dropping media missing from cache", zap.String("id", e.ID))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("resolve media %s: %w", e.ID, err)
			}
			e.DataURL = data
		case IsBlobRef(e.DataURL):
			ref := e.DataURL
			data, ok := converted[ref]
			if !ok {
				var err error
				if blobs != nil {
					data, err = blobs.DataURL(ref)
				} else {
					err = fmt.Errorf("no blob store")
				}
				if err != nil {
					log.Logger().Warn("dropping media with revoked blob", zap.String("id", e.ID), zap.Error(err))
					continue
				}
				converted[ref] = data
			}
			e.DataURL = data
		}
		out = append(out, e)
	}
	return out, nil
}

// Release frees what an entry holds outside the session: its cached
// payload and its blob reference.
func Release(ctx context.Context, cache *Cache, blobs *BlobStore, e Entry) {
	if IsPlaceholder(e.DataURL) && cache != nil {
		if err := cache.Delete(ctx, e.ID); err != nil {
			log.Logger().Warn("failed to delete cached media", zap.String("id", e.ID), zap.Error(err))
		}
	}
	if IsBlobRef(e.DataURL) && blobs != nil {
		blobs.Revoke(e.DataURL)
	}
}
