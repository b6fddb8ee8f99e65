package media

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const blobPrefix = "blob:"

// IsBlobRef reports whether s is a transient blob reference.
func IsBlobRef(s string) bool {
	return strings.HasPrefix(s, blobPrefix)
}

type blob struct {
	mimeType string
	data     []byte
}

// BlobStore holds transient in-process payloads behind blob: references.
// References are only valid for the lifetime of the process and are never
// persisted or sent as-is.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewBlobStore creates an empty blob registry.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]blob)}
}

// Register stores data and returns its blob: reference.
func (s *BlobStore) Register(mimeType string, data []byte) string {
	ref := blobPrefix + uuid.NewString()
	s.mu.Lock()
	s.blobs[ref] = blob{mimeType: mimeType, data: data}
	s.mu.Unlock()
	return ref
}

// Revoke releases a reference. Unknown references are ignored.
func (s *BlobStore) Revoke(ref string) {
	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()
}

// Open returns the payload behind ref.
func (s *BlobStore) Open(ref string) (string, []byte, error) {
	s.mu.RLock()
	b, ok := s.blobs[ref]
	s.mu.RUnlock()
	if !ok {
		return "", nil, fmt.Errorf("blob %s has been revoked", ref)
	}
	return b.mimeType, b.data, nil
}

// DataURL converts ref to an inline data: URL.
func (s *BlobStore) DataURL(ref string) (string, error) {
	mimeType, data, err := s.Open(ref)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(mimeType, data), nil
}

// Len returns the number of live references.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
