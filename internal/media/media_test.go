package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yanmxa/genmotion/internal/canvas"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func largeDataURL() string {
	return "data:image/png;base64," + strings.Repeat("A", LargePayloadThreshold+1)
}

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer backend.Close()

	c := NewCache(backend)
	if err := c.Set(ctx, "m1", "payload"); err != nil {
		t.Fatal(err)
	}

	// A fresh cache over the same backend reads through and hydrates.
	fresh := NewCache(backend)
	if fresh.Len() != 0 {
		t.Fatal("fresh cache should start empty")
	}
	got, err := fresh.Get(ctx, "m1")
	if err != nil || got != "payload" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	hydrated := NewCache(backend)
	if err := hydrated.Hydrate(ctx); err != nil {
		t.Fatal(err)
	}
	if hydrated.Len() != 1 {
		t.Errorf("Hydrate loaded %d entries, want 1", hydrated.Len())
	}

	if err := c.Delete(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewCache(backend).Get(ctx, "m1"); !errors.Is(err, ErrNotCached) {
		t.Errorf("expected ErrNotCached after delete, got %v", err)
	}
}

func TestOffloadAndResolve(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil)
	blobs := NewBlobStore()
	big := largeDataURL()

	ref := blobs.Register("image/png", pngHeader)
	entries := []Entry{
		{ID: "small", Source: SourceUpload, Type: TypeImage, DataURL: "data:image/png;base64,AAAA"},
		{ID: "big", Source: SourceUpload, Type: TypeImage, DataURL: big},
		{ID: "remote", Source: SourceEdge, Type: TypeVideo, DataURL: "https://x/v.mp4", EdgeID: "e1"},
		{ID: "blob", Source: SourceUpload, Type: TypeImage, DataURL: ref},
	}

	persisted, err := Offload(ctx, cache, blobs, entries)
	if err != nil {
		t.Fatal(err)
	}
	if persisted[1].DataURL != Placeholder("big") {
		t.Errorf("large payload not offloaded: %.40s", persisted[1].DataURL)
	}
	if persisted[0].DataURL != entries[0].DataURL || persisted[2].DataURL != entries[2].DataURL {
		t.Error("small and remote entries must be kept as-is")
	}
	if IsBlobRef(persisted[3].DataURL) {
		t.Error("blob references must never be persisted")
	}
	if entries[1].DataURL != big {
		t.Error("Offload must not mutate its input")
	}

	sent, err := Resolve(ctx, cache, blobs, persisted)
	if err != nil {
		t.Fatal(err)
	}
	if sent[1].DataURL != big {
		t.Error("placeholder not restored before send")
	}
	for _, e := range sent {
		if IsPlaceholder(e.DataURL) || IsBlobRef(e.DataURL) {
			t.Errorf("entry %s not transmission safe: %.40s", e.ID, e.DataURL)
		}
	}
}

func TestResolveConvertsBlobOncePerSend(t *testing.T) {
	ctx := context.Background()
	blobs := NewBlobStore()
	ref := blobs.Register("image/png", pngHeader)
	entries := []Entry{
		{ID: "a", DataURL: ref},
		{ID: "b", DataURL: ref},
	}

	sent, err := Resolve(ctx, NewCache(nil), blobs, entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 2 || sent[0].DataURL != sent[1].DataURL || !IsDataURL(sent[0].DataURL) {
		t.Fatalf("unexpected resolution %+v", sent)
	}
	if entries[0].DataURL != ref {
		t.Error("Resolve must not rewrite the stored entries")
	}

	blobs.Revoke(ref)
	sent, err = Resolve(ctx, NewCache(nil), blobs, entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 0 {
		t.Errorf("revoked blobs should be dropped, got %d entries", len(sent))
	}
}

func TestResolveDropsMissingPlaceholder(t *testing.T) {
	sent, err := Resolve(context.Background(), NewCache(nil), nil, []Entry{{ID: "gone", DataURL: Placeholder("gone")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 0 {
		t.Errorf("expected entry to be dropped, got %+v", sent)
	}
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(nil)
	blobs := NewBlobStore()
	_ = cache.Set(ctx, "big", largeDataURL())
	ref := blobs.Register("image/png", pngHeader)

	Release(ctx, cache, blobs, Entry{ID: "big", DataURL: Placeholder("big")})
	Release(ctx, cache, blobs, Entry{ID: "b", DataURL: ref})
	if cache.Len() != 0 || blobs.Len() != 0 {
		t.Errorf("Release left cache=%d blobs=%d", cache.Len(), blobs.Len())
	}
}

func TestRemoveOnlyUploads(t *testing.T) {
	entries := []Entry{
		{ID: "u1", Source: SourceUpload},
		{ID: "e1", Source: SourceEdge, EdgeID: "edge-1"},
	}
	rest, ok := Remove(entries, "u1")
	if !ok || len(rest) != 1 || rest[0].ID != "e1" {
		t.Errorf("Remove(upload) = %+v, %v", rest, ok)
	}
	if _, ok := Remove(entries, "e1"); ok {
		t.Error("edge entries cannot be removed by the user")
	}
	if len(entries) != 2 || entries[0].ID != "u1" {
		t.Error("Remove must not modify its input")
	}
}

func TestSyncEdges(t *testing.T) {
	store := canvas.NewMemoryStore()
	blobs := NewBlobStore()
	store.AddNode(canvas.Node{ID: "anim", Type: "animation"})
	store.AddNode(canvas.Node{ID: "img", Type: "image", Data: map[string]any{"imageUrl": "https://x/a.png"}})
	store.Connect(canvas.Edge{ID: "e1", Source: "img", Target: "anim"})

	upload := Entry{ID: "u1", Source: SourceUpload, Type: TypeImage, DataURL: "data:image/png;base64,AA"}
	entries, changed := SyncEdges("anim", store, []Entry{upload}, blobs)
	if !changed || len(entries) != 2 {
		t.Fatalf("new connection not added: %+v", entries)
	}
	edgeEntry := entries[1]
	if edgeEntry.EdgeID != "e1" || edgeEntry.Source != SourceEdge || edgeEntry.DataURL != "https://x/a.png" {
		t.Errorf("unexpected edge entry %+v", edgeEntry)
	}

	// No change is a no-op.
	if _, changed := SyncEdges("anim", store, entries, blobs); changed {
		t.Error("unchanged canvas reported a change")
	}

	// Upstream output changes: refreshed in place with the same id.
	_ = store.UpdateNodeData("img", map[string]any{"imageUrl": "https://x/b.png"})
	entries, changed = SyncEdges("anim", store, entries, blobs)
	if !changed || len(entries) != 2 {
		t.Fatalf("refresh failed: %+v", entries)
	}
	if entries[1].ID != edgeEntry.ID || entries[1].DataURL != "https://x/b.png" {
		t.Errorf("edge entry not refreshed in place: %+v", entries[1])
	}

	// Disconnection removes the entry; the upload stays.
	store.Disconnect("e1")
	entries, changed = SyncEdges("anim", store, entries, blobs)
	if !changed || len(entries) != 1 || entries[0].ID != "u1" {
		t.Errorf("disconnect not applied: %+v", entries)
	}
}

func TestSyncEdgesCollapsesDuplicates(t *testing.T) {
	store := canvas.NewMemoryStore()
	store.AddNode(canvas.Node{ID: "anim", Type: "animation"})
	store.AddNode(canvas.Node{ID: "vid", Type: "video", Data: map[string]any{"videoUrl": "https://x/new.mp4"}})
	store.Connect(canvas.Edge{ID: "e1", Source: "vid", Target: "anim"})

	entries := []Entry{
		{ID: "first", Source: SourceEdge, Type: TypeVideo, DataURL: "https://x/old.mp4", EdgeID: "e1", NodeID: "vid"},
		{ID: "second", Source: SourceEdge, Type: TypeVideo, DataURL: "https://x/old.mp4", EdgeID: "e1", NodeID: "vid"},
	}
	got, changed := SyncEdges("anim", store, entries, NewBlobStore())
	if !changed || len(got) != 1 {
		t.Fatalf("expected a single entry, got %+v", got)
	}
	if got[0].ID != "first" || got[0].DataURL != "https://x/new.mp4" {
		t.Errorf("existing entry not updated in place: %+v", got[0])
	}
}

func TestSyncEdgesRevokesBlobOnDisconnect(t *testing.T) {
	store := canvas.NewMemoryStore()
	blobs := NewBlobStore()
	ref := blobs.Register("image/png", pngHeader)
	store.AddNode(canvas.Node{ID: "anim", Type: "animation"})
	store.AddNode(canvas.Node{ID: "img", Type: "image", Data: map[string]any{"imageUrl": ref}})
	store.Connect(canvas.Edge{ID: "e1", Source: "img", Target: "anim"})

	entries, _ := SyncEdges("anim", store, nil, blobs)
	store.Disconnect("e1")
	entries, _ = SyncEdges("anim", store, entries, blobs)
	if len(entries) != 0 || blobs.Len() != 0 {
		t.Errorf("blob not released: entries=%d blobs=%d", len(entries), blobs.Len())
	}
}

func TestSyncEdgesRevokesBlobOnRefresh(t *testing.T) {
	store := canvas.NewMemoryStore()
	blobs := NewBlobStore()
	first := blobs.Register("image/png", pngHeader)
	store.AddNode(canvas.Node{ID: "anim", Type: "animation"})
	store.AddNode(canvas.Node{ID: "img", Type: "image", Data: map[string]any{"imageUrl": first}})
	store.Connect(canvas.Edge{ID: "e1", Source: "img", Target: "anim"})

	entries, _ := SyncEdges("anim", store, nil, blobs)
	second := blobs.Register("image/png", pngHeader)
	_ = store.UpdateNodeData("img", map[string]any{"imageUrl": second})
	entries, changed := SyncEdges("anim", store, entries, blobs)
	if !changed || len(entries) != 1 || entries[0].DataURL != second {
		t.Fatalf("refresh not applied: %+v", entries)
	}
	if blobs.Len() != 1 {
		t.Errorf("stale blob kept: blobs=%d", blobs.Len())
	}
	if _, _, err := blobs.Open(first); err == nil {
		t.Error("replaced blob still resolvable")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	blobs := NewBlobStore()

	png := filepath.Join(dir, "frame.png")
	if err := os.WriteFile(png, pngHeader, 0644); err != nil {
		t.Fatal(err)
	}
	e, err := LoadFile(png, blobs)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if e.Type != TypeImage || e.Source != SourceUpload || !IsBlobRef(e.DataURL) || e.FileName != "frame.png" {
		t.Errorf("unexpected entry %+v", e)
	}

	mp4 := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(mp4, []byte("not really a video"), 0644); err != nil {
		t.Fatal(err)
	}
	if e, err := LoadFile(mp4, blobs); err != nil || e.Type != TypeVideo {
		t.Errorf("LoadFile(mp4) = %+v, %v", e, err)
	}

	fake := filepath.Join(dir, "fake.png")
	if err := os.WriteFile(fake, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(fake, blobs); err == nil {
		t.Error("expected error for non-image content")
	}

	if _, err := LoadFile(filepath.Join(dir, "notes.txt"), blobs); err == nil {
		t.Error("expected error for missing or unsupported file")
	}
}

func TestIsMediaFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"screenshot.png", true},
		{"PHOTO.JPEG", true},
		{"clip.mp4", true},
		{"clip.MOV", true},
		{"notes.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsMediaFile(tt.path); got != tt.expected {
				t.Errorf("IsMediaFile(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestDataURLRoundTrip(t *testing.T) {
	u := EncodeDataURL("image/png", pngHeader)
	mimeType, data, err := DecodeDataURL(u)
	if err != nil || mimeType != "image/png" || string(data) != string(pngHeader) {
		t.Errorf("DecodeDataURL() = %q, %v, %v", mimeType, data, err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.bytes); got != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}
