package media

import (
	"github.com/google/uuid"

	"github.com/yanmxa/genmotion/internal/canvas"
)

// SyncEdges reconciles edge-sourced entries with the canvas connections
// into nodeID. New connections add an entry, deleted connections remove it
// (revoking its blob reference), and a changed upstream output refreshes
// the existing entry in place, keeping its id. Upload entries are kept
// untouched. It reports whether anything changed.
func SyncEdges(nodeID string, store canvas.Store, entries []Entry, blobs *BlobStore) ([]Entry, bool) {
	outputs := make(map[string]Entry)
	var order []string
	for _, e := range canvas.Incoming(store, nodeID) {
		src, ok := store.Node(e.Source)
		if !ok {
			continue
		}
		out, ok := canvas.OutputOf(src)
		if !ok {
			continue
		}
		outputs[e.ID] = Entry{
			Source:   SourceEdge,
			Type:     Type(out.Type),
			DataURL:  out.URL,
			Duration: out.Duration,
			EdgeID:   e.ID,
			NodeID:   src.ID,
		}
		order = append(order, e.ID)
	}

	changed := false
	seen := make(map[string]bool)
	result := make([]Entry, 0, len(entries)+len(outputs))
	for _, e := range entries {
		if e.Source != SourceEdge {
			result = append(result, e)
			continue
		}
		want, live := outputs[e.EdgeID]
		if !live || seen[e.EdgeID] {
			// Disconnected, or a duplicate entry for the same edge.
			if blobs != nil && IsBlobRef(e.DataURL) && (!live || e.DataURL != want.DataURL) {
				blobs.Revoke(e.DataURL)
			}
			changed = true
			continue
		}
		seen[e.EdgeID] = true
		if e.DataURL != want.DataURL || e.Type != want.Type || e.Duration != want.Duration || e.NodeID != want.NodeID {
			if blobs != nil && IsBlobRef(e.DataURL) && e.DataURL != want.DataURL {
				blobs.Revoke(e.DataURL)
			}
			e.DataURL = want.DataURL
			e.Type = want.Type
			e.Duration = want.Duration
			e.NodeID = want.NodeID
			changed = true
		}
		result = append(result, e)
	}

	for _, edgeID := range order {
		if seen[edgeID] {
			continue
		}
		e := outputs[edgeID]
		e.ID = uuid.NewString()
		result = append(result, e)
		changed = true
	}
	return result, changed
}
