package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DevTurn is the raw request body and frame log of one turn, saved to DEV_DIR
type DevTurn struct {
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
	Request   any       `json:"request"`
	Frames    []string  `json:"frames"`
	Skipped   int       `json:"skipped,omitempty"`
}

// WriteDevTurn writes the turn data to a JSON file in DEV_DIR
func WriteDevTurn(nodeID string, turn int, request any, frames []string, skipped int) {
	if !devEnabled {
		return
	}
	t := DevTurn{
		Turn:      turn,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		Request:   request,
		Frames:    frames,
		Skipped:   skipped,
	}
	filename := filepath.Join(devDir, GetTurnPrefix(nodeID, turn)+"-turn.json")
	writeJSON(filename, t)
}

// DevEnabled reports whether raw turn capture is on
func DevEnabled() bool {
	return devEnabled
}

func writeJSON(filename string, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(filename, jsonData, 0644)
}
