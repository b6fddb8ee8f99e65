// Package timeline merges a session's logs into the single ordered list a
// UI renders top to bottom.
package timeline

import (
	"cmp"
	"slices"

	"github.com/yanmxa/genmotion/internal/message"
	"github.com/yanmxa/genmotion/internal/plan"
	"github.com/yanmxa/genmotion/internal/session"
	"github.com/yanmxa/genmotion/internal/toolevent"
)

// Kind tells which log an item came from.
type Kind string

const (
	KindMessage  Kind = "message"
	KindTool     Kind = "tool"
	KindThinking Kind = "thinking"
	KindPlan     Kind = "plan"
	KindVersion  Kind = "version"
)

// Item is one timeline entry. Exactly one payload pointer matching Kind is set.
type Item struct {
	Kind      Kind
	ID        string
	Seq       uint64
	Timestamp string

	Message  *message.Message
	ToolCall *message.ToolCall
	Thinking *session.ThinkingBlock
	Plan     *PlanCard
	Version  *session.Version

	// Active marks the one version accept and regenerate apply to.
	Active bool
	// Stale marks a version the user has since asked to change.
	Stale bool
}

// PlanCard is the plan as shown in the timeline.
type PlanCard struct {
	Plan     *plan.Plan
	Accepted bool
	Diff     string
}

// Build returns the visible timeline of s, sorted.
func Build(s session.State) []Item {
	items := make([]Item, 0, len(s.Messages)+len(s.ToolCalls)+len(s.Thinking)+len(s.Versions)+1)

	for i := range s.Messages {
		m := s.Messages[i]
		if m.Internal {
			continue
		}
		items = append(items, Item{Kind: KindMessage, ID: m.ID, Seq: m.Seq, Timestamp: m.Timestamp, Message: &m})
	}

	for i := range s.ToolCalls {
		tc := s.ToolCalls[i]
		if toolevent.IsUIControl(tc.ToolName) {
			continue
		}
		items = append(items, Item{Kind: KindTool, ID: tc.ToolCallID, Seq: tc.Seq, Timestamp: tc.Timestamp, ToolCall: &tc})
	}

	for i := range s.Thinking {
		b := s.Thinking[i]
		if b.Content == "" && !b.IsOpen() {
			continue
		}
		items = append(items, Item{Kind: KindThinking, ID: b.ID, Seq: b.Seq, Timestamp: b.Timestamp, Thinking: &b})
	}

	if s.Plan != nil {
		items = append(items, Item{
			Kind:      KindPlan,
			ID:        "plan",
			Seq:       s.PlanSeq,
			Timestamp: s.PlanTimestamp,
			Plan:      &PlanCard{Plan: s.Plan.Clone(), Accepted: s.PlanAccepted, Diff: s.PlanDiff},
		})
	}

	newest := -1
	for i := range s.Versions {
		if newest < 0 || less(key(s.Versions[newest]), key(s.Versions[i])) {
			newest = i
		}
	}
	for i := range s.Versions {
		v := s.Versions[i]
		item := Item{Kind: KindVersion, ID: v.ID, Seq: v.Seq, Timestamp: v.Timestamp, Version: &v}
		if i == newest {
			item.Active = !userSpokeAfter(s.Messages, v)
			item.Stale = s.PreviewState == session.PreviewStale && v.ID == s.ActiveVersionID
		}
		items = append(items, item)
	}

	Sort(items)
	return items
}

// Sort orders items by (Timestamp, Seq). Items with equal keys keep their
// relative order.
func Sort(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

type sortKey struct {
	ts  string
	seq uint64
}

func key(v session.Version) sortKey { return sortKey{v.Timestamp, v.Seq} }

func less(a, b sortKey) bool {
	if a.ts != b.ts {
		return a.ts < b.ts
	}
	return a.seq < b.seq
}

func userSpokeAfter(msgs []message.Message, v session.Version) bool {
	for _, m := range msgs {
		if m.Role == message.RoleUser && !m.Internal && less(key(v), sortKey{m.Timestamp, m.Seq}) {
			return true
		}
	}
	return false
}
