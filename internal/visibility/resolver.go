// Package visibility holds the pure functions that decide what a user sees:
// message clustering for the conversation view, the single "seen by" marker,
// and inbox entry state. Nothing here touches the stores.
package visibility

import (
	"time"

	"github.com/cemgunay/coleaseum-webapp-sub000/internal/model"
)

// GroupGap is the maximum gap between consecutive messages that still lands
// them in the same display cluster.
const GroupGap = 5 * time.Minute

// GroupMessages splits a chronologically sorted message sequence into
// clusters: a new group starts whenever the gap to the previous message
// exceeds GroupGap.
func GroupMessages(msgs []model.Message) [][]model.Message {
	if len(msgs) == 0 {
		return nil
	}

	groups := make([][]model.Message, 0, 4)
	current := []model.Message{msgs[0]}

	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Sub(msgs[i-1].CreatedAt) > GroupGap {
			groups = append(groups, current)
			current = []model.Message{msgs[i]}
			continue
		}
		current = append(current, msgs[i])
	}

	return append(groups, current)
}

// LastSeenByOwnMessage returns the most recent of the user's own messages
// that someone else has acknowledged, scanning newest first. The client
// renders a single "seen" indicator on that message rather than one per
// message. System messages never qualify.
func LastSeenByOwnMessage(userID string, msgs []model.Message) *model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.IsSystem() || m.SenderID != userID {
			continue
		}
		if len(m.SeenBy) > 1 {
			return &msgs[i]
		}
	}
	return nil
}

// InboxEntry is a conversation as it appears in one user's inbox.
type InboxEntry struct {
	Conversation model.Conversation `json:"conversation"`
	LastMessage  *model.Message     `json:"lastMessage,omitempty"`
	HasUnseen    bool               `json:"hasUnseen"`
}

// NewInboxEntry computes the inbox state for a conversation the user can
// see. latest is the newest message inside the user's visibility window,
// nil when the window is empty.
func NewInboxEntry(userID string, conv model.Conversation, latest *model.Message) InboxEntry {
	entry := InboxEntry{
		Conversation: conv,
		LastMessage:  latest,
	}
	if latest != nil && !latest.IsSystem() {
		entry.HasUnseen = !latest.SeenByUser(userID)
	}
	return entry
}
