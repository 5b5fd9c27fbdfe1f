package realtime

import "fmt"

// RoomKind identifies one of the five membership scopes the platform
// tracks independently of the transport's own broadcast groups.
type RoomKind string

const (
	KindContentViewers   RoomKind = "content-viewers"
	KindTyping           RoomKind = "typing"
	KindCollaboration    RoomKind = "collaboration"
	KindChat             RoomKind = "chat"
	KindAnalyticsViewers RoomKind = "analytics-viewers"
)

// DefaultTypingKey is the shared typing scope used when a typing event
// carries no explicit room key.
const DefaultTypingKey = "shared"

// RoomRef is a typed room reference. Keeping kind and key separate
// rules out collisions between kinds sharing a key ("content-x" vs
// "chat-x"); the concatenated wire name exists only at the protocol
// edge via String. Comparable, so usable as a map key.
type RoomRef struct {
	Kind RoomKind `json:"kind"`
	Key  string   `json:"key"`
}

// ContentRoom returns the viewer room for a piece of content.
func ContentRoom(contentID string) RoomRef {
	return RoomRef{Kind: KindContentViewers, Key: contentID}
}

// TypingRoom returns the typing scope for a room key, falling back to
// the shared scope when key is empty.
func TypingRoom(key string) RoomRef {
	if key == "" {
		key = DefaultTypingKey
	}
	return RoomRef{Kind: KindTyping, Key: key}
}

// CollaborationRoom returns the collaboration session room for a piece
// of content.
func CollaborationRoom(contentID string) RoomRef {
	return RoomRef{Kind: KindCollaboration, Key: contentID}
}

// ChatRoom returns the room for a chat.
func ChatRoom(chatID string) RoomRef {
	return RoomRef{Kind: KindChat, Key: chatID}
}

// AnalyticsRoom returns the dashboard room for a content's analytics.
func AnalyticsRoom(contentID string) RoomRef {
	return RoomRef{Kind: KindAnalyticsViewers, Key: contentID}
}

// String renders the wire name of the room ("content-{id}", "chat-{id}",
// "analytics-{id}", "collaboration-{id}", "typing-{key}").
func (r RoomRef) String() string {
	switch r.Kind {
	case KindContentViewers:
		return "content-" + r.Key
	case KindChat:
		return "chat-" + r.Key
	case KindAnalyticsViewers:
		return "analytics-" + r.Key
	case KindCollaboration:
		return "collaboration-" + r.Key
	case KindTyping:
		return "typing-" + r.Key
	}
	return fmt.Sprintf("%s-%s", r.Kind, r.Key)
}

// PersonalRoom is the wire name of an identity's personal delivery
// scope. Personal rooms are not tracked as membership sets; delivery to
// them targets every live connection of the identity.
func PersonalRoom(identityID string) string {
	return "identity-" + identityID
}
