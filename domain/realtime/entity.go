package realtime

import "time"

// PresenceStatus is the online/offline state of an identity.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// Connection is one live transport session. IdentityID is empty until
// the client announces itself.
type Connection struct {
	ID           string               `json:"id"`
	IdentityID   string               `json:"identity_id,omitempty"`
	DisplayName  string               `json:"display_name,omitempty"`
	ConnectedAt  time.Time            `json:"connected_at"`
	LastActivity time.Time            `json:"last_activity"`
	Rooms        map[RoomRef]struct{} `json:"-"`
	ContentFocus string               `json:"content_focus,omitempty"`
	Typing       bool                 `json:"typing,omitempty"`
	TypingTarget string               `json:"typing_target,omitempty"`
}

// Presence is the per-identity state, independent of how many
// simultaneous connections the identity holds.
type Presence struct {
	IdentityID   string         `json:"identity_id"`
	Status       PresenceStatus `json:"status"`
	LastActivity time.Time      `json:"last_activity"`
	Activity     string         `json:"activity,omitempty"`
	ConnectionID string         `json:"connection_id,omitempty"`
}

// TypingEntry is the auxiliary payload stored for a member of a typing
// room. Entries are written by typing-start and removed either by an
// explicit typing-stop or by the server-side sweep.
type TypingEntry struct {
	DisplayName string    `json:"display_name"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
}
