package dispatch

import "github.com/example/blog-realtime/domain/realtime"

// Inbound event names. These are the wire contract; the transport
// bridge passes them through untouched.
const (
	EvConnectAnnounce  = "connect-announce"
	EvJoinContentRoom  = "join-content-room"
	EvLeaveContentRoom = "leave-content-room"
	EvTypingStart      = "typing-start"
	EvTypingStop       = "typing-stop"
	EvContentMutation  = "content-mutation"
	EvChatSend         = "chat-send"
	EvJoinChatRoom     = "join-chat-room"
	EvLeaveChatRoom    = "leave-chat-room"
	EvJoinCollab       = "join-collaboration"
	EvLeaveCollab      = "leave-collaboration"
	EvJoinAnalytics    = "join-analytics-room"
	EvLeaveAnalytics   = "leave-analytics-room"
	EvHeartbeat        = "heartbeat"
)

// Outbound event names.
const (
	OutIdentityOnline    = "identity-online"
	OutIdentityOffline   = "identity-offline"
	OutViewerJoined      = "viewer-joined"
	OutViewerLeft        = "viewer-left"
	OutRoomMembers       = "room-members"
	OutMemberJoined      = "member-joined"
	OutMemberLeft        = "member-left"
	OutCollabJoined      = "collaborator-joined"
	OutCollabLeft        = "collaborator-left"
	OutUserTyping        = "user-typing"
	OutUserStoppedTyping = "user-stopped-typing"
	OutContentMutation   = "content-mutation"
	OutNewMessage        = "new-message"
	OutHeartbeatAck      = "heartbeat-ack"
	OutConnectionEvicted = "connection-evicted"
	OutAnalyticsSnapshot = "analytics-snapshot"
)

// announcePayload is the payload of connect-announce.
type announcePayload struct {
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
}

func (p announcePayload) validate() error {
	// Display name may be absent; it is resolved from storage
	// best-effort in that case.
	return realtime.ValidateIdentityID(p.IdentityID)
}

// roomPayload covers every join/leave event: the key field is the
// content id or chat id depending on the event.
type roomPayload struct {
	ContentID  string `json:"content_id,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	IdentityID string `json:"identity_id"`
}

func (p roomPayload) validate() error {
	if err := realtime.ValidateIdentityID(p.IdentityID); err != nil {
		return err
	}
	key := p.ContentID
	if key == "" {
		key = p.ChatID
	}
	return realtime.ValidateRoomKey(key)
}

// typingPayload covers typing-start and typing-stop. RoomKey is
// optional; absent means the default shared scope.
type typingPayload struct {
	RoomKey     string `json:"room_key,omitempty"`
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name,omitempty"`
	Action      string `json:"action,omitempty"`
}

func (p typingPayload) validate() error {
	if err := realtime.ValidateIdentityID(p.IdentityID); err != nil {
		return err
	}
	if len(p.Action) > realtime.MaxActionLength {
		return realtime.ErrMessageTooLong
	}
	return nil
}

// mutationPayload is a collaborative edit operation. The envelope is
// relayed as-is: no ordering, no conflict resolution.
type mutationPayload struct {
	ContentID  string `json:"content_id"`
	IdentityID string `json:"identity_id"`
	Operation  string `json:"operation"`
	Position   int    `json:"position"`
	Payload    any    `json:"payload,omitempty"`
}

func (p mutationPayload) validate() error {
	if err := realtime.ValidateIdentityID(p.IdentityID); err != nil {
		return err
	}
	if p.Operation == "" {
		return realtime.ErrMessageEmpty
	}
	return realtime.ValidateRoomKey(p.ContentID)
}

// chatSendPayload is an outgoing chat message.
type chatSendPayload struct {
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id"`
	Content  string `json:"content"`
}

func (p chatSendPayload) validate() error {
	if err := realtime.ValidateIdentityID(p.SenderID); err != nil {
		return err
	}
	if err := realtime.ValidateRoomKey(p.ChatID); err != nil {
		return err
	}
	return realtime.ValidateMessage(p.Content)
}

// heartbeatPayload keeps the connection and its presence record fresh.
type heartbeatPayload struct {
	IdentityID string `json:"identity_id"`
	Activity   string `json:"activity,omitempty"`
}

func (p heartbeatPayload) validate() error {
	return realtime.ValidateIdentityID(p.IdentityID)
}
