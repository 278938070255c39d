package model

import (
	"fmt"
	"time"
)

// ChatType identifies a messaging channel.
type ChatType string

// Channels. General is broadcast to everyone; support is a private thread
// between one user and the admins.
const (
	ChatGeneral ChatType = "general"
	ChatSupport ChatType = "support"
)

// ChatTypes returns the channels that make up the aggregate unread count.
func ChatTypes() []ChatType {
	return []ChatType{ChatGeneral, ChatSupport}
}

// ParseChatType validates a channel name.
func ParseChatType(s string) (ChatType, error) {
	switch ChatType(s) {
	case ChatGeneral, ChatSupport:
		return ChatType(s), nil
	default:
		return "", fmt.Errorf("unknown chat type %q", s)
	}
}

// SystemSenderID is the sender of automated messages such as the welcome text.
const SystemSenderID int64 = 0

// NoCounterpart is the counterpart_id of a read watermark that is not scoped
// to a conversation partner.
const NoCounterpart int64 = 0

// NeverRead is the watermark of a channel the user has never opened. It is used
// both when a watermark row is missing and when rows are materialized for a new
// user, so the two cases count identically.
var NeverRead = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// ChatMessage is a single message. RecipientID is nil for general broadcasts
// and for support messages addressed to the admins.
type ChatMessage struct {
	ID          int64     `db:"id" json:"id"`
	SenderID    int64     `db:"sender_id" json:"sender_id"`
	SenderName  string    `db:"sender_name" json:"sender_name"`
	RecipientID *int64    `db:"recipient_id" json:"recipient_id,omitempty"`
	ChatType    ChatType  `db:"chat_type" json:"chat_type"`
	Message     string    `db:"message" json:"message"`
	IsAdmin     bool      `db:"is_admin" json:"is_admin"`
	SentAt      time.Time `db:"sent_at" json:"timestamp"`
}

// ChatReadState is a read watermark for (user, channel, counterpart).
type ChatReadState struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	ChatType      ChatType  `db:"chat_type" json:"chat_type"`
	CounterpartID int64     `db:"counterpart_id" json:"counterpart_id"`
	LastReadAt    time.Time `db:"last_read_at" json:"last_read_at"`
}

// Conversation summarizes one user's support thread for the admin inbox.
type Conversation struct {
	UserID        int64     `json:"user_id"`
	UserName      string    `json:"user_name"`
	UserEmail     string    `json:"user_email"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	Unread        int       `json:"unread"`
}
