package domain

import "time"

// Direction is the layout conversion applied to a stored message.
type Direction string

const (
	DirectionNone     Direction = "none"
	DirectionToTarget Direction = "to-target"
	DirectionToSource Direction = "to-source"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionNone, DirectionToTarget, DirectionToSource:
		return true
	}
	return false
}

// ConversationKind distinguishes one-to-one chats from multi-party ones.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "direct"
	ConversationGroup  ConversationKind = "group"
)

// MessageKey identifies a message. Telegram message ids are only unique
// within a chat, so the chat id is part of the key.
type MessageKey struct {
	MessageID int64
	ChatID    int64
}

// StoredMessage is one persisted inbound text message and its latest
// translation.
type StoredMessage struct {
	ID              int64
	MessageID       int64
	ChatID          int64
	UserID          int64
	OriginalText    string
	TranslatedText  string
	TranslationType Direction
	CreatedAt       time.Time
}

func (m StoredMessage) Key() MessageKey {
	return MessageKey{MessageID: m.MessageID, ChatID: m.ChatID}
}

// InboundMessage is a chat message as delivered by the platform.
type InboundMessage struct {
	MessageID         int64
	ConversationID    int64
	SenderID          int64
	SenderName        string
	SenderIsAutomated bool
	Text              string
	// RepliedToMessageID is zero when the message is not a reply.
	RepliedToMessageID int64
}

func (m InboundMessage) Key() MessageKey {
	return MessageKey{MessageID: m.MessageID, ChatID: m.ConversationID}
}

// CommandName is a bot command independent of its chat spelling.
type CommandName string

const (
	CommandToTarget CommandName = "to-target"
	CommandToSource CommandName = "to-source"
	CommandHelp     CommandName = "help"
)

// Direction returns the layout conversion requested by the command.
func (c CommandName) Direction() Direction {
	switch c {
	case CommandToTarget:
		return DirectionToTarget
	case CommandToSource:
		return DirectionToSource
	}
	return DirectionNone
}

// InboundCommand is a parsed bot command.
type InboundCommand struct {
	Name             CommandName
	MessageID        int64
	ConversationID   int64
	ConversationKind ConversationKind
	// ArgumentText is the text following the command token; empty means none.
	ArgumentText string
	// RepliedTo is set when the command was sent as a reply.
	RepliedTo *InboundMessage
}
