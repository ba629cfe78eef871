package repository

import (
	"time"

	"layoutbot/internal/domain"
)

// MessageModel is the GORM model for the messages table.
type MessageModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	MessageID       int64     `gorm:"not null;uniqueIndex:idx_messages_message_chat"`
	ChatID          int64     `gorm:"not null;uniqueIndex:idx_messages_message_chat"`
	UserID          int64     `gorm:"not null"`
	OriginalText    string    `gorm:"type:text;not null"`
	TranslatedText  string    `gorm:"type:text;not null;default:''"`
	TranslationType string    `gorm:"type:varchar(16);not null;default:'none'"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

func (MessageModel) TableName() string { return "messages" }

func messageToModel(m domain.StoredMessage) MessageModel {
	return MessageModel{
		ID:              m.ID,
		MessageID:       m.MessageID,
		ChatID:          m.ChatID,
		UserID:          m.UserID,
		OriginalText:    m.OriginalText,
		TranslatedText:  m.TranslatedText,
		TranslationType: string(m.TranslationType),
		CreatedAt:       m.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.StoredMessage {
	return domain.StoredMessage{
		ID:              m.ID,
		MessageID:       m.MessageID,
		ChatID:          m.ChatID,
		UserID:          m.UserID,
		OriginalText:    m.OriginalText,
		TranslatedText:  m.TranslatedText,
		TranslationType: domain.Direction(m.TranslationType),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}
