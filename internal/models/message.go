package models

import (
	"time"
)

// MessageStatus represents the status of a message
type MessageStatus string

const (
	MessageStatusSent MessageStatus = "SENT"
	MessageStatusRead MessageStatus = "READ"
)

// Message represents a message between users
type Message struct {
	BaseModel
	SenderID   string        `gorm:"size:36;index" json:"senderId"`
	ReceiverID string        `gorm:"size:36;index" json:"receiverId"`
	ParentID   string        `gorm:"size:36;index" json:"parentId,omitempty"`
	Subject    string        `gorm:"size:255" json:"subject"`
	Content    string        `gorm:"type:text" json:"content"`
	Status     MessageStatus `gorm:"size:20;not null" json:"status"`
	ReadAt     *time.Time    `json:"readAt,omitempty"`
}

// ConversationPreview summarises the latest exchange with one partner.
type ConversationPreview struct {
	Partner     UserSanitized `json:"partner"`
	LastMessage Message       `json:"lastMessage"`
	UnreadCount int64         `json:"unreadCount"`
}
