package types

import "time"

// Message is immutable once stored.
type Message struct {
	Id        string    `json:"_id" gorm:"primaryKey;size:36"`
	SenderId  string    `json:"-" gorm:"not null;size:36"`
	Sender    *User     `json:"sender,omitempty" gorm:"foreignKey:SenderId"`
	ChatId    string    `json:"-" gorm:"not null;size:36;index:idx_messages_chat_created,priority:1"`
	Chat      *Chat     `json:"chat,omitempty" gorm:"foreignKey:ChatId"`
	Content   string    `json:"content" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_messages_chat_created,priority:2"`
	UpdatedAt time.Time `json:"updatedAt"`
}
