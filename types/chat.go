package types

import (
	"sort"
	"strings"
	"time"
)

// Chat is either a direct (two member) chat or a group chat with an admin.
type Chat struct {
	Id              string    `json:"_id" gorm:"primaryKey;size:36"`
	ChatName        string    `json:"chatName"`
	IsGroupChat     bool      `json:"isGroupChat" gorm:"not null;default:false"`
	Users           []User    `json:"users" gorm:"many2many:chat_members"`
	LatestMessageId *string   `json:"-" gorm:"size:36"`
	LatestMessage   *Message  `json:"latestMessage,omitempty" gorm:"foreignKey:LatestMessageId"`
	GroupAdminId    *string   `json:"-" gorm:"size:36"`
	GroupAdmin      *User     `json:"groupAdmin,omitempty" gorm:"foreignKey:GroupAdminId"`
	DirectKey       *string   `json:"-" gorm:"uniqueIndex"` // only set on direct chats
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ChatMember is the join row behind Chat.Users.
type ChatMember struct {
	ChatId    string `gorm:"primaryKey;size:36"`
	UserId    string `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}

// HasMember reports whether userId is in the (preloaded) member list.
func (c *Chat) HasMember(userId string) bool {
	for _, u := range c.Users {
		if u.Id == userId {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userId is the stored group admin.
func (c *Chat) IsAdmin(userId string) bool {
	return c.GroupAdminId != nil && *c.GroupAdminId == userId
}

// DirectKey returns the key identifying the direct chat between two users, independent of
// argument order.
func DirectKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
