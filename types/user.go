package types

import "time"

const DefaultPic = "https://i.pinimg.com/originals/d4/06/6d/d4066df9414e37e47739a84418971f36.jpg"

// User is a registered account. The password hash never leaves the server.
type User struct {
	Id        string    `json:"_id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"not null;uniqueIndex"`
	Password  string    `json:"-" gorm:"not null"` // bcrypt hash
	Pic       string    `json:"pic" gorm:"not null"`
	IsAdmin   bool      `json:"isAdmin" gorm:"not null;default:false"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
