package model

import "time"

// User is an account that owns loops. Bearer tokens resolve to one of
// these rows before any loop data is touched.
type User struct {
	ID           uint   `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Loops        []Loop `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE"`
}
