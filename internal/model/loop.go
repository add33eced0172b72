package model

import "time"

// Tier values: the calendar granularity a loop lives on.
const (
	TierDaily   = "daily"
	TierWeekly  = "weekly"
	TierMonthly = "monthly"
)

// Type values.
const (
	TypeOpen     = "open"
	TypeWindowed = "windowed"
)

// Status values.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
)

// Loop is a recurring or time-boxed task container, the primary syncable
// entity. ClientID is assigned by the client and is the correlation key
// across sync cycles; it is never reassigned. (OwnerID, ClientID) is unique.
type Loop struct {
	ID         uint   `gorm:"primaryKey"`
	OwnerID    uint   `gorm:"index;index:idx_owner_client,unique"`
	ClientID   string `gorm:"index:idx_owner_client,unique"`
	Tier       string
	Type       string
	Recurrence string // empty means none
	Status     string `gorm:"default:active"`
	Title      string
	Color      string
	Period     string // "YYYY-MM-DD" | "YYYY-Www" | "YYYY-MM" depending on tier
	LinkedTo   string // optional reference to another loop's ClientID; may dangle
	RolledFrom string // optional prior period this loop was rolled forward from
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Subtasks   []Subtask `gorm:"foreignKey:LoopID;constraint:OnDelete:CASCADE"`
}

// Subtask is an ordered checklist item owned by exactly one loop. ClientID
// is unique only within its loop's subtask set. Order is materialized from
// list position on every write and defines display sequence.
type Subtask struct {
	ID       uint `gorm:"primaryKey"`
	LoopID   uint `gorm:"index"`
	ClientID string
	Text     string
	Done     bool `gorm:"default:false"`
	Order    int  `gorm:"column:sort_order"`
}
