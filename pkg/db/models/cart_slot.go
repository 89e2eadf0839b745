package models

import "time"

// CartSlot is the persisted form of one cart: a JSON array of lines plus a
// version used for compare-and-swap writes.
type CartSlot struct {
	Slot      string    `gorm:"column:slot;primaryKey"`
	Payload   string    `gorm:"column:payload;not null"`
	Version   int64     `gorm:"column:version;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (CartSlot) TableName() string {
	return "cart_slots"
}
