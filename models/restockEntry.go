package models

import (
	"time"
)

// RestockEntry is one item's row in a display restock session. The
// counted value stays NULL until the user touches the item; the pulled
// flag only means anything once the session reaches the pulling phase.
type RestockEntry struct {
	ID           int       `gorm:"primaryKey" json:"id"`
	SessionId    int       `gorm:"not null;uniqueIndex:idx_restock_session_item" json:"sessionId"`
	ItemId       int       `gorm:"not null;uniqueIndex:idx_restock_session_item" json:"itemId"`
	Item         CountItem `gorm:"foreignKey:ItemId" json:"item"`
	CountedValue *int      `json:"countedValue"`
	Pulled       *bool     `gorm:"not null;default:false" json:"pulled"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
