package models

import (
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

// MilkEntry holds the per-item values for one milk count session. All
// count fields are nullable; a NULL means the item was never touched in
// that phase, which is distinct from an explicit zero.
type MilkEntry struct {
	ID             int            `gorm:"primaryKey" json:"id"`
	SessionId      int            `gorm:"not null;uniqueIndex:idx_milk_session_item" json:"sessionId"`
	ItemId         int            `gorm:"not null;uniqueIndex:idx_milk_session_item" json:"itemId"`
	Item           CountItem      `gorm:"foreignKey:ItemId" json:"item"`
	FrontCount     *int           `json:"frontCount"`
	BackCount      *int           `json:"backCount"`
	DeliveryMethod DeliveryMethod `gorm:"size:10" json:"deliveryMethod"`
	DeliveryValue  *int           `json:"deliveryValue"`
	OnOrderCount   *int           `json:"onOrderCount"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// PhaseEntryInput is one item's value for a phase save. Delivery saves
// carry a method alongside the value; the other phases ignore it.
type PhaseEntryInput struct {
	ItemId         int             `json:"itemId" binding:"required"`
	Value          *int            `json:"value"`
	DeliveryMethod *DeliveryMethod `json:"deliveryMethod"`
}

func validatePhaseEntries(entries []PhaseEntryInput, phase MilkSessionStatus) error {
	invalidIds := []int{}
	for _, entry := range entries {
		if entry.Value != nil && (*entry.Value < 0 || *entry.Value > MaxMeasurement) {
			invalidIds = append(invalidIds, entry.ItemId)
			continue
		}
		if phase == MilkStatusDeliveryCount && entry.DeliveryMethod != nil && !entry.DeliveryMethod.Valid() {
			invalidIds = append(invalidIds, entry.ItemId)
		}
	}
	if len(invalidIds) > 0 {
		return utils.NewItemValidationError(invalidIds, "measurement out of range")
	}
	return nil
}

// DeliveredOf resolves the delivered side of the delivery pair. When the
// entry was recorded as a current-count it is derived from the back count,
// clamped at zero.
func (e *MilkEntry) DeliveredOf() *int {
	if e.DeliveryValue == nil {
		return nil
	}
	if e.DeliveryMethod == DeliveryMethodDelivered {
		return e.DeliveryValue
	}
	back := 0
	if e.BackCount != nil {
		back = *e.BackCount
	}
	delivered := *e.DeliveryValue - back
	if delivered < 0 {
		delivered = 0
	}
	return &delivered
}

// CurrentOf resolves the current-count side of the delivery pair. When the
// entry was recorded as a delivered amount it is the back count plus that
// amount.
func (e *MilkEntry) CurrentOf() *int {
	if e.DeliveryValue == nil {
		return nil
	}
	if e.DeliveryMethod == DeliveryMethodCount {
		return e.DeliveryValue
	}
	back := 0
	if e.BackCount != nil {
		back = *e.BackCount
	}
	current := back + *e.DeliveryValue
	return &current
}
