package models

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"gorm.io/gorm"
)

// RestockSession is one staff member's display restock for one day:
// count what is on the display, then pull stock from the back to reach
// par. Completion purges the session and its ledger; only the outbox
// event and the audit row survive.
type RestockSession struct {
	ID          int                  `gorm:"primary_key" json:"id"`
	BusinessId  string               `gorm:"index;not null" json:"business_id"`
	UserId      int                  `gorm:"not null;uniqueIndex:idx_restock_user_date,priority:1" json:"user_id"`
	SessionDate string               `gorm:"size:10;not null;uniqueIndex:idx_restock_user_date,priority:2" json:"session_date"`
	Status      RestockSessionStatus `gorm:"size:20;not null" json:"status"`
	ExpiresAt   time.Time            `json:"expires_at"`

	Entries   []RestockEntry `gorm:"foreignKey:SessionId" json:"entries"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func restockScope(ctx context.Context) (string, int, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", 0, errors.New("business id is required")
	}
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return "", 0, errors.New("user id is required")
	}
	return businessId, userId, nil
}

// StartRestockSession opens the acting user's restock for the given
// date. Restock sessions are scoped per user per day; a second start on
// the same day is a conflict, and the in-flight session is picked back
// up through GetActiveRestockSession instead.
func StartRestockSession(ctx context.Context, date string) (*RestockSession, error) {
	businessId, userId, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	if date == "" {
		date = time.Now().UTC().Format(sessionDateLayout)
	}
	if _, err := time.Parse(sessionDateLayout, date); err != nil {
		return nil, utils.NewValidationError("date must be formatted as %s", sessionDateLayout)
	}

	// Purge-on-complete means any row found here is still in flight.
	// Resuming goes through GetActiveRestockSession, not a second start.
	db := config.GetDB()
	var count int64
	if err := db.WithContext(ctx).Model(&RestockSession{}).
		Where("business_id = ? AND user_id = ? AND session_date = ?", businessId, userId, date).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("a restock count is already in progress for %s", date)
	}

	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, utils.NewValidationError("no active items to count")
	}

	session := RestockSession{
		BusinessId:  businessId,
		UserId:      userId,
		SessionDate: date,
		Status:      RestockStatusCounting,
		ExpiresAt:   endOfSessionDate(date),
	}

	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	if err := tx.Create(&session).Error; err != nil {
		return nil, err
	}
	entries := make([]RestockEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, RestockEntry{SessionId: session.ID, ItemId: item.ID, Pulled: utils.NewFalse()})
	}
	if err := tx.Omit("Item").Create(&entries).Error; err != nil {
		return nil, err
	}
	if err := createHistory(tx, "*START*", session.ID, SessionTypeRestock, nil, session, "started display restock "+date); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	session.Entries = entries
	return &session, nil
}

// GetActiveRestockSession returns the acting user's most recent session.
// Purged sessions are gone, so whatever is found is still in flight.
func GetActiveRestockSession(ctx context.Context) (*RestockSession, error) {
	businessId, userId, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	var session RestockSession
	err = db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("restock_entries.item_id") }).
		Preload("Entries.Item").
		Where("business_id = ? AND user_id = ?", businessId, userId).
		Order("session_date DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func getRestockSession(ctx context.Context, tx *gorm.DB, id int) (*RestockSession, error) {
	businessId, userId, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	var session RestockSession
	err = tx.Where("business_id = ? AND user_id = ?", businessId, userId).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateRestockCount writes one item's counted value. Counting edits are
// rejected once pulling has begun; the count is frozen behind the gate.
func UpdateRestockCount(ctx context.Context, sessionId int, itemId int, value *int) (*RestockEntry, error) {
	if value != nil && (*value < 0 || *value > MaxMeasurement) {
		return nil, utils.NewItemValidationError([]int{itemId}, "measurement out of range")
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	session, err := getRestockSession(ctx, tx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != RestockStatusCounting {
		return nil, utils.NewConflictError("counting is closed, pulling already started")
	}

	var entry RestockEntry
	err = tx.Where("session_id = ? AND item_id = ?", sessionId, itemId).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&entry).Update("counted_value", value).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	entry.CountedValue = value
	return &entry, nil
}

// ToggleRestockPulled flips one item's pulled flag during the pulling
// phase.
func ToggleRestockPulled(ctx context.Context, sessionId int, itemId int, pulled bool) (*RestockEntry, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	session, err := getRestockSession(ctx, tx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != RestockStatusPulling {
		return nil, utils.NewConflictError("pulling has not started")
	}

	var entry RestockEntry
	err = tx.Where("session_id = ? AND item_id = ?", sessionId, itemId).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Model(&entry).Update("pulled", pulled).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	entry.Pulled = &pulled
	return &entry, nil
}

// BeginPulling closes the counting phase. The gate requires a non-NULL
// counted value for every active catalog item; violators come back in a
// ValidationError ordered by display order. With assignZero the
// violators get an explicit zero written and the gate passes, all in the
// same transaction.
func BeginPulling(ctx context.Context, sessionId int, assignZero bool) (*RestockSession, error) {
	businessId, _, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	session, err := getRestockSession(ctx, tx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != RestockStatusCounting {
		return nil, utils.NewConflictError("pulling already started")
	}

	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}

	var counted []RestockEntry
	if err := tx.Where("session_id = ? AND counted_value IS NOT NULL", sessionId).Find(&counted).Error; err != nil {
		return nil, err
	}
	countedSet := make(map[int]bool, len(counted))
	for _, entry := range counted {
		countedSet[entry.ItemId] = true
	}

	violators := []int{}
	for _, item := range items {
		if !countedSet[item.ID] {
			violators = append(violators, item.ID)
		}
	}

	if len(violators) > 0 {
		if !assignZero {
			displayOrder := make(map[int]int, len(items))
			for _, item := range items {
				displayOrder[item.ID] = item.DisplayOrder
			}
			sort.Slice(violators, func(i, j int) bool {
				return displayOrder[violators[i]] < displayOrder[violators[j]]
			})
			return nil, utils.NewItemValidationError(violators, "%d items were never counted", len(violators))
		}
		zero := 0
		if err := tx.Model(&RestockEntry{}).
			Where("session_id = ? AND item_id IN ?", sessionId, violators).
			Update("counted_value", &zero).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Model(session).Update("status", RestockStatusPulling).Error; err != nil {
		return nil, err
	}
	if err := createHistory(tx, "*SAVE*", session.ID, SessionTypeRestock, nil, session, "started pulling"); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetActiveRestockSession(ctx)
}

// CompleteRestockSession finishes the session under the purge policy:
// the summary goes out through the outbox and the session row plus its
// ledger are deleted in the same transaction.
func CompleteRestockSession(ctx context.Context, sessionId int) ([]*RestockItemSummary, error) {
	businessId, _, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	session, err := getRestockSession(ctx, tx, sessionId)
	if err != nil {
		return nil, err
	}
	if session.Status != RestockStatusPulling {
		return nil, utils.NewValidationError("pulling has not started")
	}

	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}
	var ledger []*RestockEntry
	if err := tx.Where("session_id = ?", sessionId).Order("item_id").Find(&ledger).Error; err != nil {
		return nil, err
	}
	summary := BuildRestockSummary(items, ledger)

	if err := createSessionEvent(tx, businessId, session.ID, SessionTypeRestock, SessionEventRestockCompleted, summary); err != nil {
		return nil, err
	}
	if err := createHistory(tx, "*COMPLETE*", session.ID, SessionTypeRestock, session, nil, "completed display restock "+session.SessionDate); err != nil {
		return nil, err
	}

	if err := tx.Where("session_id = ?", sessionId).Delete(&RestockEntry{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Delete(session).Error; err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return summary, nil
}

// GetRestockSummary derives the per-item counted/pull view for one
// session against the current catalog, every active item included.
func GetRestockSummary(ctx context.Context, sessionId int) ([]*RestockItemSummary, error) {
	businessId, _, err := restockScope(ctx)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	session, err := getRestockSession(ctx, db.WithContext(ctx), sessionId)
	if err != nil {
		return nil, err
	}

	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}
	var ledger []*RestockEntry
	if err := db.WithContext(ctx).Where("session_id = ?", session.ID).Order("item_id").Find(&ledger).Error; err != nil {
		return nil, err
	}
	return BuildRestockSummary(items, ledger), nil
}

// GetRestockPullList is the summary narrowed to the items that need
// moving.
func GetRestockPullList(ctx context.Context, sessionId int) ([]*RestockItemSummary, error) {
	summaries, err := GetRestockSummary(ctx, sessionId)
	if err != nil {
		return nil, err
	}
	pullList := []*RestockItemSummary{}
	for _, summary := range summaries {
		if summary.PullAmount > 0 {
			pullList = append(pullList, summary)
		}
	}
	return pullList, nil
}
