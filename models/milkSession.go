package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sessionDateLayout = "2006-01-02"

// endOfSessionDate is when a session for that date goes stale: midnight
// UTC the next day.
func endOfSessionDate(date string) time.Time {
	d, _ := time.Parse(sessionDateLayout, date)
	return d.AddDate(0, 0, 1)
}

// MilkSession is one day's milk count. It walks the phase chain
// front -> back -> delivery -> on order and is archived on completion:
// the row and its ledger stay behind read-only.
type MilkSession struct {
	ID          int               `gorm:"primary_key" json:"id"`
	BusinessId  string            `gorm:"index;not null;uniqueIndex:idx_milk_business_date,priority:1" json:"business_id"`
	SessionDate string            `gorm:"size:10;not null;uniqueIndex:idx_milk_business_date,priority:2" json:"session_date"`
	Status      MilkSessionStatus `gorm:"size:20;not null" json:"status"`
	Result      SessionResult     `gorm:"size:20;not null" json:"result"`

	FrontSavedAt    *time.Time `json:"front_saved_at"`
	FrontSavedBy    string     `gorm:"size:100" json:"front_saved_by"`
	BackSavedAt     *time.Time `json:"back_saved_at"`
	BackSavedBy     string     `gorm:"size:100" json:"back_saved_by"`
	DeliverySavedAt *time.Time `json:"delivery_saved_at"`
	DeliverySavedBy string     `gorm:"size:100" json:"delivery_saved_by"`
	OnOrderSavedAt  *time.Time `json:"on_order_saved_at"`
	OnOrderSavedBy  string     `gorm:"size:100" json:"on_order_saved_by"`
	CompletedAt     *time.Time `json:"completed_at"`
	ExpiresAt       time.Time  `json:"expires_at"`

	Entries   []MilkEntry `gorm:"foreignKey:SessionId" json:"entries"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// phaseStampColumns maps a savable phase to its audit stamp columns.
var phaseStampColumns = map[MilkSessionStatus][2]string{
	MilkStatusFrontCount:    {"front_saved_at", "front_saved_by"},
	MilkStatusBackCount:     {"back_saved_at", "back_saved_by"},
	MilkStatusDeliveryCount: {"delivery_saved_at", "delivery_saved_by"},
	MilkStatusOnOrder:       {"on_order_saved_at", "on_order_saved_by"},
}

// StartMilkSession opens today's session and seeds a NULL ledger row for
// every active catalog item. A leftover in-progress session from an
// earlier date is closed as missed first; a second session for the same
// date is a conflict whether or not the first one finished.
func StartMilkSession(ctx context.Context, date string) (*MilkSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if date == "" {
		date = time.Now().UTC().Format(sessionDateLayout)
	}
	if _, err := time.Parse(sessionDateLayout, date); err != nil {
		return nil, utils.NewValidationError("date must be formatted as %s", sessionDateLayout)
	}

	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, utils.NewValidationError("no active items to count")
	}

	// Best-effort cross-instance guard; the unique index on
	// business+date is the real authority.
	if locker := config.GetRedisLock(); locker != nil {
		lock, lockErr := locker.Obtain(ctx, "milk-session-start:"+businessId, 10*time.Second, nil)
		if lockErr == redislock.ErrNotObtained {
			return nil, utils.NewConflictError("a milk count is already being started")
		}
		if lockErr == nil {
			defer lock.Release(context.Background())
		}
	}

	db := config.GetDB()
	session := MilkSession{
		BusinessId:  businessId,
		SessionDate: date,
		Status:      MilkStatusFrontCount,
		Result:      SessionResultInProgress,
		ExpiresAt:   endOfSessionDate(date),
	}

	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	// Close abandoned sessions from earlier dates; their partial ledger
	// is archived as-is.
	if err := tx.Model(&MilkSession{}).
		Where("business_id = ? AND session_date < ? AND status <> ?", businessId, date, MilkStatusCompleted).
		Updates(map[string]interface{}{
			"status": MilkStatusCompleted,
			"result": SessionResultMissed,
		}).Error; err != nil {
		return nil, err
	}

	var count int64
	if err := tx.Model(&MilkSession{}).
		Where("business_id = ? AND session_date = ?", businessId, date).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.NewConflictError("a milk count already exists for %s", date)
	}

	if err := tx.Create(&session).Error; err != nil {
		return nil, err
	}

	entries := make([]MilkEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, MilkEntry{SessionId: session.ID, ItemId: item.ID})
	}
	if err := tx.Omit("Item").Create(&entries).Error; err != nil {
		return nil, err
	}

	if err := createHistory(tx, "*START*", session.ID, SessionTypeMilk, nil, session, "started milk count "+date); err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	session.Entries = entries
	return &session, nil
}

// GetActiveMilkSession returns the in-progress session, or
// ErrorRecordNotFound when every session is archived.
func GetActiveMilkSession(ctx context.Context) (*MilkSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var session MilkSession
	err := db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("milk_entries.item_id") }).
		Preload("Entries.Item").
		Where("business_id = ? AND status <> ?", businessId, MilkStatusCompleted).
		Order("session_date DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	// A leftover session from an earlier day reads as missed; the row is
	// only closed when the next session starts.
	if time.Now().UTC().After(session.ExpiresAt) {
		session.Result = SessionResultMissed
	}
	return &session, nil
}

func GetMilkSession(ctx context.Context, id int) (*MilkSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	var session MilkSession
	err := db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("milk_entries.item_id") }).
		Preload("Entries.Item").
		Where("business_id = ?", businessId).
		First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetMilkSessionSummary derives the per-item totals and order amounts for
// one session against the current catalog.
func GetMilkSessionSummary(ctx context.Context, id int) ([]*MilkItemSummary, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	session, err := GetMilkSession(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := listActiveCountItems(ctx, businessId)
	if err != nil {
		return nil, err
	}

	entries := make([]*MilkEntry, 0, len(session.Entries))
	for i := range session.Entries {
		entries = append(entries, &session.Entries[i])
	}
	return BuildMilkSummary(items, entries), nil
}

// SaveMilkPhase persists one phase's values and advances the session, all
// in one transaction: the per-item upserts, the saved-at/saved-by stamp,
// the status change, and on the final phase the archive plus the outbox
// event. Saving a phase the session already passed is a conflict (another
// device got there first); saving a phase it has not reached is invalid.
func SaveMilkPhase(ctx context.Context, id int, phase MilkSessionStatus, entries []PhaseEntryInput) (*MilkSession, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	userName, _ := utils.GetUserNameFromContext(ctx)

	if phase.PhaseIndex() < 0 || phase.IsTerminal() {
		return nil, utils.NewValidationError("unknown phase %s", phase)
	}
	if err := validatePhaseEntries(entries, phase); err != nil {
		return nil, err
	}

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	defer tx.Rollback()

	var session MilkSession
	err := tx.Where("business_id = ?", businessId).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	if session.Status.IsTerminal() {
		return nil, utils.NewValidationError("milk count for %s is already completed", session.SessionDate)
	}
	// An expired session reads as missed and is not resumable.
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, utils.NewValidationError("milk count for %s was missed and is read-only", session.SessionDate)
	}
	if phase.PhaseIndex() < session.Status.PhaseIndex() {
		return nil, utils.NewConflictError("%s was already saved", phase)
	}
	if phase.PhaseIndex() > session.Status.PhaseIndex() {
		return nil, utils.NewValidationError("cannot save %s before %s", phase, session.Status)
	}

	if len(entries) > 0 {
		var seededIds []int
		if err := tx.Model(&MilkEntry{}).Where("session_id = ?", session.ID).Pluck("item_id", &seededIds).Error; err != nil {
			return nil, err
		}
		seeded := make(map[int]bool, len(seededIds))
		for _, id := range seededIds {
			seeded[id] = true
		}
		for _, input := range entries {
			if !seeded[input.ItemId] {
				return nil, utils.ErrorRecordNotFound
			}
		}

		rows := make([]MilkEntry, 0, len(entries))
		for _, input := range entries {
			row := MilkEntry{SessionId: session.ID, ItemId: input.ItemId}
			switch phase {
			case MilkStatusFrontCount:
				row.FrontCount = input.Value
			case MilkStatusBackCount:
				row.BackCount = input.Value
			case MilkStatusDeliveryCount:
				row.DeliveryValue = input.Value
				row.DeliveryMethod = DeliveryMethodCount
				if input.DeliveryMethod != nil {
					row.DeliveryMethod = *input.DeliveryMethod
				}
			case MilkStatusOnOrder:
				row.OnOrderCount = input.Value
			}
			rows = append(rows, row)
		}

		var updateColumns []string
		switch phase {
		case MilkStatusFrontCount:
			updateColumns = []string{"front_count"}
		case MilkStatusBackCount:
			updateColumns = []string{"back_count"}
		case MilkStatusDeliveryCount:
			updateColumns = []string{"delivery_method", "delivery_value"}
		case MilkStatusOnOrder:
			updateColumns = []string{"on_order_count"}
		}
		if err := tx.Omit("Item").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns(updateColumns),
		}).Create(&rows).Error; err != nil {
			return nil, err
		}
	}

	next, err := session.Status.Next()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	stamps := phaseStampColumns[phase]
	updates := map[string]interface{}{
		"status":  next,
		stamps[0]: &now,
		stamps[1]: userName,
	}
	if next.IsTerminal() {
		updates["result"] = SessionResultCompleted
		updates["completed_at"] = &now
	}
	if err := tx.Model(&session).Updates(updates).Error; err != nil {
		return nil, err
	}

	if next.IsTerminal() {
		items, err := listActiveCountItems(ctx, businessId)
		if err != nil {
			return nil, err
		}
		var ledger []*MilkEntry
		if err := tx.Where("session_id = ?", session.ID).Order("item_id").Find(&ledger).Error; err != nil {
			return nil, err
		}
		summary := BuildMilkSummary(items, ledger)
		if err := createSessionEvent(tx, businessId, session.ID, SessionTypeMilk, SessionEventMilkCompleted, summary); err != nil {
			return nil, err
		}
		if err := createHistory(tx, "*COMPLETE*", session.ID, SessionTypeMilk, nil, session, "completed milk count "+session.SessionDate); err != nil {
			return nil, err
		}
	} else {
		if err := createHistory(tx, "*SAVE*", session.ID, SessionTypeMilk, nil, session, "saved "+string(phase)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	return GetMilkSession(ctx, session.ID)
}

type MilkSessionEdge struct {
	Cursor string       `json:"cursor"`
	Node   *MilkSession `json:"node"`
}

type MilkSessionConnection struct {
	Edges    []*MilkSessionEdge `json:"edges"`
	PageInfo *PageInfo          `json:"pageInfo"`
}

// PaginateMilkSessionHistory lists archived sessions newest first with a
// composite (date, id) cursor.
func PaginateMilkSessionHistory(ctx context.Context, limit int, after *string) (*MilkSessionConnection, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	db := config.GetDB()
	query := db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB { return db.Order("milk_entries.item_id") }).
		Preload("Entries.Item").
		Where("business_id = ? AND status = ?", businessId, MilkStatusCompleted)

	cursorDate, cursorId := DecodeCompositeCursor(after)
	if cursorDate != "" {
		query = query.Where("session_date < ? OR (session_date = ? AND id < ?)", cursorDate, cursorDate, cursorId)
	}

	var sessions []*MilkSession
	if err := query.Order("session_date DESC, id DESC").Limit(limit + 1).Find(&sessions).Error; err != nil {
		return nil, err
	}

	hasNext := len(sessions) > limit
	if hasNext {
		sessions = sessions[:limit]
	}

	edges := make([]*MilkSessionEdge, 0, len(sessions))
	for _, session := range sessions {
		edges = append(edges, &MilkSessionEdge{
			Cursor: EncodeCompositeCursor(session.SessionDate, session.ID),
			Node:   session,
		})
	}

	pageInfo := &PageInfo{HasNextPage: &hasNext}
	if len(edges) > 0 {
		pageInfo.StartCursor = edges[0].Cursor
		pageInfo.EndCursor = edges[len(edges)-1].Cursor
	}

	return &MilkSessionConnection{Edges: edges, PageInfo: pageInfo}, nil
}
