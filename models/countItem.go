package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
)

// CountItem is one countable catalog item. Par is the administrator-set
// target stock level; DisplayOrder is a total order per business used for
// deterministic tie-breaks in validation results.
type CountItem struct {
	ID           int       `gorm:"primary_key" json:"id"`
	BusinessId   string    `gorm:"index;not null" json:"business_id"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Category     string    `gorm:"size:100" json:"category"`
	Icon         string    `gorm:"size:100" json:"icon"`
	Par          int       `gorm:"not null;default:0" json:"par"`
	DisplayOrder int       `gorm:"not null;default:0" json:"display_order"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCountItem struct {
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category"`
	Icon         string `json:"icon"`
	Par          int    `json:"par"`
	DisplayOrder int    `json:"display_order"`
}

func (item CountItem) GetId() int {
	return item.ID
}

func (item CountItem) GetBusinessId() string {
	return item.BusinessId
}

func (item CountItem) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[CountItem](item.ID)
}

func (item CountItem) RemoveAllRedis() error {
	return utils.RemoveRedisList[CountItem](item.BusinessId)
}

// validate input for both create & update. (id = 0 for create)
func (input *NewCountItem) validate(ctx context.Context, businessId string, id int) error {
	if input.Par < 0 || input.Par > MaxMeasurement {
		return utils.NewValidationError("par must be between 0 and %d", MaxMeasurement)
	}
	if err := utils.ValidateUnique[CountItem](ctx, businessId, "name", input.Name, id); err != nil {
		return err
	}
	if err := utils.ValidateUnique[CountItem](ctx, businessId, "display_order", input.DisplayOrder, id); err != nil {
		return err
	}
	return nil
}

func CreateCountItem(ctx context.Context, input *NewCountItem) (*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	item := CountItem{
		BusinessId:   businessId,
		Name:         input.Name,
		Category:     input.Category,
		Icon:         input.Icon,
		Par:          input.Par,
		DisplayOrder: input.DisplayOrder,
		IsActive:     utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, err
	}
	if err := item.RemoveAllRedis(); err != nil {
		return nil, err
	}

	return &item, nil
}

func UpdateCountItem(ctx context.Context, id int, input *NewCountItem) (*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	item, err := utils.FetchModel[CountItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&item).Updates(map[string]interface{}{
		"Name":         input.Name,
		"Category":     input.Category,
		"Icon":         input.Icon,
		"Par":          input.Par,
		"DisplayOrder": input.DisplayOrder,
	}).Error; err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*item); err != nil {
		return nil, err
	}

	return item, nil
}

// DeleteCountItem removes an item from the catalog. Historical ledger
// entries keep referencing the id; only deactivation is reversible.
func DeleteCountItem(ctx context.Context, id int) (*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	item, err := utils.FetchModel[CountItem](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err = db.WithContext(ctx).Delete(&item).Error; err != nil {
		return nil, err
	}
	if err := RemoveRedisBoth(*item); err != nil {
		return nil, err
	}
	return item, nil
}

func ToggleActiveCountItem(ctx context.Context, id int, isActive bool) (*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return ToggleActiveModel[CountItem](ctx, businessId, id, isActive)
}

func GetCountItem(ctx context.Context, id int) (*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[CountItem](ctx, businessId, id)
}

// ListCountItems returns every item for the business ordered by
// display_order, redis-cached.
func ListCountItems(ctx context.Context) ([]*CountItem, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	results, err := utils.RetrieveRedisList[CountItem](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModelsWhere[CountItem](ctx, businessId, "display_order", "1 = 1")
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[CountItem](results, businessId); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// listActiveCountItems bypasses the cache; validation reads the ledger and
// the catalog in the same transaction.
func listActiveCountItems(ctx context.Context, businessId string) ([]*CountItem, error) {
	return utils.FetchAllModelsWhere[CountItem](ctx, businessId, "display_order", "is_active = ?", true)
}
