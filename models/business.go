package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"github.com/google/uuid"
)

type Business struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Timezone  string    `gorm:"size:50" json:"timezone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	business := Business{
		ID:       uuid.New(),
		Name:     input.Name,
		Email:    input.Email,
		Timezone: input.Timezone,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}
