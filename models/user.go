package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/google/uuid"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index" json:"business_id"`
	Username   string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name       string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Password   string    `gorm:"size:255;not null" json:"password"`
	IsActive   *bool     `gorm:"not null" json:"is_active"`
	Role       UserRole  `gorm:"size:1;default:C" json:"role"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	BusinessId string   `json:"business_id"`
	Username   string   `json:"username" binding:"required"`
	Name       string   `json:"name" binding:"required"`
	Password   string   `json:"password" binding:"required"`
	Role       UserRole `json:"role"`
}

type LoginInfo struct {
	Token        string `json:"token"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	BusinessName string `json:"business_name"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

/*
caches:
	User:$username
	Token:$token
	Tokens:$username (set)
*/

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {
	if err := utils.ValidateUnique[User](ctx, "", "username", input.Username, 0); err != nil {
		return nil, err
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = UserRoleStaff
	}
	user := User{
		BusinessId: input.BusinessId,
		Username:   input.Username,
		Name:       input.Name,
		Password:   hashed,
		IsActive:   utils.NewTrue(),
		Role:       role,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	user.PrepareGive()
	return &user, nil
}

func SignIn(ctx context.Context, username string, password string) (*LoginInfo, error) {
	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).Take(&user).Error; err != nil {
		return nil, errors.New("incorrect username or password")
	}
	if user.IsActive == nil || !*user.IsActive {
		return nil, errors.New("user is inactive")
	}
	if err := utils.VerifyPassword(user.Password, password); err != nil {
		return nil, errors.New("incorrect username or password")
	}

	token := uuid.NewString()
	lifespan := utils.GetCacheLifespan() * 24
	if err := config.SetRedisValue("Token:"+token, user.Username, lifespan); err != nil {
		return nil, err
	}
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	_ = config.SetRedisObject("User:"+user.Username, &user, utils.GetCacheLifespan())

	var businessName string
	if user.BusinessId != "" {
		var business Business
		if err := db.WithContext(ctx).Where("id = ?", user.BusinessId).Take(&business).Error; err == nil {
			businessName = business.Name
		}
	}

	return &LoginInfo{
		Token:        token,
		Name:         user.Name,
		Role:         string(user.Role),
		BusinessName: businessName,
	}, nil
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	if err := config.RemoveRedisKey("Token:" + token); err != nil {
		return false, nil
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return false, errors.New("user not found")
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}
