package store

import (
	"context"

	"github.com/distcalc/orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type User interface {
	Create(ctx context.Context, user model.User) (*model.User, error)
	GetByLogin(ctx context.Context, login string) (*model.User, error)
}

type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) User {
	return &UserStore{db: db}
}

func (u *UserStore) Create(ctx context.Context, user model.User) (*model.User, error) {
	if err := dbFor(ctx, u.db).Create(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (u *UserStore) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	user := &model.User{}
	if err := dbFor(ctx, u.db).Where("login = ?", login).First(user).Error; err != nil {
		return nil, translate(err)
	}
	return user, nil
}
