// Package store 提供身份记录的持久化存储。
package store

import (
	"context"
	"errors"

	"chatrelay/internal/models"
)

var (
	ErrNotFound  = errors.New("identity not found")
	ErrDuplicate = errors.New("identity login already exists")
)

// Identities 是身份存储需要提供的能力。login 的唯一性由实现保证，
// 重复创建必须返回 ErrDuplicate。
type Identities interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByLogin(ctx context.Context, login string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
}
