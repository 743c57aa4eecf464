package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pansoNote/internal/auth"
	"pansoNote/internal/database"
)

// AccountStore 维护账号表。
// 每个账号的课程/笔记/图片空间由 userID 隐式划定，注册后天然为空。
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore 构造账号存储。
func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Signup 注册新账号。用户名被占用时返回 ErrAlreadyExists。
// 只保存 bcrypt 哈希，绝不保存明文口令。
func (s *AccountStore) Signup(ctx context.Context, username, password string) (*database.User, error) {
	hashed, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := database.User{
		Username:     username,
		PasswordHash: hashed,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing database.User
		switch err := tx.Where("username = ?", username).First(&existing).Error; {
		case err == nil:
			return ErrAlreadyExists
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("lookup user %q: %w", username, err)
		}

		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user %q: %w", username, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate 校验用户名与口令。
// 用户不存在与密码不匹配返回同一个 ErrInvalidCredentials，外部不可区分。
func (s *AccountStore) Authenticate(ctx context.Context, username, password string) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user %q: %w", username, err)
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}
