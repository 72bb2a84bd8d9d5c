package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"math/rand"
	"strconv"

	"chatrelay/internal/auth"
	"chatrelay/internal/cache"
	"chatrelay/internal/models"
	"chatrelay/internal/store"

	"github.com/rs/zerolog/log"
)

// UserService 封装注册与登录。
type UserService struct {
	store  store.Identities
	cache  *cache.SessionCache
	secret string
}

func NewUserService(s store.Identities, c *cache.SessionCache, secret string) *UserService {
	return &UserService{store: s, cache: c, secret: secret}
}

// Register 注册新身份。login 已被占用时返回 ErrAlreadyExists 且不创建任何记录。
func (s *UserService) Register(ctx context.Context, login, password string) (*models.User, error) {
	if login == "" || password == "" {
		return nil, ErrInvalidInput
	}
	_, err := s.store.FindByLogin(ctx, login)
	if err == nil {
		return nil, ErrAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{Login: login, PasswordHash: hash}
	if err := s.store.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	return user, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	User      *models.User
	Session   string
	ChatToken string
}

// Login 校验登录名与密码，写入会话缓存并签发会话凭证与聊天 token。
// 失败时不签发任何 token。
func (s *UserService) Login(ctx context.Context, login, password string) (*LoginResult, error) {
	if login == "" || password == "" {
		return nil, ErrInvalidInput
	}
	user, err := s.store.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrNotFound
	}
	if err := s.cache.Put(ctx, cache.Key(user.ID), user); err != nil {
		log.Warn().Err(err).Uint("user_id", user.ID).Msg("login session cache put")
	}
	session, err := auth.GenerateSession(user.ID, s.secret, s.cache.TTL())
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Session: session, ChatToken: ChatToken(login)}, nil
}

// ChatToken 只用于区分聊天页地址，不是安全凭证。
func ChatToken(login string) string {
	sum := sha1.Sum([]byte(login + strconv.Itoa(rand.Intn(1000))))
	return hex.EncodeToString(sum[:])
}
