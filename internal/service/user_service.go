package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/d60-Lab/postboard/internal/model"
	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/auth"
	"github.com/d60-Lab/postboard/pkg/logger"
)

type RegisterInput struct {
	Email        string `json:"email" binding:"required,email"`
	Nickname     string `json:"nickname" binding:"required,min=2,max=64"`
	Password     string `json:"password" binding:"required,min=8,max=72"`
	ProfileImage string `json:"profile_image" binding:"omitempty,url"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type UserService struct {
	users  repository.UserRepository
	tokens *auth.Manager
	log    *zap.Logger
}

func NewUserService(users repository.UserRepository, tokens *auth.Manager, log *zap.Logger) *UserService {
	if log == nil {
		log = logger.L()
	}
	return &UserService{users: users, tokens: tokens, log: log.With(zap.String("component", "user"))}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Nickname:     in.Nickname,
		Password:     string(hash),
		ProfileImage: in.ProfileImage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	return s.issue(u)
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.Email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(in.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(u)
}

func (s *UserService) issue(u *model.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Token: token}, nil
}
