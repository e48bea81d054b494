package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/internal/repository"
	"github.com/d60-Lab/postboard/pkg/auth"
)

func TestRegisterAndLogin(t *testing.T) {
	db := setupDB(t)
	tokens := auth.NewManager("secret", time.Hour)
	svc := NewUserService(repository.NewUserRepository(db), tokens, zap.NewNop())
	ctx := context.Background()

	res, err := svc.Register(ctx, RegisterInput{Email: "Alice@Example.com", Nickname: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEqual(t, "password1", res.User.Password)
	claims, err := tokens.Parse(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)

	_, err = svc.Register(ctx, RegisterInput{Email: "alice@example.com", Nickname: "again", Password: "password2"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	logged, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, logged.User.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
