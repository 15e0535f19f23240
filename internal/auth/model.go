package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type tokenKeyType struct{}

var (
	tokenKey tokenKeyType
)

// UserFromContext returns the authenticated user. Nothing is found when
// authentication is disabled.
func UserFromContext(ctx context.Context) (User, bool) {
	val := ctx.Value(tokenKey)
	if val == nil {
		return User{}, false
	}
	return val.(User), true
}

func MustHaveUser(ctx context.Context) User {
	user, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return user
}

func NewTokenContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, tokenKey, u)
}

type User struct {
	ID    uint
	Login string
	Token *jwt.Token
}

// Claims are the claims of the tokens issued at login.
type Claims struct {
	Login  string `json:"login"`
	UserID uint   `json:"userID"`
	jwt.RegisteredClaims
}
