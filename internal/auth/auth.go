package auth

import (
	"net/http"

	"github.com/distcalc/orchestrator/internal/config"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	LocalAuthentication string = config.AuthLocal
	NoneAuthentication  string = config.AuthNone
)

func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case LocalAuthentication:
		return NewLocalAuthenticator([]byte(authConfig.SecretKey))
	default:
		return NewNoneAuthenticator()
	}
}
