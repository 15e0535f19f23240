package service

import (
	"context"
	"errors"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/distcalc/orchestrator/internal/config"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/internal/store/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	store store.Store
	cfg   config.Auth
	cost  int
	log   *zap.SugaredLogger
}

func NewUserService(store store.Store, cfg config.Auth) *UserService {
	return &UserService{
		store: store,
		cfg:   cfg,
		cost:  bcrypt.DefaultCost,
		log:   zap.S().Named("user_service"),
	}
}

// WithCost sets the bcrypt cost of new password hashes.
func (s *UserService) WithCost(cost int) *UserService {
	s.cost = cost
	return s
}

func (s *UserService) Register(ctx context.Context, login, password string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	user, err := s.store.User().Create(ctx, model.User{Login: login, Password: string(hash)})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrUserExists(login)
		}
		return nil, err
	}

	s.log.Infow("user registered", "login", login, "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and returns a signed token.
func (s *UserService) Login(ctx context.Context, login, password string) (string, error) {
	user, err := s.store.User().GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", NewErrInvalidCredentials()
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", NewErrInvalidCredentials()
	}

	return auth.GenerateToken([]byte(s.cfg.SecretKey), s.cfg.TokenTTL, user.ID, user.Login)
}

func (s *UserService) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	user, err := s.store.User().GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrUserNotFound(login)
		}
		return nil, err
	}
	return user, nil
}
