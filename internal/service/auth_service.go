package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/snipapp/snip-server/internal/model"
	"github.com/snipapp/snip-server/internal/repository"
	"github.com/snipapp/snip-server/internal/token"
)

type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*model.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context, userID string) (*model.User, error)
	UpdatePreferences(ctx context.Context, userID string, patch repository.PreferencesPatch) (*model.User, error)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyExists = errors.New("email already exists")
)

type authService struct {
	userRepo repository.UserRepository
	logger   *zap.Logger
}

func NewAuthService(userRepo repository.UserRepository) AuthService {
	return &authService{
		userRepo: userRepo,
		logger:   zap.L().With(zap.String("component", "AuthService")),
	}
}

func (s *authService) Register(ctx context.Context, name, email, password string) (*model.User, string, error) {
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(passwordHash),
		Preferences:  model.DefaultPreferences(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, "", ErrEmailAlreadyExists
		}
		s.logger.Error("Failed to create user", zap.Error(err))
		return nil, "", err
	}

	tokenString, err := token.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, tokenString, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil || user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	tokenString, err := token.GenerateToken(user.ID)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func (s *authService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *authService) UpdatePreferences(ctx context.Context, userID string, patch repository.PreferencesPatch) (*model.User, error) {
	return s.userRepo.UpdatePreferences(ctx, userID, patch)
}
