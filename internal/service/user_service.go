package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"Green_Community/internal/model"
	"Green_Community/internal/pkg"
	"Green_Community/internal/repository/mysql"
	"Green_Community/internal/repository/redis"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type UserService struct {
	repo   *mysql.UserRepository
	tokens *redis.TokenStore
	issuer *pkg.TokenIssuer
	logger *zap.Logger
}

func NewUserService(repo *mysql.UserRepository, tokens *redis.TokenStore, issuer *pkg.TokenIssuer, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, tokens: tokens, issuer: issuer, logger: logger.Named("user_service")}
}

func (s *UserService) Register(ctx context.Context, username, password, email string) (*model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(username) < 3 || len(username) > 32 {
		return nil, fmt.Errorf("%w: username must be 3-32 characters", pkg.ErrValidation)
	}
	if len(password) < 6 {
		return nil, fmt.Errorf("%w: password must be at least 6 characters", pkg.ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", pkg.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &model.User{Username: username, Password: string(hash), Email: email}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.Uint64("user_id", user.ID))
	return user, nil
}

// Login 成功后把 access token 写入 redis，旧会话随之失效
func (s *UserService) Login(ctx context.Context, username, password string) (*pkg.Pair, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid username or password", pkg.ErrUnauthorized)
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, fmt.Errorf("%w: invalid username or password", pkg.ErrUnauthorized)
	}

	pair, err := s.issuer.GeneratePair(user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.AddUserToken(ctx, user.ID, pair.AccessToken); err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *UserService) Logout(ctx context.Context, userID uint64) error {
	return s.tokens.DeleteUserToken(ctx, userID)
}

func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*pkg.Pair, error) {
	pair, userID, err := s.issuer.Refresh(refreshToken)
	if err != nil {
		if errors.Is(err, pkg.ErrRefreshExpired) || errors.Is(err, pkg.ErrRefreshInvalid) {
			return nil, fmt.Errorf("%w: %w", pkg.ErrUnauthorized, err)
		}
		return nil, err
	}
	if err := s.tokens.AddUserToken(ctx, userID, pair.AccessToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// Authenticate 校验 access token 并确认它是该用户当前的会话，成功后续期
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (uint64, error) {
	claims, err := s.issuer.ParseAccess(accessToken)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", pkg.ErrUnauthorized, err)
	}

	stored, err := s.tokens.GetUserToken(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, redis.ErrTokenNotFound) {
			return 0, fmt.Errorf("%w: session expired", pkg.ErrUnauthorized)
		}
		return 0, err
	}
	if stored != accessToken {
		return 0, fmt.Errorf("%w: session replaced by a newer login", pkg.ErrUnauthorized)
	}
	if err := s.tokens.ExtendUserToken(ctx, claims.UserID); err != nil {
		s.logger.Warn("extend session failed", zap.Uint64("user_id", claims.UserID), zap.Error(err))
	}
	return claims.UserID, nil
}

func (s *UserService) Get(ctx context.Context, userID uint64) (*model.User, error) {
	return s.repo.FindByID(ctx, userID)
}
