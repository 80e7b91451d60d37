package service

import (
	"context"
	"time"

	"pos-backend/internal/apperr"
	"pos-backend/internal/models"
	"pos-backend/internal/redisclient"
	"pos-backend/internal/store"
	"pos-backend/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService authenticates users and manages sessions
type AuthService struct {
	store      *store.Store
	redis      *redisclient.Client
	sessionTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(st *store.Store, redis *redisclient.Client, sessionTTL time.Duration) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = 12 * time.Hour
	}
	return &AuthService{
		store:      st,
		redis:      redis,
		sessionTTL: sessionTTL,
		logger:     util.GetLogger(),
	}
}

// LoginResult carries the session token and the authenticated user
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login verifies credentials and issues a session token
func (a *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, apperr.BadRequest("email and password are required")
	}

	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	token := uuid.New().String()
	if err := a.redis.SetSession(ctx, token, user.ID, a.sessionTTL); err != nil {
		return nil, err
	}

	a.logger.Info("User logged in",
		zap.Int64("user_id", user.ID),
		zap.String("role", user.Role))

	return &LoginResult{Token: token, User: user}, nil
}

// Resolve maps a session token to a user id
func (a *AuthService) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, apperr.Unauthorized("please login first")
	}
	userID, err := a.redis.GetSession(ctx, token)
	if err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, apperr.Unauthorized("please login first")
	}
	return userID, nil
}

// Logout drops the session
func (a *AuthService) Logout(ctx context.Context, token string) error {
	return a.redis.DeleteSession(ctx, token)
}

// Register creates a user with a hashed password
func (a *AuthService) Register(ctx context.Context, name, email, password, role string) (*models.User, error) {
	if name == "" || email == "" || password == "" {
		return nil, apperr.BadRequest("name, email and password are required")
	}
	switch role {
	case models.RoleAdmin, models.RoleCashier, models.RoleManager:
	default:
		return nil, apperr.BadRequest("unknown role: %s", role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
