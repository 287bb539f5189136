package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/domain"
	"github.com/vedran77/parley/internal/repository"
	"github.com/vedran77/parley/pkg/apperr"
	"golang.org/x/crypto/argon2"
)

var (
	ErrEmailTaken         = apperr.Conflict("Email is already registered")
	ErrUsernameExhausted  = apperr.Conflict("Too many users share this username, pick another")
	ErrInvalidCreds       = apperr.Unauthenticated("Invalid email or password")
	ErrInvalidToken       = apperr.Unauthenticated("Invalid or expired token")
	ErrUnknownSessionUser = apperr.Unauthenticated("Session user no longer exists")
)

const (
	tokenTTL              = 24 * time.Hour
	discriminatorAttempts = 20
)

type AuthService struct {
	txm          repository.TxManager
	userRepo     repository.UserRepository
	settingsRepo repository.SettingsRepository
	jwtSecret    []byte
}

func NewAuthService(txm repository.TxManager, userRepo repository.UserRepository, settingsRepo repository.SettingsRepository, jwtSecret string) *AuthService {
	return &AuthService{
		txm:          txm,
		userRepo:     userRepo,
		settingsRepo: settingsRepo,
		jwtSecret:    []byte(jwtSecret),
	}
}

type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Username    string `json:"username" validate:"required,min=2,max=32,username"`
	DisplayName string `json:"display_name" validate:"required,min=1,max=64"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"access_token"`
}

// Register creates the user with a free discriminator and their default
// settings row.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	var user *domain.User
	err = s.txm.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.userRepo.GetByEmail(ctx, input.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrEmailTaken
		}

		disc, err := s.freeDiscriminator(ctx, input.Username)
		if err != nil {
			return err
		}

		now := time.Now()
		user = &domain.User{
			ID:            uuid.New(),
			Email:         strings.ToLower(input.Email),
			Username:      input.Username,
			DisplayName:   input.DisplayName,
			Discriminator: disc,
			PasswordHash:  hash,
			Status:        "offline",
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return fmt.Errorf("creating user: %w", err)
		}

		settings := domain.DefaultSettings(user.ID)
		settings.UpdatedAt = now
		if err := s.settingsRepo.Upsert(ctx, settings); err != nil {
			return fmt.Errorf("creating settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

func (s *AuthService) freeDiscriminator(ctx context.Context, username string) (string, error) {
	for range discriminatorAttempts {
		n, err := rand.Int(rand.Reader, big.NewInt(9999))
		if err != nil {
			return "", err
		}
		disc := fmt.Sprintf("%04d", n.Int64()+1)
		taken, err := s.userRepo.GetByTag(ctx, username, disc)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return disc, nil
		}
	}
	return "", ErrUsernameExhausted
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCreds
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCreds
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}

	return &AuthResponse{User: user, AccessToken: token}, nil
}

// ParseToken validates an access token and returns its subject.
func (s *AuthService) ParseToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// Authenticate resolves the caller behind a token.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	userID, err := s.ParseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnknownSessionUser
	}
	return user, nil
}

func (s *AuthService) generateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)

	return fmt.Sprintf("%s:%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyPassword(password, encoded string) bool {
	saltB64, hashB64, ok := strings.Cut(encoded, ":")
	if !ok {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(hashB64)
	if err != nil {
		return false
	}

	hash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	return subtle.ConstantTimeCompare(hash, expectedHash) == 1
}
