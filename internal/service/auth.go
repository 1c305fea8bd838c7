package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tamamhuda/envlink-api-sub000/internal/models"
	"github.com/tamamhuda/envlink-api-sub000/internal/repository"
	"github.com/tamamhuda/envlink-api-sub000/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("user with this email already exists")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrInvalidToken       = errors.New("invalid or expired verification token")
)

const verificationTTL = 24 * time.Hour

type AuthService struct {
	repo      *repository.UserRepository
	redis     *storage.RedisClient
	jwtSecret []byte // Stored in env (JWT_SECRET)
	jwtExpiry time.Duration
}

func NewAuthService(repo *repository.UserRepository, redis *storage.RedisClient, secret string, expiryHours int) *AuthService {
	return &AuthService{
		repo:      repo,
		redis:     redis,
		jwtSecret: []byte(secret),
		jwtExpiry: time.Duration(expiryHours) * time.Hour,
	}
}

// Creates a new user and issues the initial verification token
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	existingUser, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		Name:         name,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if _, err := s.issueVerificationToken(ctx, user); err != nil {
		// Registration already succeeded; the user can request a resend
		log.Printf("WARN: failed to issue verification token for %s: %v", user.Email, err)
	}

	return user, nil
}

// Authenticates a user and returns a JWT token together with the user
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"exp":     time.Now().Add(s.jwtExpiry).Unix(),
		"iat":     time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, user, nil
}

// Validates a JWT token and return the claims
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifying signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// ResendVerification issues a fresh verification token for an unverified
// user. The route carrying it is cooldown-protected; this method only
// implements the token mechanics.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidCredentials
	}
	if user.IsVerified {
		return ErrAlreadyVerified
	}

	token, err := s.issueVerificationToken(ctx, user)
	if err != nil {
		return err
	}

	// Mail delivery is a separate concern; the token lands in the outbox log
	log.Printf("verification email queued for %s (token %s...)", user.Email, token[:8])
	return nil
}

// VerifyEmail redeems a verification token and marks the user verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	userID, err := s.redis.Get(ctx, verificationKey(token))
	if err != nil {
		return ErrInvalidToken
	}

	if err := s.repo.MarkVerified(ctx, userID); err != nil {
		return err
	}

	// Single use
	return s.redis.Del(ctx, verificationKey(token))
}

func (s *AuthService) issueVerificationToken(ctx context.Context, user *models.User) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(tokenBytes)
	if err := s.redis.Set(ctx, verificationKey(token), user.ID.String(), verificationTTL); err != nil {
		return "", err
	}

	return token, nil
}

func verificationKey(token string) string {
	return fmt.Sprintf("verify:token:%s", token)
}

// Retrieves a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}
