package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xtrntr/matchcore/internal/models"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike
var ErrInvalidCredentials = errors.New("invalid credentials")

// OperatorStore looks up reporting API accounts
type OperatorStore interface {
	GetOperatorByUsername(ctx context.Context, username string) (*models.Operator, error)
}

// OperatorWriter is an OperatorStore that can also create accounts
type OperatorWriter interface {
	OperatorStore
	CreateOperator(ctx context.Context, username, passwordHash string) (*models.Operator, error)
}

// Claims identifies the operator a token was issued to
type Claims struct {
	OperatorID int
	Username   string
}

// AuthService issues and verifies operator tokens
type AuthService struct {
	Store  OperatorStore
	Secret []byte
	TTL    time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(store OperatorStore, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthService{Store: store, Secret: []byte(secret), TTL: ttl}
}

// HashPassword validates a new credential pair and returns the bcrypt hash
func HashPassword(username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return "", fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 72 {
		return "", fmt.Errorf("password too long (max 72 characters)")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Register creates an operator with a hashed password. The store must
// implement OperatorWriter.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.Operator, error) {
	w, ok := s.Store.(OperatorWriter)
	if !ok {
		return nil, fmt.Errorf("operator store is read-only")
	}
	hash, err := HashPassword(username, password)
	if err != nil {
		return nil, err
	}
	op, err := w.CreateOperator(ctx, username, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to create operator: %w", err)
	}
	return op, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	op, err := s.Store.GetOperatorByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"operator_id": op.ID,
		"username":    op.Username,
		"exp":         time.Now().Add(s.TTL).Unix(),
	})
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token and returns its claims
func (s *AuthService) ParseToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, fmt.Errorf("invalid token claims")
	}
	if _, ok := claims["exp"]; !ok {
		return Claims{}, fmt.Errorf("token has no expiry")
	}
	id, ok := claims["operator_id"].(float64)
	if !ok {
		return Claims{}, fmt.Errorf("token has no operator_id")
	}
	username, _ := claims["username"].(string)
	return Claims{OperatorID: int(id), Username: username}, nil
}

// StaticStore serves operators from configuration
type StaticStore struct {
	mu        sync.RWMutex
	operators map[string]*models.Operator
	nextID    int
}

// NewStaticStore creates a store holding the given username to hash pairs.
// Ids are assigned in username order.
func NewStaticStore(hashes map[string]string) *StaticStore {
	s := &StaticStore{operators: make(map[string]*models.Operator)}
	names := make([]string, 0, len(hashes))
	for username := range hashes {
		names = append(names, username)
	}
	sort.Strings(names)
	for _, username := range names {
		s.add(username, hashes[username])
	}
	return s
}

func (s *StaticStore) add(username, hash string) *models.Operator {
	s.nextID++
	op := &models.Operator{ID: s.nextID, Username: username, PasswordHash: hash, CreatedAt: time.Now()}
	s.operators[username] = op
	return op
}

func (s *StaticStore) GetOperatorByUsername(ctx context.Context, username string) (*models.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[username]
	if !ok {
		return nil, fmt.Errorf("operator %q not found", username)
	}
	cp := *op
	return &cp, nil
}

func (s *StaticStore) CreateOperator(ctx context.Context, username, passwordHash string) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.operators[username]; exists {
		return nil, fmt.Errorf("operator %q already exists", username)
	}
	op := s.add(username, passwordHash)
	cp := *op
	return &cp, nil
}
