package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"ImageInsightServer/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// UserStore persists credentials. GetByEmail returns nil, nil when no user
// matches; Insert returns model.ErrDuplicate when the email is taken.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Insert(ctx context.Context, u *model.User) error
}

type Credentials struct {
	users  UserStore
	hasher *Hasher
	tokens *TokenService
	log    *zap.Logger
	// dummy is verified against when the email is unknown so both failure
	// paths cost one hash.
	dummy []byte
}

func NewCredentials(users UserStore, hasher *Hasher, tokens *TokenService, log *zap.Logger) *Credentials {
	if log == nil {
		log = zap.NewNop()
	}
	return &Credentials{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		log:    log,
		dummy:  hasher.Hash(uuid.NewString()),
	}
}

func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// Register validates and stores a new credential, returning its user ID.
func (c *Credentials) Register(ctx context.Context, email, password, confirmation string) (string, error) {
	if email == "" || password == "" || confirmation == "" {
		return "", &ValidationError{Message: "email, password and password confirmation are required"}
	}
	if !ValidEmail(email) {
		return "", &ValidationError{Message: "invalid email"}
	}
	if password != confirmation {
		return "", &ValidationError{Message: "passwords do not match"}
	}

	existing, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return "", ErrDuplicateEmail
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: c.hasher.Hash(password),
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.users.Insert(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicate) {
			return "", ErrDuplicateEmail
		}
		return "", fmt.Errorf("insert user: %w", err)
	}
	c.log.Info("user registered", zap.String("user_id", user.ID))
	return user.ID, nil
}

// Login checks the password and issues a session token. Unknown emails and
// wrong passwords both yield ErrInvalidCredentials.
func (c *Credentials) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", &ValidationError{Message: "email and password are required"}
	}
	user, err := c.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		c.hasher.Verify(password, c.dummy)
		return "", ErrInvalidCredentials
	}
	if !c.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := c.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	c.log.Info("user logged in", zap.String("user_id", user.ID))
	return token, nil
}
