// Package users stores accounts keyed by email.
package users

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/saba/internal/recordstore"
)

var (
	ErrInvalidSignup      = errors.New("invalid signup")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLen = 6

// User is an account. PasswordHash is an unsalted SHA-256 hex digest stored
// under "password", which is weak against offline guessing; accounts created
// by older clients use the same scheme so it is kept for login compatibility.
type User struct {
	ID           string                `json:"id"`
	Email        string                `json:"email"`
	PasswordHash string                `json:"password"`
	Name         string                `json:"name"`
	CreatedAt    recordstore.Timestamp `json:"createdAt"`
}

// Public is the part of a User returned to clients.
type Public struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u User) Public() Public {
	return Public{ID: u.ID, Email: u.Email, Name: u.Name}
}

type Signup struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (s Signup) validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Email) == "" || s.Password == "":
		return fmt.Errorf("%w: name, email and password are required", ErrInvalidSignup)
	case !emailPattern.MatchString(strings.TrimSpace(s.Email)):
		return fmt.Errorf("%w: invalid email format", ErrInvalidSignup)
	case len(s.Password) < minPasswordLen:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, minPasswordLen)
	case s.ConfirmPassword != "" && s.ConfirmPassword != s.Password:
		return fmt.Errorf("%w: passwords do not match", ErrInvalidSignup)
	}
	return nil
}

type Repository struct {
	store recordstore.Store
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

func NewRepository(store recordstore.Store, log *slog.Logger) *Repository {
	return &Repository{store: store, log: log, now: time.Now}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Create registers a new user. The email must not already be registered.
func (r *Repository) Create(ctx context.Context, in Signup) (User, error) {
	if err := in.validate(); err != nil {
		return User{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := recordstore.LoadCollection[User](ctx, r.store, recordstore.KindUsers, r.log)
	if err != nil {
		return User{}, err
	}
	key := emailKey(in.Email)
	if _, exists := all[key]; exists {
		return User{}, ErrEmailTaken
	}
	now := r.now()
	u := User{
		ID:           recordstore.NewID("user", now),
		Email:        key,
		PasswordHash: hashPassword(in.Password),
		Name:         strings.TrimSpace(in.Name),
		CreatedAt:    recordstore.At(now),
	}
	all[key] = u
	if err := recordstore.SaveCollection(ctx, r.store, recordstore.KindUsers, all); err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Authenticate returns the user when the password matches.
func (r *Repository) Authenticate(ctx context.Context, email, password string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := recordstore.LoadCollection[User](ctx, r.store, recordstore.KindUsers, r.log)
	if err != nil {
		return User{}, err
	}
	u, ok := all[emailKey(email)]
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(u.PasswordHash), []byte(hashPassword(password))) != 1 {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}
