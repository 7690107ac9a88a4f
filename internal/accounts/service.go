// Package accounts provides username/password credential management for
// persons.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/rbac"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
	"github.com/BubbatheVTOG/b404.be-sub000/internal/util"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any username/password mismatch so the
// response never reveals which half was wrong.
var ErrBadCredentials = errors.New("invalid username or password")

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = errors.New("username already registered")

// ErrInvalidInput marks rejected person details so callers can tell a bad
// request apart from a storage fault.
var ErrInvalidInput = errors.New("invalid person details")

// PersonStore defines the storage surface the account service needs.
type PersonStore interface {
	GetPersonByID(ctx context.Context, personID string) (store.Person, error)
	GetPersonByUsername(ctx context.Context, username string) (store.Person, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	InsertPerson(ctx context.Context, person store.Person) error
	UpdatePerson(ctx context.Context, person store.Person) error
	UpdatePersonPassword(ctx context.Context, personID, passwordHash string) error
}

type Service struct {
	store PersonStore
}

func NewService(personStore PersonStore) *Service {
	return &Service{store: personStore}
}

// RegisterRequest contains the fields needed to create a person.
type RegisterRequest struct {
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	Title       string
	AccessLevel string
	CompanyIDs  []string
}

// Register creates a person with a bcrypt-hashed password. Unknown access
// levels fall back to the external customer level rather than failing open.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (store.Person, error) {
	if req.Username == "" || req.Password == "" {
		return store.Person{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if req.FirstName == "" || req.LastName == "" {
		return store.Person{}, fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return store.Person{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	taken, err := s.store.UsernameExists(ctx, req.Username)
	if err != nil {
		return store.Person{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return store.Person{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Person{}, fmt.Errorf("hash password: %w", err)
	}

	person := store.Person{
		ID:           util.NewID("per"),
		Username:     req.Username,
		PasswordHash: string(hash),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Title:        req.Title,
		AccessLevel:  string(rbac.Normalize(req.AccessLevel)),
		CompanyIDs:   req.CompanyIDs,
	}
	if err := s.store.InsertPerson(ctx, person); err != nil {
		return store.Person{}, fmt.Errorf("create person: %w", err)
	}
	person.PasswordHash = ""
	return person, nil
}

// VerifyCredentials checks a username/password pair and returns the matching
// person. Any failure surfaces as ErrBadCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, username, password string) (store.Person, error) {
	if username == "" || password == "" {
		return store.Person{}, ErrBadCredentials
	}
	person, err := s.store.GetPersonByUsername(ctx, username)
	if err != nil {
		return store.Person{}, ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(person.PasswordHash), []byte(password)); err != nil {
		return store.Person{}, ErrBadCredentials
	}
	person.PasswordHash = ""
	return person, nil
}

// UpdateProfile rewrites a person's mutable fields. A username change is
// checked for uniqueness first.
func (s *Service) UpdateProfile(ctx context.Context, person store.Person) error {
	current, err := s.store.GetPersonByID(ctx, person.ID)
	if err != nil {
		return err
	}
	if person.Username != current.Username {
		taken, err := s.store.UsernameExists(ctx, person.Username)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return ErrUsernameTaken
		}
	}
	person.AccessLevel = string(rbac.Normalize(person.AccessLevel))
	return s.store.UpdatePerson(ctx, person)
}

// ChangePassword rotates a person's own password after verifying the
// current one.
func (s *Service) ChangePassword(ctx context.Context, personID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	person, err := s.store.GetPersonByID(ctx, personID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(person.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrBadCredentials
	}
	return s.setPassword(ctx, personID, newPassword)
}

// SetPassword overwrites a password without checking the old one, for the
// administrator reset path.
func (s *Service) SetPassword(ctx context.Context, personID, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	return s.setPassword(ctx, personID, newPassword)
}

func (s *Service) setPassword(ctx context.Context, personID, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePersonPassword(ctx, personID, string(hash))
}
