package accounts

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type memoryPersonStore struct {
	byID map[string]store.Person
}

func newMemoryPersonStore() *memoryPersonStore {
	return &memoryPersonStore{byID: map[string]store.Person{}}
}

func (m *memoryPersonStore) GetPersonByID(_ context.Context, personID string) (store.Person, error) {
	person, ok := m.byID[personID]
	if !ok {
		return store.Person{}, sql.ErrNoRows
	}
	return person, nil
}

func (m *memoryPersonStore) GetPersonByUsername(_ context.Context, username string) (store.Person, error) {
	for _, person := range m.byID {
		if person.Username == username {
			return person, nil
		}
	}
	return store.Person{}, sql.ErrNoRows
}

func (m *memoryPersonStore) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, person := range m.byID {
		if person.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryPersonStore) InsertPerson(_ context.Context, person store.Person) error {
	m.byID[person.ID] = person
	return nil
}

func (m *memoryPersonStore) UpdatePerson(_ context.Context, person store.Person) error {
	current, ok := m.byID[person.ID]
	if !ok {
		return sql.ErrNoRows
	}
	person.PasswordHash = current.PasswordHash
	m.byID[person.ID] = person
	return nil
}

func (m *memoryPersonStore) UpdatePersonPassword(_ context.Context, personID, passwordHash string) error {
	person, ok := m.byID[personID]
	if !ok {
		return sql.ErrNoRows
	}
	person.PasswordHash = passwordHash
	m.byID[personID] = person
	return nil
}

func validRegister() RegisterRequest {
	return RegisterRequest{
		Username:    "jdoe",
		Password:    "correct horse battery",
		FirstName:   "Jordan",
		LastName:    "Doe",
		AccessLevel: "coordinator",
	}
}

func TestRegisterAndVerify(t *testing.T) {
	persons := newMemoryPersonStore()
	svc := NewService(persons)
	ctx := context.Background()

	person, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if person.PasswordHash != "" {
		t.Error("Register leaked the password hash")
	}
	if person.AccessLevel != "coordinator" {
		t.Errorf("access level = %q, want coordinator", person.AccessLevel)
	}

	got, err := svc.VerifyCredentials(ctx, "jdoe", "correct horse battery")
	if err != nil {
		t.Fatalf("VerifyCredentials: %v", err)
	}
	if got.ID != person.ID {
		t.Errorf("verified wrong person: %s", got.ID)
	}

	stored := persons.byID[person.ID]
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct horse battery")); err != nil {
		t.Error("stored hash does not match the password")
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc := NewService(newMemoryPersonStore())
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(ctx, validRegister()); err == nil {
		t.Error("expected duplicate username error")
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(newMemoryPersonStore())
	req := validRegister()
	req.Password = "short"
	if _, err := svc.Register(context.Background(), req); err == nil {
		t.Error("expected short password error")
	}
}

func TestRegisterNormalizesUnknownAccessLevel(t *testing.T) {
	svc := NewService(newMemoryPersonStore())
	req := validRegister()
	req.AccessLevel = "superuser"
	person, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if person.AccessLevel != "customer" {
		t.Errorf("access level = %q, want customer", person.AccessLevel)
	}
}

func TestVerifyCredentialsFailsClosed(t *testing.T) {
	persons := newMemoryPersonStore()
	svc := NewService(persons)
	ctx := context.Background()

	if _, err := svc.Register(ctx, validRegister()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	cases := []struct{ username, password string }{
		{"jdoe", "wrong password!"},
		{"nobody", "correct horse battery"},
		{"", ""},
	}
	for _, tc := range cases {
		if _, err := svc.VerifyCredentials(ctx, tc.username, tc.password); !errors.Is(err, ErrBadCredentials) {
			t.Errorf("VerifyCredentials(%q, ...) = %v, want ErrBadCredentials", tc.username, err)
		}
	}
}

func TestChangePassword(t *testing.T) {
	persons := newMemoryPersonStore()
	svc := NewService(persons)
	ctx := context.Background()

	person, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.ChangePassword(ctx, person.ID, "wrong password!", "a new passphrase"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("ChangePassword with wrong current = %v, want ErrBadCredentials", err)
	}
	if err := svc.ChangePassword(ctx, person.ID, "correct horse battery", "a new passphrase"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "jdoe", "a new passphrase"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := svc.VerifyCredentials(ctx, "jdoe", "correct horse battery"); err == nil {
		t.Error("old password still accepted")
	}
}

func TestUpdateProfileUsernameCollision(t *testing.T) {
	persons := newMemoryPersonStore()
	svc := NewService(persons)
	ctx := context.Background()

	first, err := svc.Register(ctx, validRegister())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second := validRegister()
	second.Username = "asmith"
	if _, err := svc.Register(ctx, second); err != nil {
		t.Fatalf("Register second: %v", err)
	}

	first.Username = "asmith"
	if err := svc.UpdateProfile(ctx, first); err == nil {
		t.Error("expected username collision error")
	}
}
