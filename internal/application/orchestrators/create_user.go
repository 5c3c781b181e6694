package orchestrators

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	userStore "wikimasters/internal/adapters/storage/user"
	"wikimasters/internal/domain/user"
)

// UserStoreForCreate defines the store interface needed by CreateUser.
type UserStoreForCreate interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Save(ctx context.Context, u user.User) error
	Count(ctx context.Context) (int, error)
}

// CreateUserInput carries input for the orchestrator.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
}

// CreateUserDeps holds dependencies for CreateUser.
type CreateUserDeps struct {
	UserStore  UserStoreForCreate
	GenerateID func() string
	Now        func() time.Time
}

var ErrEmailAlreadyExists = errors.New("a user with this email already exists")

// ExecuteCreateUser coordinates user creation.
// PRE: Valid email, password >= 12 chars
// POST: User created with hashed password
// INVARIANT: Email must be unique
func ExecuteCreateUser(ctx context.Context, input CreateUserInput, deps CreateUserDeps) (string, error) {
	email := strings.TrimSpace(input.Email)

	_, err := deps.UserStore.GetByEmail(ctx, email)
	if err == nil {
		return "", ErrEmailAlreadyExists
	}
	if !errors.Is(err, userStore.ErrNotFound) {
		return "", err
	}

	u := user.User{
		ID:        deps.GenerateID(),
		Email:     email,
		Name:      strings.TrimSpace(input.Name),
		CreatedAt: deps.Now(),
	}
	if err := u.Validate(); err != nil {
		return "", err
	}
	if err := u.SetPassword(input.Password); err != nil {
		return "", err
	}
	if err := deps.UserStore.Save(ctx, u); err != nil {
		return "", err
	}

	slog.Info("auth_event", "event", "user_created", "email", email)
	return u.ID, nil
}

// ExecuteSeedAdmin creates the first user if the users table is empty.
// PRE: Database is initialized
// POST: User created if count == 0; no-op when email is empty
func ExecuteSeedAdmin(ctx context.Context, deps CreateUserDeps, email, password string) error {
	if email == "" {
		return nil
	}
	count, err := deps.UserStore.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if _, err := ExecuteCreateUser(ctx, CreateUserInput{Email: email, Name: "Admin", Password: password}, deps); err != nil {
		return err
	}

	slog.Info("auth_event", "event", "admin_seeded", "email", email)
	return nil
}
