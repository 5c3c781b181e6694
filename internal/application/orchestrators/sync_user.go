package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	userStore "wikimasters/internal/adapters/storage/user"
	"wikimasters/internal/domain/user"
)

// ErrNotSignedIn is returned when an operation needs a session and there is none.
var ErrNotSignedIn = errors.New("not signed in")

// UserStoreForSync defines the store interface needed by SyncUser.
type UserStoreForSync interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	Save(ctx context.Context, u user.User) error
}

// SyncUserInput carries the identity held by the current session.
type SyncUserInput struct {
	UserID string
	Email  string
	Name   string
}

// SyncUserDeps holds dependencies for SyncUser.
type SyncUserDeps struct {
	UserStore UserStoreForSync
	Now       func() time.Time
}

// ExecuteSyncUser makes sure the session's identity has a users row so articles can join to it.
// PRE: UserID is non-empty
// POST: Row exists with the session's email and name; password and lockout state are preserved
func ExecuteSyncUser(ctx context.Context, input SyncUserInput, deps SyncUserDeps) (user.User, error) {
	if input.UserID == "" {
		return user.User{}, ErrNotSignedIn
	}

	u, err := deps.UserStore.GetByID(ctx, input.UserID)
	created := false
	switch {
	case errors.Is(err, userStore.ErrNotFound):
		u = user.User{ID: input.UserID, CreatedAt: deps.Now()}
		created = true
	case err != nil:
		return user.User{}, fmt.Errorf("load user %s: %w", input.UserID, err)
	}

	if !created && u.Email == input.Email && (input.Name == "" || u.Name == input.Name) {
		return u, nil
	}

	u.Email = input.Email
	if input.Name != "" {
		u.Name = input.Name
	}
	if err := u.Validate(); err != nil {
		return user.User{}, err
	}
	if err := deps.UserStore.Save(ctx, u); err != nil {
		return user.User{}, fmt.Errorf("sync user %s: %w", input.UserID, err)
	}

	slog.Info("auth_event", "event", "user_synced", "user_id", u.ID, "created", created)
	return u, nil
}
