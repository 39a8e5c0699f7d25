package core

import (
	"context"
	"time"
)

type (
	User struct {
		ID           string    `json:"id"`
		Email        string    `json:"email"`
		Name         string    `json:"name"`
		Subject      string    `json:"-"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// UserStore persists accounts. Emails are stored normalized.
	UserStore interface {
		// CreateUser assigns the user an ID; AlreadyExists if the email is taken.
		CreateUser(ctx context.Context, user *User) error
		FindUserByEmail(ctx context.Context, email string) (*User, error)
		FindUserByID(ctx context.Context, id string) (*User, error)

		// UpsertUserBySubject creates or refreshes the account tied to an
		// external identity.
		UpsertUserBySubject(ctx context.Context, user *User) (*User, error)
	}
)
