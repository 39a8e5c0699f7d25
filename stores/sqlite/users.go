package sqlite

import (
	"car-management/core"
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const userColumns = "id, email, name, COALESCE(subject, ''), COALESCE(password_hash, ''), created_at"

func scanUser(row rowScanner) (*core.User, error) {
	var (
		user      core.User
		createdAt int64
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Subject, &user.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(0, createdAt).UTC()
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *core.User) error {
	user.ID = ulid.Make().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, name, subject, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Name, nullable(user.Subject), nullable(user.PasswordHash), user.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return core.AlreadyExistsf("email %s is already registered", user.Email)
	}
	if err != nil {
		logrus.WithField("email", user.Email).WithError(err).Error("Failed to create user")
		return core.AsStoreError(err, "failed to create user")
	}
	return nil
}

func (s *sqliteStore) findUser(ctx context.Context, where string, arg any) (*core.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where, arg))
	if err == sql.ErrNoRows {
		return nil, core.NotFoundf("user not found")
	}
	if err != nil {
		return nil, core.AsQueryError(err, "failed to get user")
	}
	return user, nil
}

func (s *sqliteStore) FindUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return s.findUser(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *sqliteStore) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *sqliteStore) UpsertUserBySubject(ctx context.Context, user *core.User) (*core.User, error) {
	if user.Subject == "" {
		return nil, core.InvalidArgumentf("subject cannot be empty")
	}
	email := strings.ToLower(strings.TrimSpace(user.Email))

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET email = ?, name = ? WHERE subject = ?", email, user.Name, user.Subject)
	if isUniqueViolation(err) {
		return nil, core.AlreadyExistsf("email %s is already registered", email)
	}
	if err != nil {
		return nil, core.AsStoreError(err, "failed to update user")
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return s.findUser(ctx, "subject = ?", user.Subject)
	}

	created := *user
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	if err := s.CreateUser(ctx, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
