package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"blog-cms/backend/internal/identity/domain"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestGetByUserAndProvider_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)FROM\s+identities\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+provider\s*=\s*\$2`).
		WithArgs("u1", "local").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "provider", "provider_id", "password_hash", "created_at", "updated_at"}).
			AddRow("i1", "u1", "local", "a@x.com", "$argon2id$...", now, now))

	i, err := repo.GetByUserAndProvider(context.Background(), "u1", domain.IdentityProviderLocal)
	if err != nil {
		t.Fatalf("GetByUserAndProvider: %v", err)
	}
	if i == nil || i.ID != "i1" || i.PasswordHash != "$argon2id$..." || i.Provider != domain.IdentityProviderLocal {
		t.Fatalf("unexpected identity: %+v", i)
	}
}

func TestGetByUserAndProvider_NullHash(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`FROM\s+identities`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "provider", "provider_id", "password_hash", "created_at", "updated_at"}).
			AddRow("i2", "u1", "oidc", "sub-1", nil, now, now))

	i, err := repo.GetByUserAndProvider(context.Background(), "u1", domain.IdentityProviderOIDC)
	if err != nil {
		t.Fatalf("GetByUserAndProvider: %v", err)
	}
	if i.PasswordHash != "" {
		t.Errorf("PasswordHash = %q, want empty", i.PasswordHash)
	}
}

func TestUpdatePasswordHash_NoRows(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`(?s)^UPDATE\s+identities\s+SET\s+password_hash`).
		WithArgs("missing", "h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePasswordHash(context.Background(), "missing", "h")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("UpdatePasswordHash error = %v, want ErrIdentityNotFound", err)
	}
}

func TestUpdateLocalPasswordHash(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	at := time.Now().UTC()
	mock.ExpectExec(`WHERE\s+user_id\s*=\s*\$1\s+AND\s+provider\s*=\s*\$2`).
		WithArgs("u1", "local", "newhash", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := UpdateLocalPasswordHash(context.Background(), db, "u1", "newhash", at); err != nil {
		t.Fatalf("UpdateLocalPasswordHash: %v", err)
	}
}
