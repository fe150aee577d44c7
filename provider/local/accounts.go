package local

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the identity store of the embedded backend.
type Accounts interface {
	repository.Repository[*Account]

	GetByEmail(ctx context.Context, email string) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	ConfirmEmail(ctx context.Context, email string) (*Account, error)
	MarkConfirmationSent(ctx context.Context, account *Account) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository builds the bun-backed account store.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{Repository: repo, db: db}
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": email})
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(account.ID.String()))
	return err
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	// the ORM update path does not reset the attempt columns to their zero
	// values, so this goes through raw SQL like the login bookkeeping always has
	loggedInAt := time.Now()
	_, err := a.db.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, loggedInAt, account.ID).Exec(ctx)

	return err
}

func (a *accounts) ConfirmEmail(ctx context.Context, email string) (*Account, error) {
	account, err := a.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.Confirmed() {
		return account, nil
	}

	now := time.Now()
	record := &Account{}
	record.ID = account.ID
	record.EmailConfirmedAt = &now

	if _, err := a.Repository.Update(ctx, record, repository.UpdateByID(account.ID.String())); err != nil {
		return nil, err
	}

	account.EmailConfirmedAt = &now
	return account, nil
}

func (a *accounts) MarkConfirmationSent(ctx context.Context, account *Account) error {
	now := time.Now()
	record := &Account{}
	record.ID = account.ID
	record.ConfirmationSentAt = &now

	_, err := a.Repository.Update(ctx, record, repository.UpdateByID(account.ID.String()))
	return err
}
