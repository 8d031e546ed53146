package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Account struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// normUsername trims and lowercases the login name
func normUsername(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// CreateAccount inserts a new account with a hashed password
func (p *Postgres) CreateAccount(ctx context.Context, username, password string) (Account, error) {
	username = normUsername(username)
	if username == "" || password == "" {
		return Account{}, errors.New("missing username or password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, created_at
	`, username, string(hash))

	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

// GetAccount fetches an account by ID
func (p *Postgres) GetAccount(ctx context.Context, id string) (Account, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, username, created_at
		FROM accounts
		WHERE id = $1
	`, id)

	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// getByUsername returns the account + hashed password for verification
func (p *Postgres) getByUsername(ctx context.Context, username string) (Account, string, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, created_at
		FROM accounts
		WHERE username = $1
	`, normUsername(username))

	var a Account
	var hash string
	if err := row.Scan(&a.ID, &a.Username, &hash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, "", ErrAccountNotFound
		}
		return Account{}, "", err
	}
	return a, hash, nil
}

// VerifyAccount checks username + password match
func (p *Postgres) VerifyAccount(ctx context.Context, username, password string) (Account, error) {
	a, hash, err := p.getByUsername(ctx, username)
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Account{}, ErrInvalidCredentials
	}

	return a, nil
}

// ChangePassword verifies the old password, then swaps in the new hash.
// Reports whether a row was actually updated.
func (p *Postgres) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) (bool, error) {
	a, err := p.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := p.VerifyAccount(ctx, a.Username, oldPassword); err != nil {
		return false, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	ct, err := p.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2
		WHERE id = $1
	`, id, string(hash))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}
