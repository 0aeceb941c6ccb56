package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

var ErrInvalidCredentials = errors.New("invalid username or password")

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// missingOperatorHash is compared against when the username is unknown so the
// not-found path costs one bcrypt comparison, like a wrong password.
func missingOperatorHash() []byte {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("operator-not-found"), bcryptCost)
	})
	return dummyHash
}

// Operator is a debug API login.
type Operator struct {
	ID           int64
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

type Operators struct {
	pool *pgxpool.Pool
}

func NewOperators(pool *pgxpool.Pool) *Operators {
	return &Operators{pool: pool}
}

func (o *Operators) GetByUsername(ctx context.Context, username string) (*Operator, error) {
	op := &Operator{}
	err := o.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, is_active, created_at
		FROM operators
		WHERE username = $1 AND is_active = true
		LIMIT 1`,
		username,
	).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.IsActive, &op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("operator %q not found: %w", username, err)
	}
	return op, nil
}

func (o *Operators) GetByID(ctx context.Context, id int64) (*Operator, error) {
	op := &Operator{}
	err := o.pool.QueryRow(ctx, `
		SELECT id, username, password_hash, is_active, created_at
		FROM operators
		WHERE id = $1`,
		id,
	).Scan(&op.ID, &op.Username, &op.PasswordHash, &op.IsActive, &op.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("operator id=%d not found: %w", id, err)
	}
	return op, nil
}

// Authenticate verifies credentials. Unknown users and wrong passwords both
// yield ErrInvalidCredentials.
func (o *Operators) Authenticate(ctx context.Context, username, password string) (*Operator, error) {
	op, err := o.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword(missingOperatorHash(), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(op.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return op, nil
}

// Upsert creates the operator or resets its password, reactivating it.
func (o *Operators) Upsert(ctx context.Context, username, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	var id int64
	err = o.pool.QueryRow(ctx, `
		INSERT INTO operators (username, password_hash, is_active)
		VALUES ($1, $2, true)
		ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash, is_active = true
		RETURNING id`,
		username, hash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert operator %q: %w", username, err)
	}
	return id, nil
}

func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
