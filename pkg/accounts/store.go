package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const userColumns = `id, name, email, password, created_at, updated_at`

// Store persists users in the users table
type Store struct {
	db         *sql.DB
	bcryptCost int
	now        func() time.Time

	// dummyHash is compared against when the email is unknown so that
	// Authenticate takes the same time either way.
	dummyHash string
}

// NewStore creates a user store. cost 0 means bcrypt.DefaultCost.
func NewStore(db *sql.DB, cost int) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &Store{
		db:         db,
		bcryptCost: cost,
		now:        func() time.Time { return time.Now().UTC() },
		dummyHash:  string(dummy),
	}
}

// BcryptCost returns the cost used for new hashes
func (s *Store) BcryptCost() int {
	return s.bcryptCost
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByEmail looks a user up by (normalized) email
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return u, nil
}

// FindByID looks a user up by primary key
func (s *Store) FindByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return u, nil
}

// Create inserts a new user, failing with ErrEmailTaken if the email exists
func (s *Store) Create(ctx context.Context, name, email, passwordHash string) (*User, error) {
	u, created, err := s.insertIfAbsent(ctx, name, email, passwordHash)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrEmailTaken
	}
	return u, nil
}

// FindOrCreate returns the user with email, creating it with name and
// passwordHash when absent. An existing user is returned unchanged. Safe
// under concurrent calls for the same email: the insert is conditional on
// the unique email constraint, so exactly one caller creates the row.
func (s *Store) FindOrCreate(ctx context.Context, email, name, passwordHash string) (*User, bool, error) {
	u, created, err := s.insertIfAbsent(ctx, name, email, passwordHash)
	if err != nil {
		return nil, false, err
	}
	if created {
		return u, true, nil
	}

	u, err = s.FindByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}

func (s *Store) insertIfAbsent(ctx context.Context, name, email, passwordHash string) (*User, bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, false, fmt.Errorf("email is required")
	}
	now := s.now()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		name, email, passwordHash, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}

	return &User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, true, nil
}

// Authenticate checks an email/password pair
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		VerifyPassword(s.dummyHash, password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
