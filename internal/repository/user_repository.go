package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/database"
	"github.com/sidasi/sidasi-backend/internal/model"
	"github.com/sidasi/sidasi-backend/internal/utils"
)

type UserRepo struct{ DB *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the registration fields. Password is plain text and is
// hashed by Create.
type NewUser struct {
	Name     string
	Address  string
	Email    string
	Password string
	Phone    string
	Photo    string
	Role     string
}

// UserUpdate lists the columns an update may change. Nil fields keep their
// stored value; Password is plain text.
type UserUpdate struct {
	Name     *string
	Address  *string
	Email    *string
	Password *string
	Phone    *string
	Photo    *string
}

const userColumns = `id, name, address, email, password_hash, phone, photo, role, created_at, updated_at`

// Create inserts user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u NewUser, cost int) (uint64, error) {
	email := normalizeEmail(u.Email)
	hash, err := utils.HashPassword(u.Password, cost)
	if err != nil {
		return 0, err
	}
	if u.Photo == "" {
		u.Photo = model.DefaultPhoto
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, address, email, password_hash, phone, photo, role) VALUES (?,?,?,?,?,?,?)",
		u.Name, u.Address, email, hash, u.Phone, u.Photo, u.Role)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.GetContext(ctx, &u, "SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrUserNotFound
	}
	return u, err
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	out := []model.User{}
	err := r.DB.SelectContext(ctx, &out, "SELECT "+userColumns+" FROM users ORDER BY id")
	return out, err
}

// Update applies the supplied fields. A new password is hashed first.
func (r *UserRepo) Update(ctx context.Context, id uint64, u UserUpdate, cost int) error {
	var hash *string
	if u.Password != nil {
		h, err := utils.HashPassword(*u.Password, cost)
		if err != nil {
			return err
		}
		hash = &h
	}
	var email *string
	if u.Email != nil {
		e := normalizeEmail(*u.Email)
		email = &e
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET name = COALESCE(?, name), address = COALESCE(?, address), email = COALESCE(?, email),
		        password_hash = COALESCE(?, password_hash), phone = COALESCE(?, phone), photo = COALESCE(?, photo),
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		u.Name, u.Address, email, hash, u.Phone, u.Photo, id)
	if err != nil {
		if database.IsDuplicateKey(err) {
			return ErrEmailExists
		}
		return err
	}
	return requireRow(res, ErrUserNotFound)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
