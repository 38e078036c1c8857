package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/database"
	"github.com/sidasi/sidasi-backend/internal/model"
)

// ProfileRepo manages profile rows. Reads join the owning user so callers
// get contact data in one query. Profiles are addressable by their own id
// or by the owning user id.
type ProfileRepo struct {
	db *sqlx.DB
}

func NewProfileRepo(db *sqlx.DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileQuery = `SELECT p.id, p.user_id, p.photo, u.name, u.address, u.phone, u.email
FROM profiles p
JOIN users u ON u.id = p.user_id`

// Create inserts a profile for userID and returns its id.
func (r *ProfileRepo) Create(ctx context.Context, userID uint64, photo *string) (uint64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO profiles (user_id, photo) VALUES (?, ?)`, userID, photo)
	if err != nil {
		switch {
		case database.IsDuplicateKey(err):
			return 0, ErrProfileExists
		case database.IsForeignKeyViolation(err):
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *ProfileRepo) List(ctx context.Context) ([]model.Profile, error) {
	out := []model.Profile{}
	err := r.db.SelectContext(ctx, &out, profileQuery+` ORDER BY p.id`)
	return out, err
}

func (r *ProfileRepo) GetByID(ctx context.Context, id uint64) (*model.Profile, error) {
	return r.get(ctx, `p.id`, id)
}

func (r *ProfileRepo) GetByUserID(ctx context.Context, userID uint64) (*model.Profile, error) {
	return r.get(ctx, `p.user_id`, userID)
}

func (r *ProfileRepo) get(ctx context.Context, col string, v uint64) (*model.Profile, error) {
	var p model.Profile
	err := r.db.GetContext(ctx, &p, profileQuery+` WHERE `+col+` = ?`, v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePhoto replaces the photo of the profile with the given id.
func (r *ProfileRepo) UpdatePhoto(ctx context.Context, id uint64, photo string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET photo = ? WHERE id = ?`, photo, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrProfileNotFound)
}

// UpdatePhotoByUser replaces the photo of the profile owned by userID.
func (r *ProfileRepo) UpdatePhotoByUser(ctx context.Context, userID uint64, photo string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET photo = ? WHERE user_id = ?`, photo, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrProfileNotFound)
}

func (r *ProfileRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrProfileNotFound)
}

func (r *ProfileRepo) DeleteByUser(ctx context.Context, userID uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrProfileNotFound)
}
