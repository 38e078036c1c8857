package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sidasi/sidasi-backend/internal/database"
	"github.com/sidasi/sidasi-backend/internal/model"
)

type ProductRepo struct {
	db *sqlx.DB
}

func NewProductRepo(db *sqlx.DB) *ProductRepo { return &ProductRepo{db: db} }

const productColumns = `id, name, category, price, stock, unit, status, photo, created_at, updated_at`

func (r *ProductRepo) List(ctx context.Context) ([]model.Product, error) {
	out := []model.Product{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+productColumns+` FROM products ORDER BY id`)
	return out, err
}

func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (*model.Product, error) {
	var p model.Product
	err := r.db.GetContext(ctx, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p and sets its ID.
func (r *ProductRepo) Create(ctx context.Context, p *model.Product) error {
	const q = `INSERT INTO products (name, category, price, stock, unit, status, photo) VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Category, p.Price, p.Stock, p.Unit, p.Status, p.Photo)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// Update overwrites every column of the product. A nil Photo keeps the
// stored one.
func (r *ProductRepo) Update(ctx context.Context, p *model.Product) error {
	const q = `UPDATE products
	           SET name = ?, category = ?, price = ?, stock = ?, unit = ?, status = ?,
	               photo = COALESCE(?, photo), updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, p.Name, p.Category, p.Price, p.Stock, p.Unit, p.Status, p.Photo, p.ID)
	if err != nil {
		return err
	}
	return requireRow(res, ErrProductNotFound)
}

// Delete removes a product. Products still referenced by booking line
// items yield ErrConflict.
func (r *ProductRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrConflict
		}
		return err
	}
	return requireRow(res, ErrProductNotFound)
}

// requireRow maps zero affected rows to notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
