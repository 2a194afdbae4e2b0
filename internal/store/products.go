package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sea021/promptshop-go/internal/domain"
)

const productColumns = `id, name, price, description, category, image, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Description, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products(id, name, price, description, category, image)
		 VALUES($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Price, p.Description, p.Category, p.Image)
	return err
}

func (s *Store) UpdateProduct(ctx context.Context, p domain.Product) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET name=$2, price=$3, description=$4, category=$5, image=$6, updated_at=now()
		 WHERE id=$1`,
		p.ID, p.Name, p.Price, p.Description, p.Category, p.Image)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n)
	return n, err
}
