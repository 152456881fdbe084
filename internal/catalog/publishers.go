package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const publisherSelect = `
	SELECT p.id, p.name, p.description, p.website, p.email, COUNT(b.id)
	FROM publishers p
	LEFT JOIN books b ON b.publisher_id = p.id`

func (r *Repository) ListPublishers(ctx context.Context, query string, page int) (Page[domain.Publisher], error) {
	where, args := "TRUE", []any{}
	if query != "" {
		args = append(args, storage.LikePattern(query))
		where = "p.name ILIKE $1"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM publishers p WHERE `+where, args...).Scan(&total); err != nil {
		return Page[domain.Publisher]{}, storage.Wrap("count publishers", err)
	}

	page, pages := normalizePage(page, total, PublishersPerPage)
	args = append(args, PublishersPerPage, (page-1)*PublishersPerPage)

	publishers, err := r.queryPublishers(ctx, fmt.Sprintf(`%s
		WHERE %s
		GROUP BY p.id
		ORDER BY p.name
		LIMIT $%d OFFSET $%d`, publisherSelect, where, len(args)-1, len(args)), args...)
	if err != nil {
		return Page[domain.Publisher]{}, err
	}

	return newPage(publishers, page, PublishersPerPage, pages, total), nil
}

// AllPublishers feeds the catalog's publisher filter.
func (r *Repository) AllPublishers(ctx context.Context) ([]domain.Publisher, error) {
	return r.queryPublishers(ctx, publisherSelect+` GROUP BY p.id ORDER BY p.name`)
}

func (r *Repository) GetPublisher(ctx context.Context, id string) (*domain.Publisher, error) {
	p, err := scanPublisher(r.db.QueryRowContext(ctx, publisherSelect+` WHERE p.id = $1 GROUP BY p.id`, id))
	if err != nil {
		return nil, storage.Wrap("get publisher", err)
	}
	return &p, nil
}

func (r *Repository) CreatePublisher(ctx context.Context, p *domain.Publisher) error {
	p.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO publishers (id, name, description, website, email)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.Name, p.Description, p.Website, p.Email)
	return storage.Wrap("insert publisher", err)
}

func (r *Repository) UpdatePublisher(ctx context.Context, p *domain.Publisher) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE publishers SET name = $2, description = $3, website = $4, email = $5
		WHERE id = $1
	`, p.ID, p.Name, p.Description, p.Website, p.Email)
	if err != nil {
		return storage.Wrap("update publisher", err)
	}
	return requireRow(result, "publisher")
}

func (r *Repository) DeletePublisher(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM publishers WHERE id = $1`, id)
	if err != nil {
		return storage.Wrap("delete publisher", err)
	}
	return requireRow(result, "publisher")
}

func (r *Repository) queryPublishers(ctx context.Context, query string, args ...any) ([]domain.Publisher, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("list publishers", err)
	}
	defer func() { _ = rows.Close() }()

	publishers := []domain.Publisher{}
	for rows.Next() {
		p, err := scanPublisher(rows)
		if err != nil {
			return nil, storage.Wrap("scan publisher", err)
		}
		publishers = append(publishers, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list publishers", err)
	}
	return publishers, nil
}

func scanPublisher(s scanner) (domain.Publisher, error) {
	var p domain.Publisher
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Website, &p.Email, &p.BookCount)
	return p, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
