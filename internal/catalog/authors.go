package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const authorSelect = `
	SELECT a.id, a.first_name, a.last_name, a.bio, a.birth_date, COUNT(ba.book_id)
	FROM authors a
	LEFT JOIN book_authors ba ON ba.author_id = a.id`

func (r *Repository) ListAuthors(ctx context.Context, query string, page int) (Page[domain.Author], error) {
	where, args := "TRUE", []any{}
	if query != "" {
		args = append(args, storage.LikePattern(query))
		where = "(a.first_name ILIKE $1 OR a.last_name ILIKE $1)"
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM authors a WHERE `+where, args...).Scan(&total); err != nil {
		return Page[domain.Author]{}, storage.Wrap("count authors", err)
	}

	page, pages := normalizePage(page, total, AuthorsPerPage)
	args = append(args, AuthorsPerPage, (page-1)*AuthorsPerPage)

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`%s
		WHERE %s
		GROUP BY a.id
		ORDER BY a.last_name, a.first_name, a.id
		LIMIT $%d OFFSET $%d`, authorSelect, where, len(args)-1, len(args)), args...)
	if err != nil {
		return Page[domain.Author]{}, storage.Wrap("list authors", err)
	}
	defer func() { _ = rows.Close() }()

	var authors []domain.Author
	for rows.Next() {
		author, err := scanAuthor(rows)
		if err != nil {
			return Page[domain.Author]{}, storage.Wrap("scan author", err)
		}
		authors = append(authors, author)
	}
	if err := rows.Err(); err != nil {
		return Page[domain.Author]{}, storage.Wrap("list authors", err)
	}

	return newPage(authors, page, AuthorsPerPage, pages, total), nil
}

func (r *Repository) GetAuthor(ctx context.Context, id string) (*domain.Author, error) {
	author, err := scanAuthor(r.db.QueryRowContext(ctx, authorSelect+` WHERE a.id = $1 GROUP BY a.id`, id))
	if err != nil {
		return nil, storage.Wrap("get author", err)
	}
	return &author, nil
}

func (r *Repository) CreateAuthor(ctx context.Context, author *domain.Author) error {
	author.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authors (id, first_name, last_name, bio, birth_date)
		VALUES ($1, $2, $3, $4, $5)
	`, author.ID, author.FirstName, author.LastName, author.Bio, nullTime(author.BirthDate))
	return storage.Wrap("insert author", err)
}

func (r *Repository) UpdateAuthor(ctx context.Context, author *domain.Author) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE authors SET first_name = $2, last_name = $3, bio = $4, birth_date = $5
		WHERE id = $1
	`, author.ID, author.FirstName, author.LastName, author.Bio, nullTime(author.BirthDate))
	if err != nil {
		return storage.Wrap("update author", err)
	}
	return requireRow(result, "author")
}

func (r *Repository) DeleteAuthor(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM authors WHERE id = $1`, id)
	if err != nil {
		return storage.Wrap("delete author", err)
	}
	return requireRow(result, "author")
}

func scanAuthor(s scanner) (domain.Author, error) {
	var a domain.Author
	var birth sql.NullTime
	if err := s.Scan(&a.ID, &a.FirstName, &a.LastName, &a.Bio, &birth, &a.BookCount); err != nil {
		return domain.Author{}, err
	}
	if birth.Valid {
		a.BirthDate = &birth.Time
	}
	return a, nil
}
