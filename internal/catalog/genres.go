package catalog

import (
	"context"

	"github.com/google/uuid"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const genreSelect = `
	SELECT g.id, g.name, g.slug, g.description, COUNT(bg.book_id)
	FROM genres g
	LEFT JOIN book_genres bg ON bg.genre_id = g.id
	GROUP BY g.id`

func (r *Repository) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return r.queryGenres(ctx, genreSelect+` ORDER BY g.name`)
}

// PopularGenres orders genres by how many books they hold.
func (r *Repository) PopularGenres(ctx context.Context, limit int) ([]domain.Genre, error) {
	return r.queryGenres(ctx, genreSelect+` ORDER BY COUNT(bg.book_id) DESC, g.name LIMIT $1`, limit)
}

func (r *Repository) CreateGenre(ctx context.Context, g *domain.Genre) error {
	g.ID = uuid.New().String()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO genres (id, name, slug, description)
		VALUES ($1, $2, $3, $4)
	`, g.ID, g.Name, g.Slug, g.Description)
	return storage.Wrap("insert genre", err)
}

func (r *Repository) queryGenres(ctx context.Context, query string, args ...any) ([]domain.Genre, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("list genres", err)
	}
	defer func() { _ = rows.Close() }()

	genres := []domain.Genre{}
	for rows.Next() {
		var g domain.Genre
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.Description, &g.BookCount); err != nil {
			return nil, storage.Wrap("scan genre", err)
		}
		genres = append(genres, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list genres", err)
	}
	return genres, nil
}
