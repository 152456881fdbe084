package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/storage"
)

const (
	SortPriceAsc   = "price_asc"
	SortPriceDesc  = "price_desc"
	SortPopularity = "popularity"
	SortTitle      = "title"
	SortNewest     = ""
)

var bookOrderings = map[string]string{
	SortPriceAsc:   "b.price ASC, b.created_at DESC, b.id",
	SortPriceDesc:  "b.price DESC, b.created_at DESC, b.id",
	SortPopularity: "b.views DESC, b.created_at DESC, b.id",
	SortTitle:      "b.title ASC, b.id",
	SortNewest:     "b.created_at DESC, b.id",
}

const bookSelect = `
	SELECT b.id, b.title, b.isbn, b.description, b.pages, b.language, b.price, b.discount,
	       b.publication_date, b.stock, b.views, b.created_at, b.updated_at,
	       p.id, p.name, p.description, p.website, p.email
	FROM books b
	LEFT JOIN publishers p ON p.id = b.publisher_id`

// BookFilter narrows the in-stock catalog. Empty fields do not filter.
type BookFilter struct {
	Query       string
	GenreID     string
	PublisherID string
	SortBy      string
	Page        int
}

func (f BookFilter) where() (string, []any) {
	conds := []string{"b.stock > 0"}
	var args []any

	if f.Query != "" {
		args = append(args, storage.LikePattern(f.Query))
		conds = append(conds, fmt.Sprintf(`(b.title ILIKE $%[1]d OR b.isbn ILIKE $%[1]d OR EXISTS (
			SELECT 1 FROM book_authors ba
			JOIN authors a ON a.id = ba.author_id
			WHERE ba.book_id = b.id AND (a.first_name ILIKE $%[1]d OR a.last_name ILIKE $%[1]d)))`, len(args)))
	}

	if f.GenreID != "" {
		args = append(args, f.GenreID)
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM book_genres bg WHERE bg.book_id = b.id AND bg.genre_id = $%d)`, len(args)))
	}

	if f.PublisherID != "" {
		args = append(args, f.PublisherID)
		conds = append(conds, fmt.Sprintf(`b.publisher_id = $%d`, len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func orderBy(sortBy string) string {
	if order, ok := bookOrderings[sortBy]; ok {
		return order
	}
	return bookOrderings[SortNewest]
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) SearchBooks(ctx context.Context, f BookFilter) (Page[domain.Book], error) {
	where, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books b WHERE `+where, args...).Scan(&total); err != nil {
		return Page[domain.Book]{}, storage.Wrap("count books", err)
	}

	page, pages := normalizePage(f.Page, total, BooksPerPage)
	args = append(args, BooksPerPage, (page-1)*BooksPerPage)
	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		bookSelect, where, orderBy(f.SortBy), len(args)-1, len(args))

	books, err := r.listBooks(ctx, query, args...)
	if err != nil {
		return Page[domain.Book]{}, err
	}

	return newPage(books, page, BooksPerPage, pages, total), nil
}

// TopBooks returns in-stock books in the given sort order.
func (r *Repository) TopBooks(ctx context.Context, sortBy string, limit int) ([]domain.Book, error) {
	return r.listBooks(ctx, bookSelect+` WHERE b.stock > 0 ORDER BY `+orderBy(sortBy)+` LIMIT $1`, limit)
}

func (r *Repository) RelatedBooks(ctx context.Context, bookID string, limit int) ([]domain.Book, error) {
	return r.listBooks(ctx, bookSelect+`
		WHERE b.stock > 0 AND b.id <> $1 AND EXISTS (
			SELECT 1 FROM book_genres bg
			JOIN book_genres mine ON mine.genre_id = bg.genre_id
			WHERE bg.book_id = b.id AND mine.book_id = $1
		)
		ORDER BY b.created_at DESC, b.id
		LIMIT $2`, bookID, limit)
}

func (r *Repository) BooksByAuthor(ctx context.Context, authorID string) ([]domain.Book, error) {
	return r.listBooks(ctx, bookSelect+`
		WHERE b.stock > 0 AND EXISTS (
			SELECT 1 FROM book_authors ba WHERE ba.book_id = b.id AND ba.author_id = $1
		)
		ORDER BY b.created_at DESC, b.id`, authorID)
}

func (r *Repository) BooksByPublisher(ctx context.Context, publisherID string) ([]domain.Book, error) {
	return r.listBooks(ctx, bookSelect+`
		WHERE b.stock > 0 AND b.publisher_id = $1
		ORDER BY b.created_at DESC, b.id`, publisherID)
}

func (r *Repository) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx, bookSelect+` WHERE b.id = $1`, id))
	if err != nil {
		return nil, storage.Wrap("get book", err)
	}

	books := []domain.Book{book}
	if err := attachRelations(ctx, r.db, books); err != nil {
		return nil, err
	}
	return &books[0], nil
}

// IncrementViews bumps the view counter and returns the new value.
func (r *Repository) IncrementViews(ctx context.Context, id string) (int, error) {
	var views int
	err := r.db.QueryRowContext(ctx, `
		UPDATE books SET views = views + 1
		WHERE id = $1
		RETURNING views
	`, id).Scan(&views)
	if err != nil {
		return 0, storage.Wrap("increment views", err)
	}
	return views, nil
}

func (r *Repository) CreateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		book.ID = uuid.New().String()

		err := tx.QueryRowContext(ctx, `
			INSERT INTO books (id, title, publisher_id, isbn, description, pages, language, price,
			                   discount, publication_date, stock, views, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, NOW(), NOW())
			RETURNING created_at, updated_at
		`, book.ID, book.Title, publisherID(book), storage.NullString(book.ISBN), book.Description,
			book.Pages, book.Language, book.Price, book.Discount, book.PublicationDate, book.Stock,
		).Scan(&book.CreatedAt, &book.UpdatedAt)
		if err != nil {
			return storage.Wrap("insert book", err)
		}

		return setBookRelations(ctx, tx, book.ID, authorIDs, genreIDs)
	})
}

// UpdateBook rewrites the staff-editable fields; views are left untouched.
func (r *Repository) UpdateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error {
	return storage.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE books
			SET title = $2, publisher_id = $3, isbn = $4, description = $5, pages = $6, language = $7,
			    price = $8, discount = $9, publication_date = $10, stock = $11, updated_at = NOW()
			WHERE id = $1
		`, book.ID, book.Title, publisherID(book), storage.NullString(book.ISBN), book.Description,
			book.Pages, book.Language, book.Price, book.Discount, book.PublicationDate, book.Stock)
		if err != nil {
			return storage.Wrap("update book", err)
		}
		if err := requireRow(result, "book"); err != nil {
			return err
		}

		return setBookRelations(ctx, tx, book.ID, authorIDs, genreIDs)
	})
}

func (r *Repository) DeleteBook(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return storage.Wrap("delete book", err)
	}
	return requireRow(result, "book")
}

func (r *Repository) listBooks(ctx context.Context, query string, args ...any) ([]domain.Book, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("list books", err)
	}
	defer func() { _ = rows.Close() }()

	books := []domain.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, storage.Wrap("scan book", err)
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("list books", err)
	}

	if err := attachRelations(ctx, r.db, books); err != nil {
		return nil, err
	}
	return books, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(s scanner) (domain.Book, error) {
	var book domain.Book
	var isbn sql.NullString
	var pubID, pubName, pubDesc, pubSite, pubMail sql.NullString

	err := s.Scan(&book.ID, &book.Title, &isbn, &book.Description, &book.Pages, &book.Language,
		&book.Price, &book.Discount, &book.PublicationDate, &book.Stock, &book.Views,
		&book.CreatedAt, &book.UpdatedAt,
		&pubID, &pubName, &pubDesc, &pubSite, &pubMail)
	if err != nil {
		return domain.Book{}, err
	}

	book.ISBN = isbn.String
	if pubID.Valid {
		book.Publisher = &domain.Publisher{
			ID:          pubID.String,
			Name:        pubName.String,
			Description: pubDesc.String,
			Website:     pubSite.String,
			Email:       pubMail.String,
		}
	}
	return book, nil
}

// attachRelations loads authors and genres for all books in two queries.
func attachRelations(ctx context.Context, q storage.Querier, books []domain.Book) error {
	if len(books) == 0 {
		return nil
	}

	index := make(map[string]int, len(books))
	ids := make([]string, 0, len(books))
	for i := range books {
		books[i].Authors = []domain.Author{}
		books[i].Genres = []domain.Genre{}
		index[books[i].ID] = i
		ids = append(ids, books[i].ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT ba.book_id, a.id, a.first_name, a.last_name, a.bio, a.birth_date
		FROM book_authors ba
		JOIN authors a ON a.id = ba.author_id
		WHERE ba.book_id = ANY($1::uuid[])
		ORDER BY a.last_name, a.first_name
	`, pq.Array(ids))
	if err != nil {
		return storage.Wrap("list book authors", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var bookID string
		var birth sql.NullTime
		var a domain.Author
		if err := rows.Scan(&bookID, &a.ID, &a.FirstName, &a.LastName, &a.Bio, &birth); err != nil {
			return storage.Wrap("scan book author", err)
		}
		if birth.Valid {
			a.BirthDate = &birth.Time
		}
		i := index[bookID]
		books[i].Authors = append(books[i].Authors, a)
	}
	if err := rows.Err(); err != nil {
		return storage.Wrap("list book authors", err)
	}

	genreRows, err := q.QueryContext(ctx, `
		SELECT bg.book_id, g.id, g.name, g.slug, g.description
		FROM book_genres bg
		JOIN genres g ON g.id = bg.genre_id
		WHERE bg.book_id = ANY($1::uuid[])
		ORDER BY g.name
	`, pq.Array(ids))
	if err != nil {
		return storage.Wrap("list book genres", err)
	}
	defer func() { _ = genreRows.Close() }()

	for genreRows.Next() {
		var bookID string
		var g domain.Genre
		if err := genreRows.Scan(&bookID, &g.ID, &g.Name, &g.Slug, &g.Description); err != nil {
			return storage.Wrap("scan book genre", err)
		}
		i := index[bookID]
		books[i].Genres = append(books[i].Genres, g)
	}
	if err := genreRows.Err(); err != nil {
		return storage.Wrap("list book genres", err)
	}

	return nil
}

func setBookRelations(ctx context.Context, tx *sql.Tx, bookID string, authorIDs, genreIDs []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM book_authors WHERE book_id = $1`, bookID); err != nil {
		return storage.Wrap("clear book authors", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO book_authors (book_id, author_id)
		SELECT $1, t.author_id FROM unnest($2::uuid[]) AS t(author_id)
		ON CONFLICT DO NOTHING
	`, bookID, pq.Array(authorIDs)); err != nil {
		return storage.Wrap("insert book authors", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM book_genres WHERE book_id = $1`, bookID); err != nil {
		return storage.Wrap("clear book genres", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO book_genres (book_id, genre_id)
		SELECT $1, t.genre_id FROM unnest($2::uuid[]) AS t(genre_id)
		ON CONFLICT DO NOTHING
	`, bookID, pq.Array(genreIDs)); err != nil {
		return storage.Wrap("insert book genres", err)
	}

	return nil
}

func publisherID(book *domain.Book) sql.NullString {
	if book.Publisher == nil {
		return sql.NullString{}
	}
	return storage.NullString(book.Publisher.ID)
}

func requireRow(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return storage.Wrap("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, domain.ErrNotFound)
	}
	return nil
}
