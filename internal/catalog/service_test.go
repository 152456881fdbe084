package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/bookstore/internal/domain"
)

const (
	bookID   = "6f1c8e9a-3b2d-4c5e-8f7a-1b2c3d4e5f60"
	authorID = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	genreID  = "1b2c3d4e-5f6a-4b7c-9d8e-0f1a2b3c4d5e"
)

// fakeStore embeds Store so tests only implement the methods they hit.
type fakeStore struct {
	Store

	books      map[string]domain.Book
	views      map[string]int
	lastFilter BookFilter
	created    *domain.Book
	authorIDs  []string
	genres     []domain.Genre
}

func newFakeStore() *fakeStore {
	return &fakeStore{books: map[string]domain.Book{}, views: map[string]int{}}
}

func (f *fakeStore) SearchBooks(_ context.Context, filter BookFilter) (Page[domain.Book], error) {
	f.lastFilter = filter
	var items []domain.Book
	for _, b := range f.books {
		items = append(items, b)
	}
	page, pages := normalizePage(filter.Page, len(items), BooksPerPage)
	return newPage(items, page, BooksPerPage, pages, len(items)), nil
}

func (f *fakeStore) ListGenres(context.Context) ([]domain.Genre, error) {
	return []domain.Genre{{ID: genreID, Name: "Фентезі", Slug: "fentezi"}}, nil
}

func (f *fakeStore) AllPublishers(context.Context) ([]domain.Publisher, error) {
	return []domain.Publisher{}, nil
}

func (f *fakeStore) GetBook(_ context.Context, id string) (*domain.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (f *fakeStore) IncrementViews(_ context.Context, id string) (int, error) {
	f.views[id]++
	return f.views[id], nil
}

func (f *fakeStore) RelatedBooks(context.Context, string, int) ([]domain.Book, error) {
	return []domain.Book{}, nil
}

func (f *fakeStore) CreateBook(_ context.Context, book *domain.Book, authorIDs, _ []string) error {
	book.ID = bookID
	f.created = book
	f.authorIDs = authorIDs
	f.books[book.ID] = *book
	return nil
}

func (f *fakeStore) CreateGenre(_ context.Context, g *domain.Genre) error {
	g.ID = genreID
	f.genres = append(f.genres, *g)
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func validBookInput() BookInput {
	price := decimal.RequireFromString("250.00")
	return BookInput{
		Title:           "Тіні забутих предків",
		AuthorIDs:       []string{authorID},
		GenreIDs:        []string{genreID},
		Description:     "Повість",
		Pages:           192,
		Price:           &price,
		Discount:        10,
		PublicationDate: "1911-01-01",
		Stock:           5,
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name               string
		requested, total   int
		wantPage, wantLast int
	}{
		{"first page", 1, 30, 1, 3},
		{"zero becomes first", 0, 30, 1, 3},
		{"negative becomes first", -4, 30, 1, 3},
		{"past the end clamps to last", 9, 30, 3, 3},
		{"exact multiple", 2, 24, 2, 2},
		{"empty result has one page", 5, 0, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, pages := normalizePage(tt.requested, tt.total, BooksPerPage)
			assert.Equal(t, tt.wantPage, page)
			assert.Equal(t, tt.wantLast, pages)
		})
	}
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 3, parsePage("3"))
	assert.Equal(t, 1, parsePage(""))
	assert.Equal(t, 1, parsePage("abc"))
	assert.Equal(t, 1, parsePage("-2"))
}

func TestSearchBooks(t *testing.T) {
	t.Run("passes normalized filter to the store", func(t *testing.T) {
		store := newFakeStore()
		svc := newTestService(store)

		result, err := svc.SearchBooks(context.Background(), SearchParams{
			Query:  "  Франко ",
			Genre:  genreID,
			SortBy: SortPriceAsc,
			Page:   "x",
		})
		require.NoError(t, err)

		assert.Equal(t, "Франко", store.lastFilter.Query)
		assert.Equal(t, genreID, store.lastFilter.GenreID)
		assert.Equal(t, SortPriceAsc, store.lastFilter.SortBy)
		assert.Equal(t, 1, store.lastFilter.Page)
		assert.Len(t, result.Genres, 1)
		assert.NotNil(t, result.Books.Items)
	})

	t.Run("unknown sort falls back to newest", func(t *testing.T) {
		store := newFakeStore()
		_, err := newTestService(store).SearchBooks(context.Background(), SearchParams{SortBy: "random"})
		require.NoError(t, err)
		assert.Equal(t, SortNewest, store.lastFilter.SortBy)
	})

	t.Run("malformed filter ids are rejected", func(t *testing.T) {
		_, err := newTestService(newFakeStore()).SearchBooks(context.Background(), SearchParams{
			Genre:     "fantasy",
			Publisher: "42",
		})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "genre")
		assert.Contains(t, verr.Fields, "publisher")
	})
}

func TestBookDetail(t *testing.T) {
	t.Run("increments views", func(t *testing.T) {
		store := newFakeStore()
		store.books[bookID] = domain.Book{ID: bookID, Title: "Кобзар", Views: 0}
		svc := newTestService(store)

		first, err := svc.BookDetail(context.Background(), bookID)
		require.NoError(t, err)
		second, err := svc.BookDetail(context.Background(), bookID)
		require.NoError(t, err)

		assert.Equal(t, 1, first.Book.Views)
		assert.Equal(t, 2, second.Book.Views)
		assert.NotNil(t, second.Related)
	})

	t.Run("missing book", func(t *testing.T) {
		_, err := newTestService(newFakeStore()).BookDetail(context.Background(), bookID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestCreateBook(t *testing.T) {
	t.Run("valid input", func(t *testing.T) {
		store := newFakeStore()
		book, err := newTestService(store).CreateBook(context.Background(), validBookInput())
		require.NoError(t, err)

		assert.Equal(t, bookID, book.ID)
		assert.Equal(t, defaultLanguage, store.created.Language)
		assert.Nil(t, store.created.Publisher)
		assert.Equal(t, []string{authorID}, store.authorIDs)
		assert.True(t, decimal.RequireFromString("225").Equal(book.FinalPrice()))
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := newTestService(newFakeStore()).CreateBook(context.Background(), BookInput{})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		for _, field := range []string{"title", "author_ids", "genre_ids", "description", "pages", "price", "publication_date"} {
			assert.Contains(t, verr.Fields, field)
		}
	})

	priceTests := []struct {
		name  string
		price string
		want  string
	}{
		{"negative", "-1", "must be greater than or equal to 0"},
		{"too large", "100000000", "must be less than 100000000"},
		{"sub-cent", "10.005", "must have at most 2 decimal places"},
	}
	for _, tt := range priceTests {
		t.Run("price "+tt.name, func(t *testing.T) {
			in := validBookInput()
			price := decimal.RequireFromString(tt.price)
			in.Price = &price

			_, err := newTestService(newFakeStore()).CreateBook(context.Background(), in)

			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.want, verr.Fields["price"])
		})
	}

	t.Run("discount out of range", func(t *testing.T) {
		in := validBookInput()
		in.Discount = 101

		_, err := newTestService(newFakeStore()).CreateBook(context.Background(), in)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "discount")
	})
}

func TestCreateGenre(t *testing.T) {
	t.Run("derives slug", func(t *testing.T) {
		store := newFakeStore()
		g, err := newTestService(store).CreateGenre(context.Background(), GenreInput{Name: "Science Fiction"})
		require.NoError(t, err)
		assert.Equal(t, "science-fiction", g.Slug)
		assert.Len(t, store.genres, 1)
	})

	t.Run("rejects malformed slug", func(t *testing.T) {
		_, err := newTestService(newFakeStore()).CreateGenre(context.Background(), GenreInput{Name: "Poetry", Slug: "Not A Slug"})

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "slug")
	})
}
