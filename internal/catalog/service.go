package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/telemetry"
	"github.com/joao-fontenele/bookstore/internal/validation"
)

const (
	featuredCount     = 8
	newestCount       = 8
	popularGenreCount = 6
	relatedCount      = 4

	defaultLanguage = "Українська"
	dateLayout      = "2006-01-02"
)

var maxPrice = decimal.NewFromInt(100_000_000)

type Service struct {
	store   Store
	metrics *telemetry.Instruments
	logger  *slog.Logger
}

func NewService(store Store, metrics *telemetry.Instruments, logger *slog.Logger) *Service {
	return &Service{store: store, metrics: metrics, logger: logger}
}

type HomePage struct {
	Featured []domain.Book  `json:"featured"`
	Newest   []domain.Book  `json:"newest"`
	Genres   []domain.Genre `json:"genres"`
}

func (s *Service) Home(ctx context.Context) (*HomePage, error) {
	featured, err := s.store.TopBooks(ctx, SortPopularity, featuredCount)
	if err != nil {
		return nil, err
	}
	newest, err := s.store.TopBooks(ctx, SortNewest, newestCount)
	if err != nil {
		return nil, err
	}
	genres, err := s.store.PopularGenres(ctx, popularGenreCount)
	if err != nil {
		return nil, err
	}
	return &HomePage{Featured: featured, Newest: newest, Genres: genres}, nil
}

// SearchParams are the raw catalog query parameters.
type SearchParams struct {
	Query     string
	Genre     string
	Publisher string
	SortBy    string
	Page      string
}

type SearchResult struct {
	Books      Page[domain.Book]  `json:"books"`
	Genres     []domain.Genre     `json:"genres"`
	Publishers []domain.Publisher `json:"publishers"`
	Query      string             `json:"query"`
	Genre      string             `json:"genre"`
	Publisher  string             `json:"publisher"`
	SortBy     string             `json:"sort_by"`
}

func (s *Service) SearchBooks(ctx context.Context, p SearchParams) (*SearchResult, error) {
	filter := BookFilter{
		Query:       strings.TrimSpace(p.Query),
		GenreID:     p.Genre,
		PublisherID: p.Publisher,
		SortBy:      p.SortBy,
		Page:        parsePage(p.Page),
	}

	fields := map[string]string{}
	if filter.GenreID != "" && uuid.Validate(filter.GenreID) != nil {
		fields["genre"] = "must be a valid id"
	}
	if filter.PublisherID != "" && uuid.Validate(filter.PublisherID) != nil {
		fields["publisher"] = "must be a valid id"
	}
	if err := validation.Merge(nil, fields); err != nil {
		return nil, err
	}
	if _, ok := bookOrderings[filter.SortBy]; !ok {
		filter.SortBy = SortNewest
	}

	books, err := s.store.SearchBooks(ctx, filter)
	if err != nil {
		return nil, err
	}
	genres, err := s.store.ListGenres(ctx)
	if err != nil {
		return nil, err
	}
	publishers, err := s.store.AllPublishers(ctx)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		Books:      books,
		Genres:     genres,
		Publishers: publishers,
		Query:      filter.Query,
		Genre:      filter.GenreID,
		Publisher:  filter.PublisherID,
		SortBy:     filter.SortBy,
	}, nil
}

// parsePage treats anything that is not a positive integer as page 1.
func parsePage(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

type BookDetail struct {
	Book    *domain.Book  `json:"book"`
	Related []domain.Book `json:"related"`
}

// BookDetail records a view and returns the book with related titles.
func (s *Service) BookDetail(ctx context.Context, id string) (*BookDetail, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	views, err := s.store.IncrementViews(ctx, id)
	if err != nil {
		return nil, err
	}
	book.Views = views
	s.metrics.BookViewed(ctx)

	related, err := s.store.RelatedBooks(ctx, id, relatedCount)
	if err != nil {
		return nil, err
	}

	return &BookDetail{Book: book, Related: related}, nil
}

type BookInput struct {
	Title           string           `json:"title" validate:"required,max=300"`
	AuthorIDs       []string         `json:"author_ids" validate:"required,min=1,dive,uuid"`
	GenreIDs        []string         `json:"genre_ids" validate:"required,min=1,dive,uuid"`
	PublisherID     string           `json:"publisher_id" validate:"omitempty,uuid"`
	ISBN            string           `json:"isbn" validate:"max=13"`
	Description     string           `json:"description" validate:"required"`
	Pages           int              `json:"pages" validate:"gte=1"`
	Language        string           `json:"language" validate:"max=50"`
	Price           *decimal.Decimal `json:"price" validate:"required"`
	Discount        int              `json:"discount" validate:"gte=0,lte=100"`
	PublicationDate string           `json:"publication_date" validate:"required,datetime=2006-01-02"`
	Stock           int              `json:"stock" validate:"gte=0"`
}

func (in BookInput) toBook() (*domain.Book, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.ISBN = strings.TrimSpace(in.ISBN)

	fields := map[string]string{}
	if in.Price != nil {
		switch {
		case in.Price.IsNegative():
			fields["price"] = "must be greater than or equal to 0"
		case in.Price.GreaterThanOrEqual(maxPrice):
			fields["price"] = "must be less than " + maxPrice.String()
		case !in.Price.Equal(in.Price.Round(2)):
			fields["price"] = "must have at most 2 decimal places"
		}
	}
	if err := validation.Merge(validation.Struct(in), fields); err != nil {
		return nil, err
	}

	published, err := time.Parse(dateLayout, in.PublicationDate)
	if err != nil {
		return nil, domain.NewValidationError("publication_date", "must be a date in "+dateLayout+" format")
	}

	book := &domain.Book{
		Title:           in.Title,
		ISBN:            in.ISBN,
		Description:     in.Description,
		Pages:           in.Pages,
		Language:        in.Language,
		Price:           *in.Price,
		Discount:        in.Discount,
		PublicationDate: published,
		Stock:           in.Stock,
	}
	if book.Language == "" {
		book.Language = defaultLanguage
	}
	if in.PublisherID != "" {
		book.Publisher = &domain.Publisher{ID: in.PublisherID}
	}
	return book, nil
}

func (s *Service) CreateBook(ctx context.Context, in BookInput) (*domain.Book, error) {
	book, err := in.toBook()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateBook(ctx, book, in.AuthorIDs, in.GenreIDs); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book created", "book_id", book.ID, "title", book.Title)
	return s.store.GetBook(ctx, book.ID)
}

func (s *Service) UpdateBook(ctx context.Context, id string, in BookInput) (*domain.Book, error) {
	book, err := in.toBook()
	if err != nil {
		return nil, err
	}
	book.ID = id
	if err := s.store.UpdateBook(ctx, book, in.AuthorIDs, in.GenreIDs); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "book updated", "book_id", id)
	return s.store.GetBook(ctx, id)
}

func (s *Service) DeleteBook(ctx context.Context, id string) error {
	if err := s.store.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "book deleted", "book_id", id)
	return nil
}

type AuthorInput struct {
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Bio       string `json:"bio"`
	BirthDate string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

func (in AuthorInput) toAuthor() (*domain.Author, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	author := &domain.Author{FirstName: in.FirstName, LastName: in.LastName, Bio: in.Bio}
	if in.BirthDate != "" {
		born, err := time.Parse(dateLayout, in.BirthDate)
		if err != nil {
			return nil, domain.NewValidationError("birth_date", "must be a date in "+dateLayout+" format")
		}
		author.BirthDate = &born
	}
	return author, nil
}

type AuthorDetail struct {
	Author *domain.Author `json:"author"`
	Books  []domain.Book  `json:"books"`
}

func (s *Service) ListAuthors(ctx context.Context, query, page string) (Page[domain.Author], error) {
	return s.store.ListAuthors(ctx, strings.TrimSpace(query), parsePage(page))
}

func (s *Service) AuthorDetail(ctx context.Context, id string) (*AuthorDetail, error) {
	author, err := s.store.GetAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	books, err := s.store.BooksByAuthor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AuthorDetail{Author: author, Books: books}, nil
}

func (s *Service) CreateAuthor(ctx context.Context, in AuthorInput) (*domain.Author, error) {
	author, err := in.toAuthor()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAuthor(ctx, author); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "author created", "author_id", author.ID)
	return author, nil
}

func (s *Service) UpdateAuthor(ctx context.Context, id string, in AuthorInput) (*domain.Author, error) {
	author, err := in.toAuthor()
	if err != nil {
		return nil, err
	}
	author.ID = id
	if err := s.store.UpdateAuthor(ctx, author); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "author updated", "author_id", id)
	return s.store.GetAuthor(ctx, id)
}

func (s *Service) DeleteAuthor(ctx context.Context, id string) error {
	if err := s.store.DeleteAuthor(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "author deleted", "author_id", id)
	return nil
}

type PublisherInput struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description"`
	Website     string `json:"website" validate:"omitempty,url,max=200"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
}

func (in PublisherInput) toPublisher() (*domain.Publisher, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return &domain.Publisher{
		Name:        in.Name,
		Description: in.Description,
		Website:     in.Website,
		Email:       in.Email,
	}, nil
}

type PublisherDetail struct {
	Publisher *domain.Publisher `json:"publisher"`
	Books     []domain.Book     `json:"books"`
}

func (s *Service) ListPublishers(ctx context.Context, query, page string) (Page[domain.Publisher], error) {
	return s.store.ListPublishers(ctx, strings.TrimSpace(query), parsePage(page))
}

func (s *Service) PublisherDetail(ctx context.Context, id string) (*PublisherDetail, error) {
	publisher, err := s.store.GetPublisher(ctx, id)
	if err != nil {
		return nil, err
	}
	books, err := s.store.BooksByPublisher(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PublisherDetail{Publisher: publisher, Books: books}, nil
}

func (s *Service) CreatePublisher(ctx context.Context, in PublisherInput) (*domain.Publisher, error) {
	p, err := in.toPublisher()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreatePublisher(ctx, p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "publisher created", "publisher_id", p.ID, "name", p.Name)
	return p, nil
}

func (s *Service) UpdatePublisher(ctx context.Context, id string, in PublisherInput) (*domain.Publisher, error) {
	p, err := in.toPublisher()
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.store.UpdatePublisher(ctx, p); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "publisher updated", "publisher_id", id)
	return s.store.GetPublisher(ctx, id)
}

func (s *Service) DeletePublisher(ctx context.Context, id string) error {
	if err := s.store.DeletePublisher(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "publisher deleted", "publisher_id", id)
	return nil
}

type GenreInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"max=100"`
	Description string `json:"description"`
}

func (s *Service) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return s.store.ListGenres(ctx)
}

// CreateGenre derives the slug from the name when none is given.
func (s *Service) CreateGenre(ctx context.Context, in GenreInput) (*domain.Genre, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Slug == "" {
		in.Slug = slug.Make(in.Name)
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if !slug.IsSlug(in.Slug) {
		return nil, domain.NewValidationError("slug", "must contain only lowercase letters, digits and hyphens")
	}

	g := &domain.Genre{Name: in.Name, Slug: in.Slug, Description: in.Description}
	if err := s.store.CreateGenre(ctx, g); err != nil {
		return nil, fmt.Errorf("create genre %q: %w", g.Name, err)
	}
	s.logger.InfoContext(ctx, "genre created", "genre_id", g.ID, "slug", g.Slug)
	return g, nil
}
