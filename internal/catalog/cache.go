package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/bookstore/internal/domain"
)

const (
	bookKeyPrefix   = "catalog:book:"
	genresKey       = "catalog:genres"
	publishersKey   = "catalog:publishers"
	notFoundMarker  = "notfound"
	notFoundTTL     = time.Minute
	DefaultCacheTTL = 5 * time.Minute
	invalidateBatch = 100
)

// Store is everything the catalog service needs from persistence.
// *Repository implements it directly; CachedStore decorates it.
type Store interface {
	SearchBooks(ctx context.Context, f BookFilter) (Page[domain.Book], error)
	TopBooks(ctx context.Context, sortBy string, limit int) ([]domain.Book, error)
	RelatedBooks(ctx context.Context, bookID string, limit int) ([]domain.Book, error)
	BooksByAuthor(ctx context.Context, authorID string) ([]domain.Book, error)
	BooksByPublisher(ctx context.Context, publisherID string) ([]domain.Book, error)
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	IncrementViews(ctx context.Context, id string) (int, error)
	CreateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error
	UpdateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error
	DeleteBook(ctx context.Context, id string) error

	ListAuthors(ctx context.Context, query string, page int) (Page[domain.Author], error)
	GetAuthor(ctx context.Context, id string) (*domain.Author, error)
	CreateAuthor(ctx context.Context, author *domain.Author) error
	UpdateAuthor(ctx context.Context, author *domain.Author) error
	DeleteAuthor(ctx context.Context, id string) error

	ListPublishers(ctx context.Context, query string, page int) (Page[domain.Publisher], error)
	AllPublishers(ctx context.Context) ([]domain.Publisher, error)
	GetPublisher(ctx context.Context, id string) (*domain.Publisher, error)
	CreatePublisher(ctx context.Context, p *domain.Publisher) error
	UpdatePublisher(ctx context.Context, p *domain.Publisher) error
	DeletePublisher(ctx context.Context, id string) error

	ListGenres(ctx context.Context) ([]domain.Genre, error)
	PopularGenres(ctx context.Context, limit int) ([]domain.Genre, error)
	CreateGenre(ctx context.Context, g *domain.Genre) error
}

// CachedStore keeps book details and the filter lists in Redis. Redis
// failures are logged and fall through to the wrapped Store.
type CachedStore struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedStore(store Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedStore{Store: store, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedStore) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	key := bookKeyPrefix + id

	data, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if string(data) == notFoundMarker {
			return nil, domain.ErrNotFound
		}
		var book domain.Book
		if err := json.Unmarshal(data, &book); err != nil {
			c.logger.Warn("failed to decode cached book", "error", err, "book_id", id)
			break
		}
		return &book, nil
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis get failed, reading from database", "error", err, "key", key)
	}

	book, err := c.Store.GetBook(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		c.set(ctx, key, notFoundMarker, notFoundTTL)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	c.setJSON(ctx, key, book)
	return book, nil
}

func (c *CachedStore) ListGenres(ctx context.Context) ([]domain.Genre, error) {
	return cachedList(ctx, c, genresKey, c.Store.ListGenres)
}

func (c *CachedStore) AllPublishers(ctx context.Context) ([]domain.Publisher, error) {
	return cachedList(ctx, c, publishersKey, c.Store.AllPublishers)
}

func (c *CachedStore) CreateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error {
	if err := c.Store.CreateBook(ctx, book, authorIDs, genreIDs); err != nil {
		return err
	}
	// Genre and publisher book counts changed.
	c.del(ctx, bookKeyPrefix+book.ID, genresKey, publishersKey)
	return nil
}

func (c *CachedStore) UpdateBook(ctx context.Context, book *domain.Book, authorIDs, genreIDs []string) error {
	err := c.Store.UpdateBook(ctx, book, authorIDs, genreIDs)
	c.del(ctx, bookKeyPrefix+book.ID, genresKey, publishersKey)
	return err
}

func (c *CachedStore) DeleteBook(ctx context.Context, id string) error {
	err := c.Store.DeleteBook(ctx, id)
	c.del(ctx, bookKeyPrefix+id, genresKey, publishersKey)
	return err
}

func (c *CachedStore) UpdateAuthor(ctx context.Context, author *domain.Author) error {
	err := c.Store.UpdateAuthor(ctx, author)
	c.flushBooks(ctx)
	return err
}

func (c *CachedStore) DeleteAuthor(ctx context.Context, id string) error {
	err := c.Store.DeleteAuthor(ctx, id)
	c.flushBooks(ctx)
	return err
}

func (c *CachedStore) CreatePublisher(ctx context.Context, p *domain.Publisher) error {
	err := c.Store.CreatePublisher(ctx, p)
	c.del(ctx, publishersKey)
	return err
}

func (c *CachedStore) UpdatePublisher(ctx context.Context, p *domain.Publisher) error {
	err := c.Store.UpdatePublisher(ctx, p)
	c.del(ctx, publishersKey)
	c.flushBooks(ctx)
	return err
}

func (c *CachedStore) DeletePublisher(ctx context.Context, id string) error {
	err := c.Store.DeletePublisher(ctx, id)
	c.del(ctx, publishersKey)
	c.flushBooks(ctx)
	return err
}

func (c *CachedStore) CreateGenre(ctx context.Context, g *domain.Genre) error {
	err := c.Store.CreateGenre(ctx, g)
	c.del(ctx, genresKey)
	return err
}

// InvalidateBooks drops cached details for books whose stock changed
// outside the catalog, e.g. after a checkout.
func (c *CachedStore) InvalidateBooks(ctx context.Context, ids ...string) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, bookKeyPrefix+id)
	}
	c.del(ctx, keys...)
}

func cachedList[T any](ctx context.Context, c *CachedStore, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var items []T
		decodeErr := json.Unmarshal(data, &items)
		if decodeErr == nil {
			return items, nil
		}
		c.logger.Warn("failed to decode cached list", "error", decodeErr, "key", key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("redis get failed, reading from database", "error", err, "key", key)
	}

	items, err := load(ctx)
	if err != nil {
		return nil, err
	}
	c.setJSON(ctx, key, items)
	return items, nil
}

func (c *CachedStore) setJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", "error", err, "key", key)
		return
	}
	c.set(ctx, key, data, c.ttl)
}

func (c *CachedStore) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("redis set failed", "error", err, "key", key)
	}
}

func (c *CachedStore) del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("redis del failed", "error", err, "keys", keys)
	}
}

// flushBooks drops every cached book detail, since any of them may embed
// the edited author or publisher.
func (c *CachedStore) flushBooks(ctx context.Context) {
	iter := c.redis.Scan(ctx, 0, bookKeyPrefix+"*", invalidateBatch).Iterator()
	batch := make([]string, 0, invalidateBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == invalidateBatch {
			c.del(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("redis scan failed", "error", err)
	}
	c.del(ctx, batch...)
}
