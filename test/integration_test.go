//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/bookstore/internal/accounts"
	"github.com/joao-fontenele/bookstore/internal/cart"
	"github.com/joao-fontenele/bookstore/internal/catalog"
	"github.com/joao-fontenele/bookstore/internal/domain"
	"github.com/joao-fontenele/bookstore/internal/messaging"
	"github.com/joao-fontenele/bookstore/internal/orders"
	"github.com/joao-fontenele/bookstore/internal/worker"
)

var delivery = domain.DeliveryDetails{
	Address:    "вул. Хрещатик, 1",
	City:       "Київ",
	PostalCode: "01001",
	Phone:      "+380441112233",
}

type fixture struct {
	db       *sql.DB
	logger   *slog.Logger
	catalog  *catalog.Repository
	accounts *accounts.Repository
	carts    *cart.Repository
	orders   *orders.OrderRepository
	cart     *cart.Service
	checkout *orders.Service
}

func newFixture(ctx context.Context, t *testing.T) *fixture {
	t.Helper()

	db := SetupPostgres(ctx, t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		db:       db,
		logger:   logger,
		catalog:  catalog.NewRepository(db),
		accounts: accounts.NewRepository(db),
		carts:    cart.NewRepository(db),
		orders:   orders.NewOrderRepository(db),
	}
	f.cart = cart.NewService(f.carts, nil, logger)
	f.checkout = orders.NewService(orders.Deps{
		Store:    f.orders,
		Carts:    f.carts,
		Profiles: f.accounts,
		Logger:   logger,
	})
	return f
}

func (f *fixture) user(ctx context.Context, t *testing.T, username string) *domain.User {
	t.Helper()
	u := &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    username,
		PasswordHash: "unused",
	}
	require.NoError(t, f.accounts.CreateUser(ctx, u))
	return u
}

func (f *fixture) book(ctx context.Context, t *testing.T, title, price string, stock int) *domain.Book {
	t.Helper()
	b := &domain.Book{
		Title:           title,
		Language:        "Українська",
		Price:           decimal.RequireFromString(price),
		PublicationDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Stock:           stock,
	}
	require.NoError(t, f.catalog.CreateBook(ctx, b, nil, nil))
	return b
}

func (f *fixture) stock(ctx context.Context, t *testing.T, bookID string) int {
	t.Helper()
	b, err := f.catalog.GetBook(ctx, bookID)
	require.NoError(t, err)
	return b.Stock
}

func (f *fixture) orderCount(ctx context.Context, t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n))
	return n
}

func TestCheckout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	alice := f.user(ctx, t, "alice")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 5)
	pisnia := f.book(ctx, t, "Лісова пісня", "30.00", 1)

	_, err := f.cart.Add(ctx, alice.ID, kobzar.ID, 2)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, alice.ID, pisnia.ID, 1)
	require.NoError(t, err)

	order, err := f.checkout.Checkout(ctx, alice.ID, delivery)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.True(t, decimal.RequireFromString("130").Equal(order.Total), "total %s", order.Total)
	assert.Equal(t, 3, f.stock(ctx, t, kobzar.ID))
	assert.Equal(t, 0, f.stock(ctx, t, pisnia.ID))

	c, err := f.cart.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	stored, err := f.orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
	assert.Equal(t, "Київ", stored.City)

	t.Run("empty cart", func(t *testing.T) {
		_, err := f.checkout.Checkout(ctx, alice.ID, delivery)
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("later price changes leave the order alone", func(t *testing.T) {
		kobzar.Price = decimal.RequireFromString("99.00")
		kobzar.Stock = 3
		require.NoError(t, f.catalog.UpdateBook(ctx, kobzar, nil, nil))

		again, err := f.orders.GetByID(ctx, order.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("130").Equal(again.Total))
		for _, item := range again.Items {
			if item.BookID == kobzar.ID {
				assert.True(t, decimal.RequireFromString("50").Equal(item.Price))
			}
		}
	})

	t.Run("history lists the order", func(t *testing.T) {
		list, err := f.checkout.List(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, order.ID, list[0].ID)
	})
}

func TestCheckoutRejectsStaleCart(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	bob := f.user(ctx, t, "bob")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 3)
	pisnia := f.book(ctx, t, "Лісова пісня", "30.00", 2)

	_, err := f.cart.Add(ctx, bob.ID, kobzar.ID, 3)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, bob.ID, pisnia.ID, 2)
	require.NoError(t, err)

	// Someone else bought a copy after bob filled the cart.
	_, err = f.db.ExecContext(ctx, `UPDATE books SET stock = 1 WHERE id = $1`, pisnia.ID)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, bob.ID, delivery)

	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, pisnia.ID, stockErr.BookID)
	assert.Equal(t, 1, stockErr.Available)

	assert.Equal(t, 0, f.orderCount(ctx, t))
	assert.Equal(t, 3, f.stock(ctx, t, kobzar.ID))
	assert.Equal(t, 1, f.stock(ctx, t, pisnia.ID))

	c, err := f.cart.Get(ctx, bob.ID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)

	preview, err := f.checkout.Prepare(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, preview.Ready)
	require.NotNil(t, preview.Problem)
	assert.Equal(t, pisnia.ID, preview.Problem.BookID)
}

func TestCheckoutRollsBackOnStorageFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	carol := f.user(ctx, t, "carol")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 5)
	pisnia := f.book(ctx, t, "Лісова пісня", "30.00", 3)

	_, err := f.cart.Add(ctx, carol.ID, kobzar.ID, 2)
	require.NoError(t, err)
	_, err = f.cart.Add(ctx, carol.ID, pisnia.ID, 1)
	require.NoError(t, err)

	// Lines are written in book id order; failing on the later book means
	// the order row, the first line and its stock decrement are already
	// written when the error hits.
	failing := max(kobzar.ID, pisnia.ID)
	_, err = f.db.ExecContext(ctx, `
		CREATE FUNCTION reject_order_item() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'order_items unavailable';
		END;
		$$ LANGUAGE plpgsql`)
	require.NoError(t, err)
	_, err = f.db.ExecContext(ctx, `
		CREATE TRIGGER reject_order_item BEFORE INSERT ON order_items
		FOR EACH ROW WHEN (NEW.book_id = '`+failing+`'::uuid)
		EXECUTE FUNCTION reject_order_item()`)
	require.NoError(t, err)

	_, err = f.checkout.Checkout(ctx, carol.ID, delivery)
	require.ErrorIs(t, err, domain.ErrStorage)

	var items int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&items))
	assert.Equal(t, 0, items)
	assert.Equal(t, 0, f.orderCount(ctx, t))
	assert.Equal(t, 5, f.stock(ctx, t, kobzar.ID))
	assert.Equal(t, 3, f.stock(ctx, t, pisnia.ID))

	c, err := f.cart.Get(ctx, carol.ID)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.TotalItems())

	t.Run("succeeds once storage recovers", func(t *testing.T) {
		_, err := f.db.ExecContext(ctx, `DROP TRIGGER reject_order_item ON order_items`)
		require.NoError(t, err)

		order, err := f.checkout.Checkout(ctx, carol.ID, delivery)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("130").Equal(order.Total))
		assert.Equal(t, 3, f.stock(ctx, t, kobzar.ID))
		assert.Equal(t, 2, f.stock(ctx, t, pisnia.ID))
	})
}

func TestRemoveItemsKeepsUnorderedLines(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	dana := f.user(ctx, t, "dana")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 5)
	pisnia := f.book(ctx, t, "Лісова пісня", "30.00", 3)

	_, err := f.cart.Add(ctx, dana.ID, kobzar.ID, 1)
	require.NoError(t, err)
	ordered, err := f.cart.Get(ctx, dana.ID)
	require.NoError(t, err)

	// Added after checkout read the cart.
	_, err = f.cart.Add(ctx, dana.ID, pisnia.ID, 1)
	require.NoError(t, err)

	require.NoError(t, cart.RemoveItems(ctx, f.db, ordered.ID, ordered.Items))

	c, err := f.cart.Get(ctx, dana.ID)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, pisnia.ID, c.Items[0].Book.ID)
}

func TestMigrationsHonorSchema(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	connStr := StartPostgres(ctx, t)
	shop := MigrateSchema(ctx, t, connStr, "shop_eu")
	other := MigrateSchema(ctx, t, connStr, "shop_ua")

	b := &domain.Book{
		Title:           "Кобзар",
		Language:        "Українська",
		Price:           decimal.RequireFromString("50"),
		PublicationDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Stock:           1,
	}
	require.NoError(t, catalog.NewRepository(shop).CreateBook(ctx, b, nil, nil))

	var inShop, inPublic bool
	require.NoError(t, shop.QueryRowContext(ctx,
		`SELECT to_regclass('shop_eu.books') IS NOT NULL, to_regclass('public.books') IS NOT NULL`).
		Scan(&inShop, &inPublic))
	assert.True(t, inShop)
	assert.False(t, inPublic)

	_, err := catalog.NewRepository(other).GetBook(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	last := f.book(ctx, t, "Тіні забутих предків", "120.00", 1)

	const buyers = 5
	users := make([]*domain.User, buyers)
	for i := range users {
		users[i] = f.user(ctx, t, "buyer"+strconv.Itoa(i))
		_, err := f.cart.Add(ctx, users[i].ID, last.ID, 1)
		require.NoError(t, err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		placed   int
		rejected int
	)
	for _, u := range users {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := f.checkout.Checkout(ctx, userID, delivery)

			mu.Lock()
			defer mu.Unlock()
			var stockErr *domain.StockError
			switch {
			case err == nil:
				placed++
			case errors.As(err, &stockErr):
				rejected++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, placed)
	assert.Equal(t, buyers-1, rejected)
	assert.Equal(t, 0, f.stock(ctx, t, last.ID))
	assert.Equal(t, 1, f.orderCount(ctx, t))
}

func TestCartClampsToStock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	carol := f.user(ctx, t, "carol")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 2)

	result, err := f.cart.Add(ctx, carol.ID, kobzar.ID, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Warning, domain.ErrInsufficientStock)
	assert.Equal(t, 2, result.Item.Quantity)

	result, err = f.cart.Add(ctx, carol.ID, kobzar.ID, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, result.Warning, domain.ErrInsufficientStock)
	assert.Equal(t, 2, result.Item.Quantity)

	_, err = f.cart.SetQuantity(ctx, carol.ID, result.Item.ID, 3)
	var stockErr *domain.StockError
	require.ErrorAs(t, err, &stockErr)

	dave := f.user(ctx, t, "dave")
	_, err = f.cart.SetQuantity(ctx, dave.ID, result.Item.ID, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	item, err := f.cart.SetQuantity(ctx, carol.ID, result.Item.ID, 0)
	require.NoError(t, err)
	assert.Nil(t, item)

	c, err := f.cart.Get(ctx, carol.ID)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestSearchBooks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	svc := catalog.NewService(f.catalog, nil, f.logger)

	author := &domain.Author{FirstName: "Тарас", LastName: "Шевченко"}
	require.NoError(t, f.catalog.CreateAuthor(ctx, author))

	b := &domain.Book{
		Title:           "Кобзар",
		ISBN:            "9789660301234",
		Language:        "Українська",
		Price:           decimal.RequireFromString("50"),
		PublicationDate: time.Date(1840, 4, 18, 0, 0, 0, 0, time.UTC),
		Stock:           3,
	}
	require.NoError(t, f.catalog.CreateBook(ctx, b, []string{author.ID}, nil))
	f.book(ctx, t, "Розпродано", "10", 0)
	for i := range 13 {
		f.book(ctx, t, "Збірка "+strconv.Itoa(i), strconv.Itoa(20+i), 1)
	}

	byAuthor, err := svc.SearchBooks(ctx, catalog.SearchParams{Query: "шевченко"})
	require.NoError(t, err)
	require.Len(t, byAuthor.Books.Items, 1)
	assert.Equal(t, b.ID, byAuthor.Books.Items[0].ID)

	byISBN, err := svc.SearchBooks(ctx, catalog.SearchParams{Query: "9789660301234"})
	require.NoError(t, err)
	assert.Len(t, byISBN.Books.Items, 1)

	soldOut, err := svc.SearchBooks(ctx, catalog.SearchParams{Query: "Розпродано"})
	require.NoError(t, err)
	assert.Empty(t, soldOut.Books.Items)

	all, err := svc.SearchBooks(ctx, catalog.SearchParams{SortBy: "price_asc", Page: "99"})
	require.NoError(t, err)
	assert.Equal(t, 14, all.Books.TotalCount)
	assert.Equal(t, 2, all.Books.Page)
	assert.Len(t, all.Books.Items, 2)
	assert.Equal(t, "Кобзар", all.Books.Items[1].Title)
}

func TestCatalogCache(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	rdb := SetupRedis(ctx, t)
	cached := catalog.NewCachedStore(f.catalog, rdb, time.Minute, f.logger)

	b := f.book(ctx, t, "Кобзар", "50.00", 5)

	first, err := cached.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Stock)

	_, err = f.db.ExecContext(ctx, `UPDATE books SET stock = 4 WHERE id = $1`, b.ID)
	require.NoError(t, err)

	stale, err := cached.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stale.Stock)

	cached.InvalidateBooks(ctx, b.ID)
	fresh, err := cached.GetBook(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, fresh.Stock)

	t.Run("staff writes invalidate", func(t *testing.T) {
		fresh.Title = "Кобзар (повне видання)"
		require.NoError(t, cached.UpdateBook(ctx, fresh, nil, nil))

		got, err := cached.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "Кобзар (повне видання)", got.Title)
	})

	t.Run("missing books are negatively cached", func(t *testing.T) {
		missing := "00000000-0000-4000-8000-000000000000"
		_, err := cached.GetBook(ctx, missing)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = cached.GetBook(ctx, missing)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("checkout invalidates purchased books", func(t *testing.T) {
		svc := orders.NewService(orders.Deps{
			Store:    f.orders,
			Carts:    f.carts,
			Profiles: f.accounts,
			Books:    cached,
			Logger:   f.logger,
		})
		erin := f.user(ctx, t, "erin")
		_, err := f.cart.Add(ctx, erin.ID, b.ID, 1)
		require.NoError(t, err)

		_, err = svc.Checkout(ctx, erin.ID, delivery)
		require.NoError(t, err)

		got, err := cached.GetBook(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Stock)
	})
}

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
	sent   chan struct{}
}

func newEmailCapture() *emailCapture {
	return &emailCapture{sent: make(chan struct{}, 16)}
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()
	e.sent <- struct{}{}

	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) all() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]map[string]string, len(e.emails))
	copy(out, e.emails)
	return out
}

func TestConfirmationSentOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	rdb := SetupRedis(ctx, t)
	capture := newEmailCapture()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", capture.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	h := worker.NewConfirmationHandler(srv.URL, srv.Client(), rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	payload, err := json.Marshal(domain.OrderPlacedEvent{
		OrderID: "order-1",
		UserID:  "user-1",
		Email:   "frank@example.com",
		Total:   decimal.RequireFromString("50"),
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(ctx, payload))
	require.NoError(t, h.Handle(ctx, payload))

	assert.Len(t, capture.all(), 1)
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	require.NoError(t, err)

	cconn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer func() { _ = cconn.Close() }()

	require.NoError(t, cconn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func TestOrderPlacedFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	f := newFixture(ctx, t)
	brokers := SetupKafka(ctx, t)
	const topic = "order.placed"
	createTopic(t, brokers[0], topic)

	producer := messaging.NewProducer(brokers, topic, "order.placed")
	defer func() { _ = producer.Close() }()

	svc := orders.NewService(orders.Deps{
		Store:     f.orders,
		Carts:     f.carts,
		Profiles:  f.accounts,
		Publisher: producer,
		Logger:    f.logger,
	})

	grace := f.user(ctx, t, "grace")
	kobzar := f.book(ctx, t, "Кобзар", "50.00", 5)
	_, err := f.cart.Add(ctx, grace.ID, kobzar.ID, 2)
	require.NoError(t, err)

	order, err := svc.Checkout(ctx, grace.ID, delivery)
	require.NoError(t, err)

	capture := newEmailCapture()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /send", capture.handler)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	consumer := messaging.NewConsumer(messaging.ConsumerConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     "notification-worker-test",
		StartOffset: kafka.FirstOffset,
	}, f.logger)
	defer func() { _ = consumer.Close() }()

	h := worker.NewConfirmationHandler(srv.URL, srv.Client(), nil, f.logger)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(consumeCtx, h.Handle) }()

	select {
	case <-capture.sent:
	case <-time.After(time.Minute):
		t.Fatal("no confirmation email within a minute")
	}
	stop()
	<-done

	emails := capture.all()
	require.Len(t, emails, 1)
	assert.Equal(t, "grace@example.com", emails[0]["to"])
	assert.Contains(t, emails[0]["subject"], order.ID)
	assert.Contains(t, emails[0]["body"], "Total: 100.00")
}
