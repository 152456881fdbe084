package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments are the bookstore's domain counters. The zero value is not
// usable; use NewInstruments.
type Instruments struct {
	checkouts     metric.Int64Counter
	cartMutations metric.Int64Counter
	bookViews     metric.Int64Counter
}

// NewInstruments registers the counters on the global MeterProvider, which is
// a no-op until InitMeterProvider has run.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter("github.com/joao-fontenele/bookstore")

	checkouts, err := meter.Int64Counter("bookstore.checkout.attempts",
		metric.WithDescription("Checkout attempts by outcome"))
	if err != nil {
		return nil, err
	}

	cartMutations, err := meter.Int64Counter("bookstore.cart.mutations",
		metric.WithDescription("Cart mutations by operation and outcome"))
	if err != nil {
		return nil, err
	}

	bookViews, err := meter.Int64Counter("bookstore.book.views",
		metric.WithDescription("Book detail views"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		checkouts:     checkouts,
		cartMutations: cartMutations,
		bookViews:     bookViews,
	}, nil
}

func (i *Instruments) Checkout(ctx context.Context, outcome string) {
	if i == nil {
		return
	}
	i.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (i *Instruments) CartMutation(ctx context.Context, op, outcome string) {
	if i == nil {
		return
	}
	i.cartMutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (i *Instruments) BookViewed(ctx context.Context) {
	if i == nil {
		return
	}
	i.bookViews.Add(ctx, 1)
}
