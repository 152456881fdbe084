package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		schema string
		want   string
	}{
		{
			name:   "url form",
			dsn:    "postgres://u:p@localhost:5432/shop?sslmode=disable",
			schema: "bookstore",
			want:   "postgres://u:p@localhost:5432/shop?search_path=bookstore&sslmode=disable",
		},
		{
			name:   "key value form",
			dsn:    "host=localhost dbname=shop",
			schema: "bookstore",
			want:   "host=localhost dbname=shop search_path=bookstore",
		},
		{
			name:   "empty schema leaves dsn alone",
			dsn:    "postgres://localhost/shop",
			schema: "",
			want:   "postgres://localhost/shop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithSearchPath(tt.dsn, tt.schema)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstruments_NilSafe(t *testing.T) {
	var i *Instruments
	i.Checkout(context.Background(), "committed")
	i.CartMutation(context.Background(), "add", "ok")
	i.BookViewed(context.Background())

	inst, err := NewInstruments()
	require.NoError(t, err)
	inst.Checkout(context.Background(), "committed")
}
