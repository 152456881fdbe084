package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRedis(t *testing.T) {
	t.Run("empty url disables the client", func(t *testing.T) {
		client, err := OpenRedis(context.Background(), "", "", 0)
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("malformed url", func(t *testing.T) {
		_, err := OpenRedis(context.Background(), "http://localhost:6379", "", 0)
		assert.ErrorContains(t, err, "parse redis url")
	})
}
