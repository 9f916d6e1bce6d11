package redisclient

import (
	"context"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *Client {
	t.Helper()

	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewClient(endpoint, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLockOrder(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	release, err := c.LockOrder(ctx, "order-1", 5*time.Second, 0)
	require.NoError(t, err)

	_, err = c.LockOrder(ctx, "order-1", 5*time.Second, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()

	release2, err := c.LockOrder(ctx, "order-1", 5*time.Second, 0)
	require.NoError(t, err)
	release2()
}

func TestReleaseLockIgnoresForeignToken(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	_, ok, err := c.AcquireLock(ctx, "lock:x", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.ReleaseLock(ctx, "lock:x", "someone-else"))

	_, ok, err = c.AcquireLock(ctx, "lock:x", 5*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidatePaidOrderOnce(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.InitStock(ctx, map[string]int{"var-a": 10, "var-b": 4}))

	items := []models.OrderItemData{
		{VariantID: "var-a", Quantity: 3},
		{VariantID: "var-uncached", Quantity: 1},
	}

	applied, err := c.InvalidatePaidOrder(ctx, "evt-1", items, time.Hour)
	require.NoError(t, err)
	assert.True(t, applied)

	_, ok, err := c.GetStockTotal(ctx, "var-a")
	require.NoError(t, err)
	assert.False(t, ok)

	total, ok, err := c.GetStockTotal(ctx, "var-b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, total)

	// a redelivery must not drop a total reloaded after the first pass
	require.NoError(t, c.SetStockTotal(ctx, "var-a", 7))
	applied, err = c.InvalidatePaidOrder(ctx, "evt-1", items, time.Hour)
	require.NoError(t, err)
	assert.False(t, applied)

	total, ok, err = c.GetStockTotal(ctx, "var-a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, total)
}
