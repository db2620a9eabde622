package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/marketplace-gateway/internal/testutil"
	"github.com/Sternrassler/marketplace-gateway/pkg/client"
	"github.com/Sternrassler/marketplace-gateway/pkg/credentials"
	"github.com/Sternrassler/marketplace-gateway/pkg/guard"
	"github.com/Sternrassler/marketplace-gateway/pkg/invalidation"
	"github.com/Sternrassler/marketplace-gateway/pkg/orders"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const order123 = `{"id":123,"status":"processing","currency":"EUR","total":"49.90","store":{"id":7,"name":"Shop 7"}}`

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	t.Cleanup(func() {
		redisClient.Close()
		container.Terminate(ctx)
	})

	return redisClient
}

func newService(t *testing.T, backend *testutil.MockBackend, sink *invalidation.RedisSink) *orders.Service {
	t.Helper()

	cfg := client.DefaultConfig(backend.URL(), credentials.Credentials{Key: "ck_test", Secret: "cs_test"})
	cfg.Timeout = time.Second
	c, err := client.New(cfg,
		client.WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
		client.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	coupler := invalidation.NewCoupler(
		invalidation.WithSink("redis", sink),
		invalidation.WithLogger(zerolog.Nop()),
	)
	return orders.NewService(c, coupler, orders.WithLogger(zerolog.Nop()))
}

func asSeller(vendorID string) context.Context {
	return guard.WithIdentity(context.Background(), guard.Identity{
		ID:       vendorID,
		Role:     guard.RoleSeller,
		VendorID: vendorID,
	})
}

func TestUpdateOrderStatus_PublishesToRedis(t *testing.T) {
	redisClient := setupRedis(t)
	sink := invalidation.NewRedisSink(redisClient, invalidation.WithRedisLogger(zerolog.Nop()))

	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse("GET /wc/v3/orders/123", testutil.NewJSONResponse(order123))
	backend.SetResponse("PUT /wc/v3/orders/123", testutil.NewJSONResponse(strings.Replace(order123, "processing", "completed", 1)))

	svc := newService(t, backend, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	received := make(chan invalidation.Message, 1)
	go func() {
		_ = sink.Subscribe(ctx, func(m invalidation.Message) { received <- m })
	}()
	waitForSubscriber(t, ctx, redisClient, invalidation.DefaultChannel)

	res, err := svc.UpdateOrderStatus(asSeller("7"), "7", "123", "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	order, ok := res.Value()
	if !ok || order.Status != "completed" {
		t.Fatalf("UpdateOrderStatus() = %+v / %+v", order, res.Failure)
	}

	select {
	case msg := <-received:
		want := "order-123,seller-orders-7,seller-dashboard-7"
		if got := strings.Join(msg.Tags, ","); got != want {
			t.Errorf("published tags = %s, want %s", got, want)
		}
	case <-ctx.Done():
		t.Fatal("no invalidation message received")
	}

	for _, tag := range []string{"order-123", "seller-orders-7", "seller-dashboard-7"} {
		v, err := sink.Version(ctx, tag)
		if err != nil || v != 1 {
			t.Errorf("Version(%s) = %d, %v; want 1", tag, v, err)
		}
	}
}

func TestRejectedMutation_LeavesRedisUntouched(t *testing.T) {
	redisClient := setupRedis(t)
	sink := invalidation.NewRedisSink(redisClient, invalidation.WithRedisLogger(zerolog.Nop()))

	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse("GET /wc/v3/orders/123", testutil.NewJSONResponse(order123))
	backend.SetResponse("PUT /wc/v3/orders/123", testutil.NewValidationErrorResponse("status", "Invalid transition"))

	svc := newService(t, backend, sink)

	res, err := svc.UpdateOrderStatus(asSeller("7"), "7", "123", "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	if res.Code() != client.CodeValidation {
		t.Fatalf("Code() = %s, want %s", res.Code(), client.CodeValidation)
	}

	keys, err := redisClient.Keys(context.Background(), "gateway:tag:*").Result()
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("version keys = %v, want none", keys)
	}
}

func TestRedisDown_MutationStillSucceeds(t *testing.T) {
	redisClient := setupRedis(t)
	sink := invalidation.NewRedisSink(redisClient, invalidation.WithRedisLogger(zerolog.Nop()))

	backend := testutil.NewMockBackend()
	defer backend.Close()
	backend.SetResponse("GET /wc/v3/orders/123", testutil.NewJSONResponse(order123))
	backend.SetResponse("PUT /wc/v3/orders/123", testutil.NewJSONResponse(order123))

	svc := newService(t, backend, sink)
	redisClient.Close()

	res, err := svc.UpdateOrderStatus(asSeller("7"), "7", "123", "completed")
	if err != nil {
		t.Fatalf("UpdateOrderStatus() error = %v", err)
	}
	if !res.IsOk() {
		t.Fatalf("mutation failed with Redis down: %+v", res.Failure)
	}
}

// waitForSubscriber polls until channel has a subscriber.
func waitForSubscriber(t *testing.T, ctx context.Context, rdb *redis.Client, channel string) {
	t.Helper()
	for {
		counts, err := rdb.PubSubNumSub(ctx, channel).Result()
		if err == nil && counts[channel] > 0 {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatal("subscriber did not attach")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
