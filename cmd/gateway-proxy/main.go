package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Sternrassler/marketplace-gateway/internal/config"
	"github.com/Sternrassler/marketplace-gateway/pkg/client"
	"github.com/Sternrassler/marketplace-gateway/pkg/invalidation"
	"github.com/Sternrassler/marketplace-gateway/pkg/logging"
	"github.com/Sternrassler/marketplace-gateway/pkg/orders"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for gateway-proxy.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gateway-proxy",
		Short: "Resilient HTTP gateway in front of a WooCommerce/Dokan backend",
		Long: `gateway-proxy serves marketplace order operations to the rendering layer.

Backend calls get per-attempt timeouts, 5xx retries and a fallback cache;
callers are identified by the X-Auth-* headers of the edge proxy, and
successful mutations publish cache invalidations to Redis.

Configuration comes from gateway.yaml and GATEWAY_* environment variables.

Example:
  GATEWAY_BACKEND_BASE_URL=https://shop.example.com/wp-json gateway-proxy --port 8080`,
		SilenceUsage: true,
		RunE:         runProxy,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides server.port)")
	rootCmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	return rootCmd
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("get config flag: %w", err)
	}

	cfg, err := config.Load(config.Options{File: path})
	if err != nil {
		return config.Config{}, err
	}

	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// runProxy wires the gateway and serves until SIGINT/SIGTERM.
func runProxy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.Setup(cfg.LoggingConfig())
	logger := logging.NewLogger(logging.ComponentProxy)

	gatewayClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create gateway client: %w", err)
	}

	sinks := []invalidation.Option{
		invalidation.WithSink("local", invalidation.NewVersions()),
		invalidation.WithTimeout(cfg.Invalidation.Timeout),
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			// Invalidation is best effort; start anyway and let /ready report it.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable at startup")
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
		}
		cancel()

		sinks = append(sinks, invalidation.WithSink("redis",
			invalidation.NewRedisSink(redisClient, invalidation.WithChannel(cfg.Invalidation.Channel))))
	}

	svc := orders.NewService(gatewayClient, invalidation.NewCoupler(sinks...))

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           newServer(svc, redisClient, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("backend", cfg.Backend.BaseURL).
			Bool("redis", cfg.RedisEnabled()).
			Msg("Starting gateway proxy")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			return err
		}
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error during shutdown")
			return err
		}
	}

	logger.Info().Msg("Gateway proxy stopped")
	return nil
}
