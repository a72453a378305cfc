package app

import (
	"context"
	"fmt"

	"shopdash/internal/alerts"
	"shopdash/internal/awsclients"
	"shopdash/internal/cache"
	"shopdash/internal/config"
	"shopdash/internal/export"
	"shopdash/internal/logger"
	"shopdash/internal/shopify"

	"github.com/redis/go-redis/v9"
)

// Init loads configuration and sets up logging for one Lambda binary.
func Init(service string) config.Config {
	cfg := config.Load()
	logger.Init(service, cfg.IsDevelopment())
	logger.SetLevel(cfg.LogLevel)
	return cfg
}

// CredentialSource picks where the Admin API token comes from.
func CredentialSource(cfg config.Shopify, aws *awsclients.Clients) (shopify.CredentialSource, error) {
	switch cfg.CredentialSource {
	case config.CredentialSourceEnv, "":
		return shopify.EnvSource{
			ShopDomain:     cfg.StoreDomain,
			APIVersion:     cfg.APIVersion,
			AccessToken:    cfg.AccessToken,
			AccessTokenEnc: cfg.AccessTokenEnc,
			KeyB64:         cfg.TokenKeyB64,
		}, nil
	case config.CredentialSourceSSM:
		return &shopify.SSMSource{
			Client:     aws.SSM(),
			Parameter:  cfg.TokenParameter,
			ShopDomain: cfg.StoreDomain,
			APIVersion: cfg.APIVersion,
		}, nil
	case config.CredentialSourceDynamo:
		return shopify.DynamoSource{
			Client:     aws.DynamoDB(),
			Table:      cfg.IntegrationsTable,
			ShopDomain: cfg.StoreDomain,
			APIVersion: cfg.APIVersion,
			KeyB64:     cfg.TokenKeyB64,
		}, nil
	default:
		return nil, fmt.Errorf("unknown SHOPIFY_CREDENTIAL_SOURCE %q", cfg.CredentialSource)
	}
}

// CacheStore picks the backing store for cached query pages.
func CacheStore(ctx context.Context, cfg config.Cache, aws *awsclients.Clients) (cache.Store, error) {
	switch cfg.Backend {
	case config.CacheBackendMemory, "":
		return cache.NewMemoryStore(), nil
	case config.CacheBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=redis requires REDIS_ADDR")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx).Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable, using memory cache")
			_ = client.Close()
			return cache.NewMemoryStore(), nil
		}
		return cache.NewRedisStore(client), nil
	case config.CacheBackendDynamo:
		if cfg.Table == "" {
			return nil, fmt.Errorf("CACHE_BACKEND=dynamodb requires CACHE_TABLE")
		}
		return cache.NewDynamoStore(aws.DynamoDB(), cfg.Table), nil
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q", cfg.Backend)
	}
}

// Client builds the rate limited Admin API client.
func Client(cfg config.Config, aws *awsclients.Clients) (*shopify.Client, error) {
	creds, err := CredentialSource(cfg.Shopify, aws)
	if err != nil {
		return nil, err
	}
	return shopify.NewClient(creds, shopify.ClientOptions{
		RequestsPerSecond: cfg.Shopify.RateLimitRPS,
		Timeout:           cfg.Shopify.HTTPTimeout,
	}), nil
}

// Executor builds the cached query executor used by the dashboard.
func Executor(ctx context.Context, cfg config.Config, aws *awsclients.Clients) (*shopify.Executor, error) {
	client, err := Client(cfg, aws)
	if err != nil {
		return nil, err
	}
	store, err := CacheStore(ctx, cfg.Cache, aws)
	if err != nil {
		return nil, err
	}
	return shopify.NewExecutor(client, cache.New(store, cfg.Cache.TTL)), nil
}

// Uploader is nil when no export bucket is configured.
func Uploader(cfg config.Config, aws *awsclients.Clients) *export.S3Uploader {
	if cfg.ExportBucket == "" {
		return nil
	}
	return export.NewS3Uploader(aws.S3(), cfg.ExportBucket, cfg.ExportPrefix)
}

// Notifier is nil when no alerts topic is configured.
func Notifier(cfg config.Config, aws *awsclients.Clients) *alerts.Notifier {
	if cfg.AlertsTopicArn == "" {
		return nil
	}
	return alerts.NewNotifier(aws.SNS(), cfg.AlertsTopicArn)
}
