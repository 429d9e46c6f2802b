package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tourbook/internal/models"
)

// ErrMiss is returned when a key is absent from the cache.
var ErrMiss = errors.New("cache miss")

type Config struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	UsersHashKey string        `yaml:"users_hash_key"`
	WebhookTTL   time.Duration `yaml:"webhook_ttl"`
}

// ValkeyClient wraps a Redis/Valkey connection. It caches resolved
// principals and remembers processed gateway webhooks.
type ValkeyClient struct {
	client       *redis.Client
	usersHashKey string
	webhookTTL   time.Duration
}

func NewValkeyClient(ctx context.Context, cfg Config) (*ValkeyClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Valkey: %w", err)
	}

	slog.Info("Connected to Valkey", "addr", cfg.Addr, "db", cfg.DB)

	return newValkeyClient(rdb, cfg), nil
}

func newValkeyClient(rdb *redis.Client, cfg Config) *ValkeyClient {
	if cfg.UsersHashKey == "" {
		cfg.UsersHashKey = "users:auth"
	}
	if cfg.WebhookTTL <= 0 {
		cfg.WebhookTTL = 24 * time.Hour
	}
	return &ValkeyClient{
		client:       rdb,
		usersHashKey: cfg.UsersHashKey,
		webhookTTL:   cfg.WebhookTTL,
	}
}

func authField(email, passwordHash string) string {
	return base64.StdEncoding.EncodeToString([]byte(email + ":" + passwordHash))
}

func encodePrincipal(p models.Principal) string {
	return strconv.FormatInt(p.ID, 10) + ":" + string(p.Role)
}

func decodePrincipal(v string) (models.Principal, error) {
	idPart, role, ok := strings.Cut(v, ":")
	if !ok {
		return models.Principal{}, fmt.Errorf("malformed principal %q", v)
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid user ID in cache: %w", err)
	}
	return models.Principal{ID: id, Role: models.Role(role)}, nil
}

// GetPrincipal looks up credentials already verified against the users
// table. passwordHash is the sha256 of the supplied password.
func (v *ValkeyClient) GetPrincipal(ctx context.Context, email, passwordHash string) (models.Principal, error) {
	val, err := v.client.HGet(ctx, v.usersHashKey, authField(email, passwordHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Principal{}, ErrMiss
		}
		return models.Principal{}, fmt.Errorf("cache lookup error: %w", err)
	}
	return decodePrincipal(val)
}

func (v *ValkeyClient) SetPrincipal(ctx context.Context, email, passwordHash string, p models.Principal) error {
	if err := v.client.HSet(ctx, v.usersHashKey, authField(email, passwordHash), encodePrincipal(p)).Err(); err != nil {
		return fmt.Errorf("cache store error: %w", err)
	}
	return nil
}

func webhookKey(key string) string {
	return "webhook:" + key
}

// Seen reports whether a webhook delivery was already processed.
func (v *ValkeyClient) Seen(ctx context.Context, key string) (bool, error) {
	n, err := v.client.Exists(ctx, webhookKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("webhook lookup error: %w", err)
	}
	return n > 0, nil
}

// Remember marks a webhook delivery as processed for the configured TTL.
func (v *ValkeyClient) Remember(ctx context.Context, key string) error {
	if err := v.client.SetNX(ctx, webhookKey(key), time.Now().Unix(), v.webhookTTL).Err(); err != nil {
		return fmt.Errorf("webhook store error: %w", err)
	}
	return nil
}

func (v *ValkeyClient) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}

func (v *ValkeyClient) Close() error {
	return v.client.Close()
}
