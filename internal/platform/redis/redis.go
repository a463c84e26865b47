package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/agentsim-labs/agentsim-go/internal/platform/env"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

func ConfigFromEnv() (Config, error) {
	db, err := env.Int("AGENTSIM_REDIS_DB", 0)
	if err != nil {
		return Config{}, err
	}
	dialTimeout, err := env.Duration("AGENTSIM_REDIS_DIAL_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	pingTimeout, err := env.Duration("AGENTSIM_REDIS_PING_TIMEOUT", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:        env.String("AGENTSIM_REDIS_ADDR", "localhost:6379"),
		Password:    env.String("AGENTSIM_REDIS_PASSWORD", ""),
		DB:          db,
		DialTimeout: dialTimeout,
		PingTimeout: pingTimeout,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("AGENTSIM_REDIS_ADDR is required")
	}
	if c.DB < 0 {
		return errors.New("AGENTSIM_REDIS_DB must be >= 0")
	}
	if c.DialTimeout <= 0 {
		return errors.New("AGENTSIM_REDIS_DIAL_TIMEOUT must be positive")
	}
	if c.PingTimeout <= 0 {
		return errors.New("AGENTSIM_REDIS_PING_TIMEOUT must be positive")
	}
	return nil
}

func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return client, nil
}
