// Package settings serves runtime key/value settings through a TTL cache with
// write-through invalidation.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/commerce-backoffice/pkg/apperr"
)

const (
	KeyCartTTLDays = "cart.ttl_days"
	KeyCurrency    = "app.currency"
)

// missing is cached for keys without a row so misses are not re-queried.
const missing = "\x00"

type Repository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type Service struct {
	log   *slog.Logger
	repo  Repository
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewService(log *slog.Logger, repo Repository, cache Cache, ttl time.Duration) *Service {
	return &Service{log: log, repo: repo, cache: cache, ttl: ttl}
}

func cacheKey(key string) string { return "setting:" + key }

// Lookup returns the setting value and whether it exists.
func (s *Service) Lookup(ctx context.Context, key string) (string, bool, error) {
	ck := cacheKey(key)
	if v, ok, err := s.cache.Get(ctx, ck); err != nil {
		s.log.Warn("settings cache read failed", "key", key, "err", err)
	} else if ok {
		return v, v != missing, nil
	}

	v, err, _ := s.group.Do(ck, func() (any, error) {
		val, err := s.repo.GetSetting(ctx, key)
		if apperr.IsNotFound(err) {
			val = missing
		} else if err != nil {
			return "", err
		}
		if err := s.cache.Set(ctx, ck, val, s.ttl); err != nil {
			s.log.Warn("settings cache write failed", "key", key, "err", err)
		}
		return val, nil
	})
	if err != nil {
		return "", false, err
	}
	val := v.(string)
	return val, val != missing, nil
}

func (s *Service) String(ctx context.Context, key, def string) string {
	v, ok, err := s.Lookup(ctx, key)
	if err != nil {
		s.log.Error("settings lookup failed", "key", key, "err", err)
		return def
	}
	if !ok || v == "" {
		return def
	}
	return v
}

func (s *Service) Int(ctx context.Context, key string, def int) int {
	v := s.String(ctx, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.log.Warn("setting is not an integer", "key", key, "value", v)
		return def
	}
	return n
}

// Set writes through to the store and invalidates the cached value.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return apperr.Validation("setting key required")
	}
	if err := s.repo.SetSetting(ctx, key, value); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey(key))
}
