package otp

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/algomatic/backend/internal/pkg/cache"
)

const (
	keyPrefix  = "otp:"
	defaultTTL = 5 * time.Minute
)

var ErrEmptyCode = errors.New("one-time code is empty")

// Store is the narrow key-value capability the code store needs.
type Store interface {
	Set(key string, value interface{}, expiration time.Duration) error
	Get(key string) (string, error)
	Delete(key string) error
}

// cacheStore adapts the shared Redis cache to the Store capability.
type cacheStore struct{}

func (cacheStore) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}

func (cacheStore) Get(key string) (string, error) { return cache.Get(key) }

func (cacheStore) Delete(key string) error { return cache.Delete(key) }

// Service stores short-lived one-time codes keyed by the provider email id.
type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store) *Service {
	return &Service{store: store, ttl: defaultTTL}
}

// NewServiceFromCache creates a code store backed by the shared Redis cache.
func NewServiceFromCache() *Service {
	return NewService(cacheStore{})
}

// Save stores a code for the given email id, replacing any previous one.
func (s *Service) Save(emailID, code string) error {
	if code == "" {
		return ErrEmptyCode
	}
	return s.store.Set(keyPrefix+emailID, code, s.ttl)
}

// Verify reports whether code matches the stored one for emailID. A matching
// code is consumed so it cannot be used twice. Expired or unknown ids fail.
func (s *Service) Verify(emailID, code string) (bool, error) {
	stored, err := s.store.Get(keyPrefix + emailID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if stored == "" || stored != code {
		return false, nil
	}
	if err := s.store.Delete(keyPrefix + emailID); err != nil {
		return false, err
	}
	return true, nil
}
