// ABOUTME: Redis-backed free-tier device sessions and credit counters
// ABOUTME: Sessions are created lazily at the starting balance and never expire

package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// StartingCredits is the balance a device session begins with.
const StartingCredits = 2

// ErrNoCredits is returned when a device has spent its balance.
var ErrNoCredits = errors.New("credits unavailable")

// Session is a free-tier device session.
type Session struct {
	DeviceID string
	Credits  int64
}

// Store tracks device sessions in redis. Keys are device:{id} holding the
// credit counter; device ids are client-supplied and trusted as presented.
type Store struct {
	redis  redis.UniversalClient
	logger *slog.Logger
}

// NewStore creates a device session store.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{
		redis:  client,
		logger: slog.Default().With("component", "devices"),
	}
}

func key(deviceID string) string {
	return "device:" + deviceID
}

// Grant resolves the device's session, lazily creating it at the starting
// balance on first sight. Devices with zero credits get ErrNoCredits.
func (s *Store) Grant(ctx context.Context, deviceID string) (*Session, error) {
	created, err := s.redis.SetNX(ctx, key(deviceID), StartingCredits, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("creating device session: %w", err)
	}
	if created {
		s.logger.Info("created device session", "device_id", deviceID, "credits", StartingCredits)
		return &Session{DeviceID: deviceID, Credits: StartingCredits}, nil
	}

	credits, err := s.redis.Get(ctx, key(deviceID)).Int64()
	if err != nil {
		return nil, fmt.Errorf("reading device credits: %w", err)
	}
	if credits <= 0 {
		return nil, ErrNoCredits
	}
	return &Session{DeviceID: deviceID, Credits: credits}, nil
}

// Decrement spends one credit and returns the remaining balance.
func (s *Store) Decrement(ctx context.Context, deviceID string) (int64, error) {
	remaining, err := s.redis.DecrBy(ctx, key(deviceID), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("decrementing device credits: %w", err)
	}
	s.logger.Debug("decremented device credits", "device_id", deviceID, "remaining", remaining)
	return remaining, nil
}

// Credits returns the device's balance. Devices that have never been seen
// report the starting balance without creating a session.
func (s *Store) Credits(ctx context.Context, deviceID string) (int64, error) {
	credits, err := s.redis.Get(ctx, key(deviceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return StartingCredits, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading device credits: %w", err)
	}
	return credits, nil
}
