package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// RevocationStore keeps "sessions issued before T are invalid" markers per
// session subject. Markers expire after ttl, which should exceed the session
// lifetime.
type RevocationStore struct {
	client *Client
	ttl    time.Duration
}

func NewRevocationStore(client *Client, ttl time.Duration) *RevocationStore {
	return &RevocationStore{client: client, ttl: ttl}
}

func (s *RevocationStore) RevokeBefore(ctx context.Context, subject string, t time.Time) error {
	key := s.client.RevocationKey(subject)
	if err := s.client.Set(ctx, key, strconv.FormatInt(t.Unix(), 10), s.ttl); err != nil {
		return fmt.Errorf("store revocation: %w", err)
	}
	return nil
}

// RevokedBefore returns the zero time when the subject has no marker.
func (s *RevocationStore) RevokedBefore(ctx context.Context, subject string) (time.Time, error) {
	v, err := s.client.Get(ctx, s.client.RevocationKey(subject))
	if errors.Is(err, ErrMissing) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load revocation: %w", err)
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse revocation %q: %w", v, err)
	}
	return time.Unix(sec, 0), nil
}
