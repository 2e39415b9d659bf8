// Package redisqueue is the SetStore implementation backed by
// github.com/redis/go-redis/v9: each miss-queue is a Redis set read with
// SMEMBERS and truncated with DEL.
package redisqueue

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store is a SetStore backed by Redis sets.
type Store struct {
	client *redis.Client
}

// New wires a Store against an already-connected *redis.Client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Exists reports whether the set name has any members.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	n, err := s.client.Exists(ctx, name).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Members returns every member of the set name, matching smembers's
// read-all semantics; an absent key returns an empty slice, not an error.
func (s *Store) Members(ctx context.Context, name string) ([]string, error) {
	members, err := s.client.SMembers(ctx, name).Result()
	if err != nil {
		return nil, err
	}
	return members, nil
}

// Delete removes the entire set, truncating the queue after a drain.
// Members added between Members and Delete are lost; see Drainer.Drain
// for why that race is acceptable.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.client.Del(ctx, name).Err()
}
