// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"rsscord/internal/model"
)

// ErrDuplicateSubscription is returned when a (url, channel) pair is
// already registered, active or not.
var ErrDuplicateSubscription = errors.New("subscription already exists for this url and channel")

// ErrNotFound is returned when a subscription id does not exist.
var ErrNotFound = errors.New("subscription not found")

// Counts summarizes the stored subscriptions for the status endpoint.
type Counts struct {
	Total    int
	Active   int
	WithRole int
}

// Storage is the interface for all persistence operations. The bot and
// web processes share one implementation; every mutation is committed
// before the call returns.
type Storage interface {
	CreateSubscription(ctx context.Context, sub *model.Subscription) error
	GetSubscription(ctx context.Context, id int64) (*model.Subscription, error)
	// ListSubscriptions returns subscriptions in insertion order,
	// filtered by guild when guildID is non-empty.
	ListSubscriptions(ctx context.Context, guildID string) ([]model.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]model.Subscription, error)
	UpdateSubscription(ctx context.Context, id int64, patch model.SubscriptionPatch) (*model.Subscription, error)
	// DeleteSubscription removes the subscription and its marker.
	// Deleting an unknown id is a no-op.
	DeleteSubscription(ctx context.Context, id int64) error

	// GetMarker returns the last-delivered item key for a subscription,
	// or "" if the subscription has never been checked.
	GetMarker(ctx context.Context, subscriptionID int64) (string, error)
	SetMarker(ctx context.Context, subscriptionID int64, key string) error

	CountSubscriptions(ctx context.Context) (Counts, error)

	Close() error
}
