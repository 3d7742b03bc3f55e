package http

import (
	"context"

	"github.com/license-notifications/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

// NotificationRepository is the minimal interface the router requires from a notification store.
type NotificationRepository interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	// ListByOwnerAndLicensee queries the owner/licensee GSI; it never scans.
	ListByOwnerAndLicensee(ctx context.Context, ownerID, licenseeID string) ([]domain.Notification, error)
	IncrementCounter(ctx context.Context, notificationID, ownerID string) (*domain.Notification, error)
	UpdateOwned(ctx context.Context, notificationID, ownerID string, updates map[string]interface{}) (*domain.Notification, error)
}

// TaskRepository is the minimal interface the router requires from a task store.
type TaskRepository interface {
	Get(ctx context.Context, taskID string) (*domain.Task, error)
}

// TaskDispatcher schedules deferred work.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, name string, args map[string]string) (*domain.Task, error)
}
